package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RelationStats holds the statistics of one relation.
type RelationStats struct {
	Blocks   int64            `json:"blocks" yaml:"blocks"`
	Tuples   int64            `json:"tuples" yaml:"tuples"`
	Distinct map[string]int64 `json:"distinct" yaml:"distinct"`
}

// Static answers statistics from fixed values. It is used for offline explanations and tests.
type Static struct {
	Buffer    int64                    `json:"buffer_size" yaml:"buffer_size"`
	Relations map[string]RelationStats `json:"relations" yaml:"relations"`
}

var _ Provider = (*Static)(nil)

// LoadStatic reads a Static provider from a YAML or JSON file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stats: read %s: %w", path, err)
	}
	var s Static
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("stats: parse %s: %w", path, err)
	}
	return &s, nil
}

func (s *Static) relation(stat, relation string) (RelationStats, error) {
	rel, ok := s.Relations[relation]
	if !ok {
		return RelationStats{}, unavailable(stat, relation, "", fmt.Errorf("unknown relation"))
	}
	return rel, nil
}

func (s *Static) BlockCount(_ context.Context, relation string) (int64, error) {
	rel, err := s.relation(StatBlocks, relation)
	if err != nil {
		return 0, err
	}
	return rel.Blocks, nil
}

func (s *Static) TupleCount(_ context.Context, relation string) (int64, error) {
	rel, err := s.relation(StatTuples, relation)
	if err != nil {
		return 0, err
	}
	return rel.Tuples, nil
}

func (s *Static) BufferSize(context.Context) (int64, error) {
	if s.Buffer <= 0 {
		return 0, unavailable(StatBuffer, "", "", fmt.Errorf("buffer size not configured"))
	}
	return s.Buffer, nil
}

func (s *Static) DistinctCount(_ context.Context, relation, attribute string) (int64, error) {
	rel, err := s.relation(StatDistinct, relation)
	if err != nil {
		return 0, err
	}
	v, ok := rel.Distinct[attribute]
	if !ok {
		return 0, unavailable(StatDistinct, relation, attribute, fmt.Errorf("unknown attribute"))
	}
	return v, nil
}
