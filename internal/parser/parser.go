package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mickamy/plancost/internal/model"
)

// ErrMalformedPlan is matched by every MalformedPlanError.
var ErrMalformedPlan = errors.New("malformed plan")

// MalformedPlanError reports a document that is not a well-formed plan tree.
type MalformedPlanError struct {
	// Path locates the offending node, e.g. "0.1"; empty for document-level problems.
	Path   string
	Reason string
	Err    error
}

func (e *MalformedPlanError) Error() string {
	msg := "explain json: " + e.Reason
	if e.Path != "" {
		msg = fmt.Sprintf("explain json: node %s: %s", e.Path, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedPlanError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedPlan}
	}
	return []error{ErrMalformedPlan, e.Err}
}

func malformed(path, reason string, err error) error {
	return &MalformedPlanError{Path: path, Reason: reason, Err: err}
}

// ParseDocument parses an EXPLAIN (FORMAT JSON) payload held in memory.
func ParseDocument(data []byte) (*model.Explain, error) {
	return ParseJSON(bytes.NewReader(data))
}

// ParseJSON reads a PostgreSQL EXPLAIN (FORMAT JSON) document and produces an Explain structure.
// The usual [{"Plan": {...}}] envelope, a bare {"Plan": {...}} object and a bare node object are accepted.
func ParseJSON(r io.Reader) (*model.Explain, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, malformed("", "decode", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planMap := entry
	if planVal, ok := entry["Plan"]; ok {
		planMap, err = asObject(planVal)
		if err != nil {
			return nil, malformed("", "invalid Plan node", err)
		}
	} else if _, ok := entry["Node Type"]; !ok {
		return nil, malformed("", "missing Plan root", nil)
	}

	root, err := parsePlanNode(planMap, "0", "")
	if err != nil {
		return nil, err
	}

	explain := &model.Explain{
		Plan:          root,
		PlanningTime:  asFloat(entry["Planning Time"]),
		ExecutionTime: asFloat(entry["Execution Time"]),
		Settings:      parseSettings(entry["Settings"]),
		Extra:         map[string]any{},
	}

	if _, wrapped := entry["Plan"]; wrapped {
		for k, v := range entry {
			if k == "Plan" || k == "Planning Time" || k == "Execution Time" || k == "Settings" {
				continue
			}
			explain.Extra[k] = v
		}
	}

	return explain, nil
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, malformed("", "empty payload", nil)
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, malformed("", "invalid entry", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, malformed("", fmt.Sprintf("unexpected top-level type %T", payload), nil)
	}
}

var known = map[string]struct{}{
	"Node Type":           {},
	"Relation Name":       {},
	"Schema":              {},
	"Alias":               {},
	"CTE Name":            {},
	"Parent Relationship": {},
	"Startup Cost":        {},
	"Total Cost":          {},
	"Plan Rows":           {},
	"Plan Width":          {},
	"Filter":              {},
	"Attribute":           {},
	"Index Name":          {},
	"Index Cond":          {},
	"Recheck Cond":        {},
	"Join Type":           {},
	"Strategy":            {},
	"Plans":               {},
}

// parsePlanNode builds a node and its children. inheritedRelation carries the relation of an
// enclosing Bitmap Heap Scan down to its bitmap children, which PostgreSQL emits without one.
func parsePlanNode(data map[string]any, path, inheritedRelation string) (*model.PlanNode, error) {
	nodeType := strings.TrimSpace(asString(data["Node Type"]))
	if nodeType == "" {
		return nil, malformed(path, `missing "Node Type"`, nil)
	}

	node := &model.PlanNode{
		ID:                 path,
		Kind:               model.ParseKind(nodeType),
		NodeType:           nodeType,
		RelationName:       asString(data["Relation Name"]),
		Schema:             asString(data["Schema"]),
		Alias:              asString(data["Alias"]),
		CTEName:            asString(data["CTE Name"]),
		ParentRelationship: asString(data["Parent Relationship"]),
		StartupCost:        asFloat(data["Startup Cost"]),
		TotalCost:          asFloat(data["Total Cost"]),
		PlanRows:           asFloat(data["Plan Rows"]),
		PlanWidth:          asFloat(data["Plan Width"]),
		Filter:             asString(data["Filter"]),
		Attribute:          asString(data["Attribute"]),
		IndexName:          asString(data["Index Name"]),
		IndexCond:          asString(data["Index Cond"]),
		RecheckCond:        asString(data["Recheck Cond"]),
		JoinType:           asString(data["Join Type"]),
		Strategy:           asString(data["Strategy"]),
		Extra:              map[string]any{},
	}

	if node.RelationName == "" && inheritsRelation(node.Kind) {
		node.RelationName = inheritedRelation
	}
	if node.Attribute == "" && isIndexFamily(node.Kind) {
		cond := node.IndexCond
		if cond == "" {
			cond = node.RecheckCond
		}
		if attr, ok := model.ExtractAttribute(cond); ok {
			node.Attribute = attr
		}
	}

	childRelation := inheritedRelation
	if node.Kind == model.KindBitmapHeapScan {
		childRelation = node.RelationName
	}

	plans, ok := data["Plans"]
	if ok && plans != nil {
		childrenSlice, isSlice := plans.([]any)
		if !isSlice {
			return nil, malformed(path, fmt.Sprintf(`"Plans" must be an array, got %T`, plans), nil)
		}
		for i, childVal := range childrenSlice {
			childPath := fmt.Sprintf("%s.%d", path, i)
			childMap, err := asObject(childVal)
			if err != nil {
				return nil, malformed(childPath, "invalid child plan", err)
			}

			child, err := parsePlanNode(childMap, childPath, childRelation)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	for k, v := range data {
		if _, ok := known[k]; ok {
			continue
		}
		node.Extra[k] = v
	}

	return node, nil
}

func inheritsRelation(kind model.Kind) bool {
	switch kind {
	case model.KindBitmapIndexScan, model.KindBitmapAnd, model.KindBitmapOr:
		return true
	default:
		return false
	}
}

func isIndexFamily(kind model.Kind) bool {
	switch kind {
	case model.KindIndexScan, model.KindIndexOnlyScan, model.KindBitmapIndexScan, model.KindBitmapHeapScan:
		return true
	default:
		return false
	}
}

func parseSettings(val any) map[string]string {
	if val == nil {
		return nil
	}

	result := map[string]string{}
	switch typed := val.(type) {
	case []any:
		for _, entry := range typed {
			item, err := asObject(entry)
			if err != nil {
				continue
			}
			name := asString(item["Name"])
			if name == "" {
				name = asString(item["name"])
			}
			value := asString(item["Setting"])
			if value == "" {
				value = asString(item["value"])
			}
			if name != "" && value != "" {
				result[name] = value
			}
		}
	case map[string]any:
		for k, v := range typed {
			result[k] = asString(v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(val any) float64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
