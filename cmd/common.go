package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mickamy/plancost/internal/config"
	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
	"github.com/mickamy/plancost/internal/planexec"
	"github.com/mickamy/plancost/internal/stats"
)

func defaultURL() string {
	return os.Getenv("DATABASE_URL")
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return time.Duration(config.Active().Explore.Timeout)
}

// readQuery returns the inline query, or the content of sqlPath when no inline query is given.
func readQuery(sqlPath, inline string) (string, error) {
	if q := strings.TrimSpace(inline); q != "" {
		return q, nil
	}
	if sqlPath == "" {
		return "", errors.New("--query or --sql is required")
	}
	data, err := os.ReadFile(sqlPath)
	if err != nil {
		return "", fmt.Errorf("read sql file: %w", err)
	}
	return string(data), nil
}

// openOutput returns cmd's stdout when path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func loadPlanFile(path string) (*model.Explain, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	return parser.ParseJSON(file)
}

// statistics picks the statistics source: a statistics file when statsPath is set, the catalog of
// database through exec otherwise. Either way lookups are cached.
func statistics(ctx context.Context, statsPath string, exec *planexec.Executor, database string) (stats.Provider, error) {
	var provider stats.Provider
	switch {
	case statsPath != "":
		static, err := stats.LoadStatic(statsPath)
		if err != nil {
			return nil, err
		}
		provider = static
	case exec != nil:
		pool, err := exec.Pool(ctx, database)
		if err != nil {
			return nil, err
		}
		provider = stats.NewPostgres(pool)
	default:
		return nil, errors.New("--stats or --url is required to resolve statistics")
	}
	return stats.NewCached(provider, config.Active().Stats.CacheSize)
}

func indentJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(payload, '\n'))
	return err
}
