package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/test"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func sample(t *testing.T, name string) string {
	return filepath.Join(test.RootPath(t), "samples", name)
}

func TestExplainCommandJSON(t *testing.T) {
	out, err := execute(t, "explain", "--url", "",
		"--input", sample(t, "tpch_join.json"),
		"--stats", sample(t, "stats.yaml"),
		"--mode", "json")
	require.NoError(t, err)

	var doc analysisDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 24.5, doc.TotalCost)
	assert.Equal(t, 2, doc.Mismatched)
	require.Len(t, doc.Nodes, 5)
	assert.Equal(t, "0.0.1.0", doc.Nodes[4].ID)
	assert.Equal(t, "estimated", doc.Nodes[4].Status)
	assert.Equal(t, 5.0, doc.Nodes[4].ManualCost)
	assert.NotEmpty(t, doc.Nodes[4].Rationale)
}

func TestExplainCommandTUI(t *testing.T) {
	out, err := execute(t, "explain", "--url", "",
		"--input", sample(t, "tpch_join.json"),
		"--stats", sample(t, "stats.yaml"),
		"--mode", "tui", "--color=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Seq Scan on region | reported 11.4 | manual 5 (x2.28)")
}

func TestExplainCommandNeedsAPlan(t *testing.T) {
	_, err := execute(t, "explain", "--url", "", "--input", "", "--stats", sample(t, "stats.yaml"))
	require.ErrorContains(t, err, "--input or --url is required")
}

func TestDiffCommand(t *testing.T) {
	out, err := execute(t, "diff",
		"--base", sample(t, "orders_seqscan.json"),
		"--target", sample(t, "orders_index.json"),
		"--stats", sample(t, "stats.yaml"),
		"--format", "md")
	require.NoError(t, err)
	assert.Contains(t, out, "# plancost diff")
	assert.Contains(t, out, "Index Scan · orders · orders_pkey")
}

func TestVersionCommand(t *testing.T) {
	rootCmd.Version = "v1.2.3"
	buildDetails = ""
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "plancost v1.2.3\n", out)
}
