package test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/plancost/internal/analyzer"
	"github.com/mickamy/plancost/internal/model"
	"github.com/mickamy/plancost/internal/parser"
	"github.com/mickamy/plancost/internal/stats"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves a path relative to the repository rootPath (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// ReadSample returns the raw bytes of a file under samples/.
func ReadSample(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(RootPath(t), "samples", rel))
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return data
}

// LoadSamplePlan parses a plan relative to the repository samples directory.
func LoadSamplePlan(t *testing.T, rel string) *model.Explain {
	t.Helper()
	plan, err := parser.ParseDocument(ReadSample(t, rel))
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return plan
}

// LoadSampleStats loads the TPC-H statistics fixture.
func LoadSampleStats(t *testing.T) *stats.Static {
	t.Helper()
	s, err := stats.LoadStatic(filepath.Join(RootPath(t), "samples", "stats.yaml"))
	if err != nil {
		t.Fatalf("load stats: %v", err)
	}
	return s
}

// LoadSampleAnalysis parses a sample plan and analyzes it against the TPC-H statistics.
func LoadSampleAnalysis(t *testing.T, rel string) *analyzer.PlanAnalysis {
	t.Helper()
	analysis, err := analyzer.Analyze(context.Background(), LoadSamplePlan(t, rel), LoadSampleStats(t))
	if err != nil {
		t.Fatalf("analyze plan: %v", err)
	}
	return analysis
}
