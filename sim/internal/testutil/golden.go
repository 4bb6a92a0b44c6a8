// Package testutil provides shared test infrastructure for the kernel
// packages: the golden run dataset and tolerance assertions.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/golden_runs.json.
type GoldenDataset struct {
	Tests []GoldenRun `json:"tests"`
}

// GoldenRun is one recorded run of an example architecture.
type GoldenRun struct {
	Name         string        `json:"name"`
	Architecture string        `json:"architecture"` // relative to the repo root
	Params       string        `json:"params"`       // relative to the repo root
	Start        float64       `json:"start"`
	Duration     float64       `json:"duration"`
	Seed         int64         `json:"seed"`
	Fixpoint     bool          `json:"fixpoint"`
	Metrics      GoldenMetrics `json:"metrics"`
}

// GoldenMetrics represents the expected outcome of a golden run.
type GoldenMetrics struct {
	// Exact match counts
	Steps     int `json:"steps"`
	Outputs   int `json:"outputs"`
	Internal  int `json:"internal_transitions"`
	External  int `json:"external_transitions"`
	Confluent int `json:"confluent_transitions"`

	// Final state of selected models, compared with a relative tolerance
	Final map[string]float64 `json:"final"`
}

// RepoRoot returns the repository root, resolved from this source file.
func RepoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to the repo root
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..")
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(RepoRoot(t), "testdata", "golden_runs.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
