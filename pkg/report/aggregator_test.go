package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
)

func step(name string, status core.Status) core.StepResult {
	return core.StepResult{Name: name, Status: status, Duration: 5 * time.Millisecond}
}

func TestAggregator_Counts(t *testing.T) {
	agg := NewAggregator("flows/t.yaml", "t.yaml", "", "")

	agg.Add(step("one", core.StatusPassed))
	agg.Add(step("two", core.StatusFailed))
	agg.Add(step("marker", core.StatusPassed))
	agg.Add(step("late", core.StatusCancelled))

	result := agg.Result()
	if result.Passed != 2 || result.Failed != 1 {
		t.Errorf("expected 2 passed / 1 failed, got %d/%d", result.Passed, result.Failed)
	}
	if len(result.Steps) != 4 {
		t.Errorf("cancelled steps still appear in the step list, got %d", len(result.Steps))
	}
	if result.Status != core.StatusRunning {
		t.Errorf("status stays running until finalize, got %s", result.Status)
	}
}

func TestAggregator_FinalizeStatus(t *testing.T) {
	cases := []struct {
		name   string
		steps  []core.Status
		expect core.Status
	}{
		{"all pass", []core.Status{core.StatusPassed, core.StatusPassed}, core.StatusPassed},
		{"one failure", []core.Status{core.StatusPassed, core.StatusFailed}, core.StatusFailed},
		{"empty run", nil, core.StatusPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator("f", "f.yaml", "", "")
			for _, s := range tc.steps {
				agg.Add(step("s", s))
			}
			if got := agg.Finalize().Status; got != tc.expect {
				t.Errorf("expected %s, got %s", tc.expect, got)
			}
		})
	}
}

func TestAggregator_SnapshotsAreStable(t *testing.T) {
	agg := NewAggregator("f", "f.yaml", "", "")
	agg.Add(step("one", core.StatusPassed))

	before := agg.Result()
	agg.Add(step("two", core.StatusFailed))

	if len(before.Steps) != 1 || before.Failed != 0 {
		t.Errorf("earlier snapshot must not see later additions: %d steps, %d failed",
			len(before.Steps), before.Failed)
	}
}

func TestAggregator_BatchTagging(t *testing.T) {
	agg := NewAggregator("flows/smoke/a.yaml", "a.yaml", "batch-1", "smoke")
	result := agg.Result()
	if result.BatchID != "batch-1" || result.FolderName != "smoke" {
		t.Errorf("expected batch tags carried, got %q/%q", result.BatchID, result.FolderName)
	}
	if result.ID == "" {
		t.Errorf("expected a generated run ID")
	}
}

func TestWriter_IndexAndDetailFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	agg := NewAggregator("flows/t.yaml", "t.yaml", "", "")
	w.RunStarted(agg.Result())
	agg.Add(step("one", core.StatusPassed))
	w.RunUpdated(agg.Result())
	final := agg.Finalize()
	w.RunFinished(final)

	var index Index
	readJSON(t, filepath.Join(dir, "report.json"), &index)

	if index.Version != Version {
		t.Errorf("expected schema version %s, got %s", Version, index.Version)
	}
	// Three flushes of the same run collapse into one index entry.
	if len(index.Runs) != 1 {
		t.Fatalf("expected 1 run entry, got %d", len(index.Runs))
	}
	entry := index.Runs[0]
	if entry.Status != core.StatusPassed || entry.Passed != 1 {
		t.Errorf("index entry out of date: %+v", entry)
	}
	if index.UpdateSeq != 3 {
		t.Errorf("expected update sequence 3, got %d", index.UpdateSeq)
	}

	var detail core.TestResult
	readJSON(t, filepath.Join(dir, entry.DataFile), &detail)
	if detail.ID != final.ID || len(detail.Steps) != 1 {
		t.Errorf("detail file does not match the final result: %+v", detail)
	}
}

func TestWriter_MultipleRuns(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	for _, name := range []string{"a.yaml", "b.yaml"} {
		agg := NewAggregator("flows/"+name, name, "batch-7", "flows")
		agg.Add(step("s", core.StatusPassed))
		w.RunFinished(agg.Finalize())
	}

	var index Index
	readJSON(t, filepath.Join(dir, "report.json"), &index)
	if len(index.Runs) != 2 {
		t.Fatalf("expected 2 run entries, got %d", len(index.Runs))
	}
	for _, entry := range index.Runs {
		if entry.BatchID != "batch-7" {
			t.Errorf("expected batch id on %s, got %q", entry.FileName, entry.BatchID)
		}
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}
