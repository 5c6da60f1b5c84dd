// Package report folds the step stream into per-file results and writes
// live JSON report output.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
)

// Aggregator folds a flat stream of StepResults into one TestResult. Each
// Add replaces the published result snapshot wholesale, so concurrent
// readers of Result never observe a half-applied update.
type Aggregator struct {
	result *core.TestResult
	start  time.Time
}

// NewAggregator creates an aggregator for one run of one file. batchID and
// folderName are empty outside folder-level batches.
func NewAggregator(fileID, fileName, batchID, folderName string) *Aggregator {
	now := time.Now()
	return &Aggregator{
		start: now,
		result: &core.TestResult{
			ID:         uuid.NewString(),
			FileID:     fileID,
			FileName:   fileName,
			Status:     core.StatusRunning,
			Timestamp:  now,
			BatchID:    batchID,
			FolderName: folderName,
		},
	}
}

// Add records one step result.
func (a *Aggregator) Add(sr core.StepResult) {
	next := *a.result
	next.Steps = append(append([]core.StepResult(nil), a.result.Steps...), sr)
	switch sr.Status {
	case core.StatusPassed:
		next.Passed++
	case core.StatusFailed:
		next.Failed++
	}
	next.TotalDuration = time.Since(a.start)
	a.result = &next
}

// Result returns the current snapshot for live display.
func (a *Aggregator) Result() *core.TestResult {
	return a.result
}

// Finalize computes the terminal status and returns the finished result.
func (a *Aggregator) Finalize() *core.TestResult {
	next := *a.result
	next.TotalDuration = time.Since(a.start)
	if next.Failed > 0 {
		next.Status = core.StatusFailed
	} else {
		next.Status = core.StatusPassed
	}
	a.result = &next
	return a.result
}
