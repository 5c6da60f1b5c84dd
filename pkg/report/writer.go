package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
)

// Index is the report.json root: one entry per run, small enough to poll.
type Index struct {
	Version     string     `json:"version"`
	UpdateSeq   uint64     `json:"updateSeq"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Runs        []RunEntry `json:"runs"`
}

// RunEntry is the index entry for one run.
type RunEntry struct {
	ID       string      `json:"id"`
	FileName string      `json:"fileName"`
	Status   core.Status `json:"status"`
	Passed   int         `json:"passed"`
	Failed   int         `json:"failed"`
	DataFile string      `json:"dataFile"`
	BatchID  string      `json:"batchId,omitempty"`
}

// Version is the report schema version.
const Version = "1.0.0"

// Writer persists live run results as JSON: an index file plus one detail
// file per run, each written atomically so a polling viewer never reads a
// torn document.
type Writer struct {
	mu        sync.Mutex
	outputDir string
	index     Index
}

// NewWriter creates a Writer rooted at outputDir.
func NewWriter(outputDir string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Join(outputDir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Writer{
		outputDir: outputDir,
		index:     Index{Version: Version},
	}, nil
}

// RunStarted registers a new run in the index.
func (w *Writer) RunStarted(result *core.TestResult) {
	w.update(result)
}

// RunUpdated flushes an in-progress snapshot.
func (w *Writer) RunUpdated(result *core.TestResult) {
	w.update(result)
}

// RunFinished flushes the terminal state of a run.
func (w *Writer) RunFinished(result *core.TestResult) {
	w.update(result)
}

func (w *Writer) update(result *core.TestResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dataFile := filepath.Join("runs", result.ID+".json")
	entry := RunEntry{
		ID:       result.ID,
		FileName: result.FileName,
		Status:   result.Status,
		Passed:   result.Passed,
		Failed:   result.Failed,
		DataFile: dataFile,
		BatchID:  result.BatchID,
	}

	found := false
	for i := range w.index.Runs {
		if w.index.Runs[i].ID == result.ID {
			w.index.Runs[i] = entry
			found = true
			break
		}
	}
	if !found {
		w.index.Runs = append(w.index.Runs, entry)
	}
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()

	if err := atomicWriteJSON(filepath.Join(w.outputDir, dataFile), result); err != nil {
		return
	}
	_ = atomicWriteJSON(filepath.Join(w.outputDir, "report.json"), w.index)
}

// atomicWriteJSON writes JSON via a temp file and rename so readers never
// see a partial write.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
