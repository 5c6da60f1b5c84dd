// Package executor orchestrates flow execution: the HTTP step executor, the
// recursive flow composer, and the run-level invocation surface.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
	"github.com/apiflow-dev/apiflow-runner/pkg/env"
	"github.com/apiflow-dev/apiflow-runner/pkg/events"
	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
	"github.com/apiflow-dev/apiflow-runner/pkg/logger"
	"github.com/apiflow-dev/apiflow-runner/pkg/report"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Files    FileProvider      // nil = OS filesystem
	Sink     events.Sink       // Receives the progress event stream
	Config   flow.Config       // Workspace-level defaults merged under each flow
	Pacing   time.Duration     // Optional delay between steps, cosmetic only
	Reporter *report.Writer    // Optional live JSON report output
	Env      map[string]string // Initial environment values
}

// Runner owns run execution. Exactly one run is active at a time per Runner;
// a second RunFlow while one is in flight returns an error.
type Runner struct {
	mu      sync.Mutex
	running bool
	cfg     RunnerConfig
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{cfg: cfg}
}

// RunFlow executes one flow file from source text. onUpdate receives
// incremental partial results as steps complete; onStepComplete receives
// each StepResult. The context carries the run-level cancellation: steps in
// flight settle, steps not yet started are reported as cancelled.
func (r *Runner) RunFlow(ctx context.Context, source []byte, fileID, fileName string,
	onUpdate func(*core.TestResult), onStepComplete func(core.StepResult)) (*core.TestResult, error) {

	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	return r.runOne(ctx, source, fileID, fileName, "", "", onUpdate, onStepComplete)
}

// RunFolder executes every flow file in a folder strictly sequentially,
// tagging each file's result with a shared batch ID. Files never merge into
// one record; batch summaries group on BatchID later.
func (r *Runner) RunFolder(ctx context.Context, dir string, paths []string,
	onUpdate func(*core.TestResult), onStepComplete func(core.StepResult)) ([]*core.TestResult, error) {

	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	batchID := uuid.NewString()
	folderName := filepath.Base(dir)
	sort.Strings(paths)

	results := make([]*core.TestResult, 0, len(paths))
	for _, path := range paths {
		files := r.cfg.Files
		if files == nil {
			files = OSFileProvider{}
		}
		data, err := files.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read flow file %s: %v", path, err)
			continue
		}

		result, err := r.runOne(ctx, data, path, filepath.Base(path), batchID, folderName, onUpdate, onStepComplete)
		if err != nil {
			logger.Error("Flow %s failed to start: %v", path, err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, source []byte, fileID, fileName, batchID, folderName string,
	onUpdate func(*core.TestResult), onStepComplete func(core.StepResult)) (*core.TestResult, error) {

	tf, err := flow.Parse(source, fileID)
	if err != nil {
		return nil, err
	}

	environment := env.New()
	for k, v := range r.cfg.Env {
		environment.Set(k, v)
	}

	agg := report.NewAggregator(fileID, fileName, batchID, folderName)
	if r.cfg.Reporter != nil {
		r.cfg.Reporter.RunStarted(agg.Result())
	}

	composer := NewComposer(ComposerConfig{
		Files:       r.cfg.Files,
		Environment: environment,
		Sink:        r.cfg.Sink,
		Pacing:      r.cfg.Pacing,
		OnStep: func(sr core.StepResult) {
			agg.Add(sr)
			if onStepComplete != nil {
				onStepComplete(sr)
			}
			if onUpdate != nil {
				onUpdate(agg.Result())
			}
			if r.cfg.Reporter != nil {
				r.cfg.Reporter.RunUpdated(agg.Result())
			}
		},
	})

	name := tf.Name
	if name == "" {
		name = fileName
	}
	r.publish(events.FlowStarted{Depth: 0, FlowPath: fileID, FlowName: name})
	logger.Info("Run started: %s (%s)", name, fileID)

	composer.RunFile(ctx, tf, r.cfg.Config, fileID, 0)

	result := agg.Finalize()
	if ctx.Err() != nil && result.Failed == 0 {
		result.Status = core.StatusCancelled
	}

	r.publish(events.FlowFinished{Depth: 0, Status: result.Status})
	logger.Info("Run finished: %s status=%s passed=%d failed=%d",
		name, result.Status, result.Passed, result.Failed)

	if r.cfg.Reporter != nil {
		r.cfg.Reporter.RunFinished(result)
	}
	return result, nil
}

func (r *Runner) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("a run is already in progress")
	}
	r.running = true
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) publish(ev events.Event) {
	if r.cfg.Sink != nil {
		r.cfg.Sink.Publish(ev)
	}
}
