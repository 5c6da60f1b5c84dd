package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
	"github.com/apiflow-dev/apiflow-runner/pkg/env"
	"github.com/apiflow-dev/apiflow-runner/pkg/events"
	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
	"github.com/apiflow-dev/apiflow-runner/pkg/logger"
)

// FileProvider resolves flow references to file contents. The runner uses
// the OS implementation; tests provide in-memory maps.
type FileProvider interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileProvider reads flow files from the local filesystem.
type OSFileProvider struct{}

// ReadFile implements FileProvider.
func (OSFileProvider) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //#nosec G304 -- path comes from user flow files
}

// Composer drives one run: it walks a flow's step list in order, delegates
// action steps to the StepExecutor, and recursively descends into flow
// references, keeping the shared environment and pass/fail totals.
type Composer struct {
	files       FileProvider
	environment *env.Environment
	exec        *StepExecutor
	script      *ScriptEngine
	onStep      func(core.StepResult)
	sink        events.Sink
	pacing      time.Duration

	// Flow files currently being executed on this descent chain. A
	// reference back into this set is a cycle and fails fast instead of
	// recursing forever.
	inProgress map[string]struct{}

	baseDir string // Directory of the current flow, for reference resolution
	fileID  string // Identity of the current flow file
}

// ComposerConfig wires a Composer.
type ComposerConfig struct {
	Files       FileProvider
	Environment *env.Environment
	OnStep      func(core.StepResult)
	Sink        events.Sink
	Pacing      time.Duration
}

// NewComposer creates a Composer for one run.
func NewComposer(cfg ComposerConfig) *Composer {
	files := cfg.Files
	if files == nil {
		files = OSFileProvider{}
	}
	environment := cfg.Environment
	if environment == nil {
		environment = env.New()
	}
	c := &Composer{
		files:       files,
		environment: environment,
		onStep:      cfg.OnStep,
		sink:        cfg.Sink,
		pacing:      cfg.Pacing,
		inProgress:  make(map[string]struct{}),
	}
	c.exec = NewStepExecutor(environment)
	c.script = NewScriptEngine(environment, func(msg string) {
		c.publish(events.Log{Message: msg})
	})
	return c
}

// RunFile executes a parsed flow file as the root of this composer's descent.
// Step indices restart at zero for the file's flattened
// beforeTest+steps+afterTest ordering.
func (c *Composer) RunFile(ctx context.Context, tf *flow.TestFlow, cfg flow.Config, fileID string, depth int) (passed, failed int) {
	prevDir, prevID := c.baseDir, c.fileID
	if tf.SourcePath != "" {
		c.baseDir = filepath.Dir(tf.SourcePath)
	}
	c.fileID = fileID
	defer func() { c.baseDir, c.fileID = prevDir, prevID }()

	merged := cfg.Merge(tf.Config)

	// A pure delegation file wraps its reference as a single synthetic step.
	steps := tf.Flatten()
	if len(steps) == 0 && tf.Flow != "" {
		steps = []flow.TestStep{{Name: "Flow: " + tf.Flow, Flow: tf.Flow}}
	}

	return c.Run(ctx, steps, merged, depth)
}

// Run processes a step list in order, returning aggregate pass/fail counts.
// Once the run context is cancelled no new step is issued; the remaining
// steps are reported as cancelled.
func (c *Composer) Run(ctx context.Context, steps []flow.TestStep, cfg flow.Config, depth int) (passed, failed int) {
	for i, step := range steps {
		if ctx.Err() != nil {
			c.reportCancelled(steps[i:], i, depth)
			break
		}

		p, f := c.runStep(ctx, step, i, cfg, depth)
		passed += p
		failed += f

		if c.pacing > 0 && ctx.Err() == nil {
			time.Sleep(c.pacing)
		}
	}
	return passed, failed
}

func (c *Composer) runStep(ctx context.Context, step flow.TestStep, index int, cfg flow.Config, depth int) (passed, failed int) {
	if step.IsFlowReference() {
		return c.runFlowReference(ctx, step, index, cfg, depth)
	}

	c.publish(events.CommandStarted{Depth: depth, Index: index, Command: step.Describe()})

	var result *core.StepResult
	switch step.Kind() {
	case flow.KindScript:
		result = c.runScript(step, depth)
	case flow.KindAssert:
		result = c.runAssert(step, depth)
	default:
		result = c.exec.Execute(ctx, step, cfg, depth)
	}
	result.FileID = c.fileID
	result.LocalIndex = index

	switch result.Status {
	case core.StatusPassed:
		passed++
		c.publish(events.CommandPassed{Index: index, Duration: result.Duration.Milliseconds()})
	case core.StatusCancelled:
		c.publish(events.CommandFailed{Index: index, Error: result.Error, Duration: result.Duration.Milliseconds()})
	default:
		failed++
		c.publish(events.CommandFailed{Index: index, Error: result.Error, Duration: result.Duration.Milliseconds()})
	}

	c.emit(*result)
	return passed, failed
}

// runFlowReference resolves and descends into a referenced flow file.
// Missing or cyclic references count as one failure and the parent
// continues; nothing is thrown out of the composer.
func (c *Composer) runFlowReference(ctx context.Context, step flow.TestStep, index int, cfg flow.Config, depth int) (passed, failed int) {
	ref := c.environment.Interpolate(step.Flow)
	refPath := ref
	if !filepath.IsAbs(refPath) {
		refPath = filepath.Join(c.baseDir, ref)
	}
	refPath = filepath.Clean(refPath)

	c.emit(c.syntheticResult(fmt.Sprintf("Flow: %s (Start)", ref), core.StatusPassed, "", index, depth))

	if _, active := c.inProgress[refPath]; active {
		err := core.ErrCyclicFlowReference.WithMessage(fmt.Sprintf("cyclic flow reference: %s", ref))
		logger.Error("Cyclic flow reference detected: %s", refPath)
		c.emit(c.syntheticResult(fmt.Sprintf("Flow: %s (Error)", ref), core.StatusFailed, err.Error(), index, depth))
		return 0, 1
	}

	data, err := c.files.ReadFile(refPath)
	if err != nil {
		msg := core.ErrFlowNotFound.WithMessage(fmt.Sprintf("flow file not found: %s", ref)).Error()
		logger.Warn("Flow reference %s could not be read: %v", refPath, err)
		c.emit(c.syntheticResult(fmt.Sprintf("Flow: %s (Error)", ref), core.StatusFailed, msg, index, depth))
		return 0, 1
	}

	child, err := flow.Parse(data, refPath)
	if err != nil {
		c.emit(c.syntheticResult(fmt.Sprintf("Flow: %s (Error)", ref), core.StatusFailed, err.Error(), index, depth))
		return 0, 1
	}

	c.inProgress[refPath] = struct{}{}
	defer delete(c.inProgress, refPath)

	name := child.Name
	if name == "" {
		name = filepath.Base(refPath)
	}
	c.publish(events.FlowStarted{Depth: depth + 1, FlowPath: refPath, FlowName: name})

	passed, failed = c.RunFile(ctx, child, cfg, refPath, depth+1)

	status := core.StatusPassed
	if failed > 0 {
		status = core.StatusFailed
	}
	c.publish(events.FlowFinished{Depth: depth + 1, Status: status})

	return passed, failed
}

func (c *Composer) runScript(step flow.TestStep, depth int) *core.StepResult {
	result := &core.StepResult{
		Name:      step.Describe(),
		Depth:     depth,
		StartTime: time.Now(),
	}
	if err := c.script.Run(c.environment.Interpolate(step.Script)); err != nil {
		result.Status = core.StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = core.StatusPassed
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

func (c *Composer) runAssert(step flow.TestStep, depth int) *core.StepResult {
	result := &core.StepResult{
		Name:      step.Describe(),
		Depth:     depth,
		StartTime: time.Now(),
	}
	ok, err := c.environment.EvalBool(step.Assert)
	switch {
	case err != nil:
		result.Status = core.StatusFailed
		result.Error = err.Error()
	case !ok:
		result.Status = core.StatusFailed
		result.Error = fmt.Sprintf("assertion failed: %s", step.Assert)
	default:
		result.Status = core.StatusPassed
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	return result
}

// reportCancelled reports every remaining step as cancelled without
// starting it.
func (c *Composer) reportCancelled(steps []flow.TestStep, startIndex, depth int) {
	for i, step := range steps {
		c.emit(c.syntheticResult(step.Describe(), core.StatusCancelled,
			core.ErrCancelled.Message, startIndex+i, depth))
	}
}

func (c *Composer) syntheticResult(name string, status core.Status, errMsg string, index, depth int) core.StepResult {
	now := time.Now()
	return core.StepResult{
		Name:       name,
		FileID:     c.fileID,
		LocalIndex: index,
		Depth:      depth,
		Status:     status,
		Error:      errMsg,
		StartTime:  now,
		EndTime:    now,
	}
}

func (c *Composer) emit(result core.StepResult) {
	if c.onStep != nil {
		c.onStep(result)
	}
}

func (c *Composer) publish(ev events.Event) {
	if c.sink != nil {
		c.sink.Publish(ev)
	}
}
