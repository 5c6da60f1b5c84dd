// Package progress reconciles the ordered progress event stream into
// per-file execution state that live observers can read while a run is in
// flight: which line in which file is executing, and the cumulative status
// of every step index seen so far.
package progress

import (
	"path/filepath"
	"sync"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
	"github.com/apiflow-dev/apiflow-runner/pkg/events"
	"github.com/apiflow-dev/apiflow-runner/pkg/flow"
	"github.com/apiflow-dev/apiflow-runner/pkg/logger"
)

// FileIndex exposes the known file tree for identity resolution. Reported
// event paths may be backend-internal temporaries, absolute, or relative.
type FileIndex interface {
	Paths() []string
}

// SourceProvider supplies flow source text for lazy line mapping.
type SourceProvider interface {
	Source(fileID string) (string, bool)
}

// FileExecutionState is the live execution view of one file. Instances are
// immutable snapshots: the reconciler replaces the whole record on every
// mutation so readers never observe a torn intermediate state. Never
// persisted.
type FileExecutionState struct {
	StepLines    map[int]int         // step index -> 1-based source line
	StepStatuses map[int]core.Status // step index -> status
	StepErrors   map[int]string      // step index -> failure message
	StepLogs     map[int][]string    // step index -> captured log messages

	ExecutingStepIndex int // -1 when nothing is executing in this file
	ExecutingLine      int // -1 when unresolved (line map not ready)
}

func newFileState() *FileExecutionState {
	return &FileExecutionState{
		StepLines:          map[int]int{},
		StepStatuses:       map[int]core.Status{},
		StepErrors:         map[int]string{},
		StepLogs:           map[int][]string{},
		ExecutingStepIndex: -1,
		ExecutingLine:      -1,
	}
}

// clone shallow-copies the snapshot so a mutation never touches a record a
// reader may already hold.
func (s *FileExecutionState) clone() *FileExecutionState {
	next := &FileExecutionState{
		StepLines:          make(map[int]int, len(s.StepLines)),
		StepStatuses:       make(map[int]core.Status, len(s.StepStatuses)),
		StepErrors:         make(map[int]string, len(s.StepErrors)),
		StepLogs:           make(map[int][]string, len(s.StepLogs)),
		ExecutingStepIndex: s.ExecutingStepIndex,
		ExecutingLine:      s.ExecutingLine,
	}
	for k, v := range s.StepLines {
		next.StepLines[k] = v
	}
	for k, v := range s.StepStatuses {
		next.StepStatuses[k] = v
	}
	for k, v := range s.StepErrors {
		next.StepErrors[k] = v
	}
	for k, v := range s.StepLogs {
		next.StepLogs[k] = v
	}
	return next
}

// pathFrame records, per nesting level, the parent path and the step-index
// origin that was in effect before the nested flow began. Stack depth always
// equals the nesting depth reported by the event stream.
type pathFrame struct {
	Path                 string
	OffsetBeforeThisFlow int
}

// Reconciler consumes the ordered event stream and maintains per-file
// execution state with nested-flow path/offset bookkeeping.
type Reconciler struct {
	mu      sync.RWMutex
	files   FileIndex
	sources SourceProvider

	states      map[string]*FileExecutionState
	stack       []pathFrame
	currentPath string
	runBaseDir  string

	// globalOffset is the step-index origin currently in effect: the number
	// of steps started so far in the current file. When a nested flow
	// starts, this is exactly the parent step index that triggered it.
	globalOffset int

	lastStarted map[string]int // per file: most recently started index
}

// NewReconciler creates a Reconciler. files and sources may be nil; identity
// resolution then degrades to normalized paths and line maps stay
// unresolved until SetSource is called.
func NewReconciler(files FileIndex, sources SourceProvider) *Reconciler {
	return &Reconciler{
		files:       files,
		sources:     sources,
		states:      make(map[string]*FileExecutionState),
		lastStarted: make(map[string]int),
	}
}

// Publish implements events.Sink.
func (r *Reconciler) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case events.FlowStarted:
		r.onFlowStarted(e)
	case events.FlowFinished:
		r.onFlowFinished(e)
	case events.CommandStarted:
		r.onCommandStarted(e)
	case events.CommandPassed:
		r.onCommandResult(e.Index, core.StatusPassed, "")
	case events.CommandFailed:
		r.onCommandResult(e.Index, core.StatusFailed, e.Error)
	case events.Log:
		r.onLog(e)
	}
}

// State returns the current snapshot for a file, or nil if its execution
// has not begun. The returned record is immutable.
func (r *Reconciler) State(fileID string) *FileExecutionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[fileID]
}

// CurrentPath returns the file identity currently executing.
func (r *Reconciler) CurrentPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentPath
}

// Depth returns the current nesting depth implied by the path stack.
func (r *Reconciler) Depth() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.stack) == 0 {
		return 0
	}
	return len(r.stack) - 1
}

// SetSource supplies source text for a file after the fact, backfilling the
// line map and any step recorded with an unresolved line.
func (r *Reconciler) SetSource(fileID, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[fileID]
	if !ok {
		return
	}
	next := state.clone()
	next.StepLines = flow.MapSteps(source)
	if next.ExecutingStepIndex >= 0 {
		if line, ok := next.StepLines[next.ExecutingStepIndex]; ok {
			next.ExecutingLine = line
		}
	}
	r.states[fileID] = next
}

func (r *Reconciler) onFlowStarted(e events.FlowStarted) {
	if e.Depth == 0 {
		// A new run: all live state from the previous run is cleared.
		resolved := r.resolvePath(e.FlowPath)
		r.states = map[string]*FileExecutionState{resolved: r.freshState(resolved)}
		r.lastStarted = make(map[string]int)
		r.stack = []pathFrame{{Path: resolved, OffsetBeforeThisFlow: 0}}
		r.currentPath = resolved
		r.runBaseDir = filepath.Dir(resolved)
		r.globalOffset = 0
		return
	}

	currentOffset := r.globalOffset
	resolved := r.resolvePath(e.FlowPath)

	// The parent step that triggered this sub-flow is exactly the current
	// offset; mark it running so the parent file shows progress while the
	// child executes.
	parent := r.ensureState(r.currentPath)
	next := parent.clone()
	next.StepStatuses[currentOffset] = core.StatusRunning
	next.ExecutingStepIndex = currentOffset
	next.ExecutingLine = lineFor(next, currentOffset)
	r.states[r.currentPath] = next

	r.stack = append(r.stack, pathFrame{Path: r.currentPath, OffsetBeforeThisFlow: currentOffset})
	r.currentPath = resolved
	r.ensureState(resolved)
	r.globalOffset = 0
}

func (r *Reconciler) onFlowFinished(e events.FlowFinished) {
	// Resolve the finishing flow's identity before any path restore.
	finishing := r.currentPath
	if state, ok := r.states[finishing]; ok {
		next := state.clone()
		next.ExecutingStepIndex = -1
		next.ExecutingLine = -1
		r.states[finishing] = next
	}

	if len(r.stack) <= 1 {
		// Root flow finished; nothing to pop beyond the seed frame.
		r.globalOffset = 0
		return
	}

	frame := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]

	// Resolve the remembered parent flow-reference step to the finishing
	// status and clear the parent's executing marker.
	status := core.StatusFailed
	if e.Status.IsSuccess() {
		status = core.StatusPassed
	}
	if parent, ok := r.states[frame.Path]; ok {
		next := parent.clone()
		next.StepStatuses[frame.OffsetBeforeThisFlow] = status
		next.ExecutingStepIndex = -1
		next.ExecutingLine = -1
		r.states[frame.Path] = next
	}

	r.currentPath = frame.Path
	// The flow-reference step at the saved offset has now completed, so the
	// origin moves one past it. A following sibling step or flow reference
	// continues the parent's numbering unambiguously.
	r.globalOffset = frame.OffsetBeforeThisFlow + 1
}

func (r *Reconciler) onCommandStarted(e events.CommandStarted) {
	state := r.ensureState(r.currentPath)
	next := state.clone()
	next.StepStatuses[e.Index] = core.StatusRunning
	next.ExecutingStepIndex = e.Index
	next.ExecutingLine = lineFor(next, e.Index)
	r.states[r.currentPath] = next

	r.globalOffset = e.Index + 1
	r.lastStarted[r.currentPath] = e.Index
}

func (r *Reconciler) onCommandResult(index int, status core.Status, errMsg string) {
	state := r.ensureState(r.currentPath)
	next := state.clone()
	next.StepStatuses[index] = status
	if errMsg != "" {
		next.StepErrors[index] = errMsg
	}
	if next.ExecutingStepIndex == index {
		next.ExecutingStepIndex = -1
		next.ExecutingLine = -1
	}
	r.states[r.currentPath] = next
}

func (r *Reconciler) onLog(e events.Log) {
	state, ok := r.states[r.currentPath]
	if !ok {
		return
	}
	index := state.ExecutingStepIndex
	if index < 0 {
		last, ok := r.lastStarted[r.currentPath]
		if !ok {
			return
		}
		index = last
	}
	next := state.clone()
	next.StepLogs[index] = append(append([]string(nil), next.StepLogs[index]...), e.Message)
	r.states[r.currentPath] = next
}

func (r *Reconciler) ensureState(fileID string) *FileExecutionState {
	if state, ok := r.states[fileID]; ok {
		return state
	}
	state := r.freshState(fileID)
	r.states[fileID] = state
	return state
}

// freshState creates a state for a file whose execution is beginning,
// line-mapping it from source text when a provider can supply it.
func (r *Reconciler) freshState(fileID string) *FileExecutionState {
	state := newFileState()
	if r.sources != nil {
		if source, ok := r.sources.Source(fileID); ok {
			state.StepLines = flow.MapSteps(source)
		}
	}
	return state
}

// resolvePath maps a reported event path onto a concrete file identity.
// The fallback is a diagnosable condition, not a silent success.
func (r *Reconciler) resolvePath(reported string) string {
	normalized := filepath.Clean(reported)
	if r.files == nil {
		return normalized
	}

	known := r.files.Paths()

	// 1. Exact match against the known tree.
	for _, p := range known {
		if p == normalized {
			return p
		}
	}

	// 2. Relative to the directory of the file that started the run.
	if r.runBaseDir != "" {
		joined := filepath.Clean(filepath.Join(r.runBaseDir, reported))
		for _, p := range known {
			if p == joined {
				return p
			}
		}
	}

	// 3. Relative to the directory of the current flow path.
	if r.currentPath != "" {
		joined := filepath.Clean(filepath.Join(filepath.Dir(r.currentPath), reported))
		for _, p := range known {
			if p == joined {
				return p
			}
		}
	}

	// 4. Filename suffix match against every known node.
	base := filepath.Base(normalized)
	for _, p := range known {
		if filepath.Base(p) == base {
			return p
		}
	}

	// 5. Fall back to the normalized string itself.
	logger.Warn("Could not resolve reported flow path %q to a known file", reported)
	return normalized
}

func lineFor(state *FileExecutionState, index int) int {
	if line, ok := state.StepLines[index]; ok {
		return line
	}
	return -1
}
