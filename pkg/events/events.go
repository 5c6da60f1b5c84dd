// Package events defines the progress event stream emitted while a run is
// in flight. Both the built-in composer and an out-of-process automation
// backend produce the same event shapes; the progress reconciler is the
// consumer.
package events

import (
	"context"

	"github.com/apiflow-dev/apiflow-runner/pkg/core"
)

// Event is one entry in the ordered progress stream.
type Event interface {
	event()
}

// FlowStarted reports that a flow file began executing.
type FlowStarted struct {
	Depth    int    // 0 for the root file
	FlowPath string // Path as reported by the producer; may need resolution
	FlowName string
}

// FlowFinished reports that the innermost running flow completed.
type FlowFinished struct {
	Depth  int
	Status core.Status
}

// CommandStarted reports that a step began executing.
type CommandStarted struct {
	Depth   int
	Index   int // Step index local to the current flow's numbering
	Command string
}

// CommandPassed reports a successful step.
type CommandPassed struct {
	Index    int
	Duration int64 // milliseconds
}

// CommandFailed reports a failed step.
type CommandFailed struct {
	Index    int
	Error    string
	Duration int64 // milliseconds
}

// Log carries a free-form message attributed to the running step.
type Log struct {
	Depth   int
	Message string
}

func (FlowStarted) event()    {}
func (FlowFinished) event()   {}
func (CommandStarted) event() {}
func (CommandPassed) event()  {}
func (CommandFailed) event()  {}
func (Log) event()            {}

// Sink consumes progress events in order.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// Publish implements Sink.
func (f SinkFunc) Publish(ev Event) { f(ev) }

// RunRequest describes a run delegated to an external automation backend.
type RunRequest struct {
	FilePath string
	FileID   string
	Env      map[string]string
}

// Bridge starts runs in an external backend and exposes its event stream.
// The engine treats the backend purely as an event source; its internal
// automation logic is not part of this contract.
type Bridge interface {
	Invoke(ctx context.Context, req RunRequest) error
	Subscribe(sink Sink) (unsubscribe func())
}
