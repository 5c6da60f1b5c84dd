package executor

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/apiflow-dev/apiflow-runner/pkg/env"
)

// ScriptEngine evaluates script steps with goja. The environment is exposed
// as a `vars` object; console.log output is forwarded to the run's log
// stream so it shows up attached to the running step.
type ScriptEngine struct {
	mu          sync.Mutex
	runtime     *goja.Runtime
	environment *env.Environment
	onLog       func(string)
}

// NewScriptEngine creates a script engine bound to the run's environment.
func NewScriptEngine(environment *env.Environment, onLog func(string)) *ScriptEngine {
	se := &ScriptEngine{
		runtime:     goja.New(),
		environment: environment,
		onLog:       onLog,
	}
	se.setupConsole()
	return se
}

func (se *ScriptEngine) setupConsole() {
	console := se.runtime.NewObject()
	logFunc := func(call goja.FunctionCall) goja.Value {
		if se.onLog == nil {
			return goja.Undefined()
		}
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		se.onLog(fmt.Sprintln(args...))
		return goja.Undefined()
	}
	_ = console.Set("log", logFunc)
	_ = console.Set("error", logFunc)
	_ = console.Set("warn", logFunc)
	_ = se.runtime.Set("console", console)
}

// Run evaluates a script. Assignments to `vars` properties are written back
// into the shared environment when the script completes.
func (se *ScriptEngine) Run(script string) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	// goja wraps Go maps with write-through semantics, so mutations land in
	// this snapshot and are folded back below.
	vars := se.environment.Snapshot()
	if err := se.runtime.Set("vars", vars); err != nil {
		return err
	}

	if _, err := se.runtime.RunString(script); err != nil {
		return fmt.Errorf("script failed: %w", err)
	}

	for k, v := range vars {
		se.environment.Set(k, v)
	}
	return nil
}
