package flow

import (
	"fmt"
)

// StepKind identifies what a step does.
type StepKind int

const (
	// KindAction is an HTTP request with optional verify/extract.
	KindAction StepKind = iota
	// KindFlowRef references another flow file.
	KindFlowRef
	// KindScript evaluates a JavaScript snippet against the environment.
	KindScript
	// KindAssert evaluates a boolean expression against the environment.
	KindAssert
	// KindInvalid marks a step that is none or more than one of the above.
	KindInvalid
)

// TestStep is one entry in a flow's step list.
type TestStep struct {
	Name string `yaml:"name"`

	// Action fields
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Body    any               `yaml:"body"`
	Verify  map[string]any    `yaml:"verify"`
	Extract map[string]string `yaml:"extract"`

	// Flow reference
	Flow string `yaml:"flow"`

	// Script / assert steps
	Script string `yaml:"script"`
	Assert string `yaml:"assert"`
}

// Kind classifies the step. A step must be exactly one of action,
// flow reference, script, or assert.
func (s *TestStep) Kind() StepKind {
	kinds := 0
	kind := KindInvalid
	if s.Flow != "" {
		kinds++
		kind = KindFlowRef
	}
	if s.Script != "" {
		kinds++
		kind = KindScript
	}
	if s.Assert != "" {
		kinds++
		kind = KindAssert
	}
	if s.URL != "" || s.Method != "" {
		kinds++
		kind = KindAction
	}
	if kinds != 1 {
		return KindInvalid
	}
	return kind
}

// IsFlowReference returns true if the step references another flow file.
func (s *TestStep) IsFlowReference() bool {
	return s.Kind() == KindFlowRef
}

// Describe returns a human-readable one-line description of the step.
func (s *TestStep) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Kind() {
	case KindFlowRef:
		return fmt.Sprintf("Flow: %s", s.Flow)
	case KindScript:
		return "script"
	case KindAssert:
		return fmt.Sprintf("assert %s", s.Assert)
	case KindAction:
		method := s.Method
		if method == "" {
			method = "GET"
		}
		return fmt.Sprintf("%s %s", method, s.URL)
	}
	return "invalid step"
}
