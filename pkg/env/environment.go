// Package env implements the run environment: a shared variable store with
// placeholder interpolation, mock-value generation, and response extraction.
package env

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/Jeffail/gabs/v2"
)

// placeholderPattern matches {{expr}} occurrences.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Environment is the single mutable variable store for one run. It is shared
// by reference through every step and nested flow invocation: extraction
// writes into it, interpolation reads from it. This is a deliberate global
// scope; values written by any step are visible to every later step,
// including inside nested flows.
//
// Writes only happen from the run's own sequential progression, but
// observers may read at any time, so access is guarded.
type Environment struct {
	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty Environment.
func New() *Environment {
	return &Environment{values: make(map[string]any)}
}

// Set stores a value.
func (e *Environment) Set(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[name] = value
}

// Get returns a value and whether it exists.
func (e *Environment) Get(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[name]
	return v, ok
}

// Snapshot returns a copy of all values for read-only use.
func (e *Environment) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := make(map[string]any, len(e.values))
	for k, v := range e.values {
		snap[k] = v
	}
	return snap
}

// Interpolate replaces every {{expr}} in text. A recognized mock expression
// generates a fresh value; anything else is looked up in the environment.
// Unresolved placeholders stay literal so a missing variable is visible in
// the output instead of silently blanked.
func (e *Environment) Interpolate(text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])

		if mock, ok := generateMock(expr); ok {
			return mock
		}

		if v, ok := e.Get(expr); ok {
			return FormatValue(v)
		}
		return match
	})
}

// DeepInterpolate applies Interpolate recursively through strings, slices,
// and maps, leaving other types untouched.
func (e *Environment) DeepInterpolate(value any) any {
	switch v := value.(type) {
	case string:
		return e.Interpolate(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = e.DeepInterpolate(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = e.DeepInterpolate(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = e.Interpolate(item)
		}
		return out
	default:
		return value
	}
}

// Extract walks each "body.<dotPath>" entry through the parsed response body
// and writes defined values into the environment. Entries that do not
// resolve are skipped, never erased.
func (e *Environment) Extract(spec map[string]string, body []byte) error {
	if len(spec) == 0 {
		return nil
	}

	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return err
	}

	for name, path := range spec {
		dotPath, ok := strings.CutPrefix(path, "body.")
		if !ok {
			continue
		}
		if v := parsed.Path(dotPath); v != nil {
			e.Set(name, v.Data())
		}
	}
	return nil
}

// ResolvePath walks a "body.<dotPath>" expression through a parsed body and
// returns the value at that path.
func ResolvePath(body []byte, path string) (any, bool) {
	dotPath, ok := strings.CutPrefix(path, "body.")
	if !ok {
		return nil, false
	}
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, false
	}
	v := parsed.Path(dotPath)
	if v == nil {
		return nil, false
	}
	return v.Data(), true
}

// FormatValue renders a value for interpolation into text. Numbers keep
// their shortest decimal form, structured values render as JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
