package flow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a document-shape or parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*TestFlow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses YAML flow content. A flow is either a single mapping document,
// or two documents where the first holds the base fields and the second is
// either the step list (sequence) or extra fields shallow-merged over the
// first (mapping). Any other shape is an error.
func Parse(data []byte, sourcePath string) (*TestFlow, error) {
	parts := splitYAMLDocuments(string(data))

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}
	if len(parts) > 2 {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("expected at most 2 documents, got %d", len(parts)),
		}
	}

	tf := &TestFlow{SourcePath: sourcePath}

	first, err := parseNode(parts[0], sourcePath)
	if err != nil {
		return nil, err
	}
	if first.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    first.Line,
			Message: "flow document must be a mapping",
		}
	}
	if err := first.Decode(tf); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid flow: %v", err),
		}
	}

	if len(parts) == 2 {
		second, err := parseNode(parts[1], sourcePath)
		if err != nil {
			return nil, err
		}
		switch second.Kind {
		case yaml.SequenceNode:
			var steps []TestStep
			if err := second.Decode(&steps); err != nil {
				return nil, &ParseError{
					Path:    sourcePath,
					Line:    second.Line,
					Message: fmt.Sprintf("invalid steps: %v", err),
				}
			}
			tf.Steps = steps
		case yaml.MappingNode:
			// Shallow merge: keys present in the second document win.
			if err := second.Decode(tf); err != nil {
				return nil, &ParseError{
					Path:    sourcePath,
					Line:    second.Line,
					Message: fmt.Sprintf("invalid flow: %v", err),
				}
			}
		default:
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    second.Line,
				Message: "second document must be a step list or a mapping",
			}
		}
	}

	if err := validateSteps(tf); err != nil {
		return nil, err
	}

	return tf, nil
}

// parseNode unmarshals one document and unwraps the document node.
func parseNode(content, sourcePath string) (*yaml.Node, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(content), &node); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return node.Content[0], nil
	}
	if node.Kind == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: "empty document",
		}
	}
	return &node, nil
}

// validateSteps checks that every step is exactly one of action, flow
// reference, script, or assert.
func validateSteps(tf *TestFlow) error {
	check := func(section string, steps []TestStep) error {
		for i, s := range steps {
			if s.Kind() == KindInvalid {
				return &ParseError{
					Path: tf.SourcePath,
					Message: fmt.Sprintf("%s[%d] (%s): step must be exactly one of action, flow, script, or assert",
						section, i, s.Name),
				}
			}
		}
		return nil
	}
	if err := check("beforeTest", tf.BeforeTest); err != nil {
		return err
	}
	if err := check("steps", tf.Steps); err != nil {
		return err
	}
	return check("afterTest", tf.AfterTest)
}

// splitYAMLDocuments splits content on top-level "---" dividers, ignoring
// dividers inside multiline block scalars.
func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}
