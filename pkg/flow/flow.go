// Package flow handles parsing and representation of YAML test-flow files.
package flow

// TestFlow represents a parsed flow file.
type TestFlow struct {
	SourcePath  string     // Path to the source file
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Config      Config     `yaml:"config"`
	BeforeTest  []TestStep `yaml:"beforeTest"`
	Steps       []TestStep `yaml:"steps"`
	AfterTest   []TestStep `yaml:"afterTest"`
	Flow        string     `yaml:"flow"` // Pure delegation to another flow file
}

// Config represents flow-level configuration, shallow-merged into nested flows.
type Config struct {
	BaseURL string            `yaml:"baseUrl"`
	Headers map[string]string `yaml:"headers"`
	Timeout int               `yaml:"timeout"` // Request timeout in ms
}

// Merge returns a copy of c with non-zero fields of other applied over it.
func (c Config) Merge(other Config) Config {
	merged := c
	if other.BaseURL != "" {
		merged.BaseURL = other.BaseURL
	}
	if other.Timeout > 0 {
		merged.Timeout = other.Timeout
	}
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		merged.Headers = headers
	}
	return merged
}

// Flatten returns beforeTest, steps, and afterTest as one contiguous,
// zero-based index space. Step indices reported during execution and the
// indices produced by MapSteps both refer to this ordering.
func (f *TestFlow) Flatten() []TestStep {
	steps := make([]TestStep, 0, len(f.BeforeTest)+len(f.Steps)+len(f.AfterTest))
	steps = append(steps, f.BeforeTest...)
	steps = append(steps, f.Steps...)
	steps = append(steps, f.AfterTest...)
	return steps
}
