package core

import (
	"time"
)

// RequestSnapshot captures the outgoing request of a step.
type RequestSnapshot struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseSnapshot captures the response of a step.
type ResponseSnapshot struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// StepResult captures the complete outcome of executing a single step.
type StepResult struct {
	// Identity
	Name       string `json:"name"`
	FileID     string `json:"fileId,omitempty"`     // Physical file this result belongs to
	LocalIndex int    `json:"localIndex"`           // 0-based index within that file
	Depth      int    `json:"depth"`                // Nesting level for display indentation

	// Status
	Status Status `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Captured traffic
	Request  *RequestSnapshot  `json:"request,omitempty"`
	Response *ResponseSnapshot `json:"response,omitempty"`

	// Error details
	Error    string        `json:"error,omitempty"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Logs captured while this step was running
	Logs []string `json:"logs,omitempty"`
}

// TestResult captures one run of one flow file.
type TestResult struct {
	ID            string        `json:"id"`
	FileID        string        `json:"fileId"`
	FileName      string        `json:"fileName"`
	Status        Status        `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
	TotalDuration time.Duration `json:"totalDuration"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Steps         []StepResult  `json:"steps"`

	// Set when the run is part of a folder-level batch.
	BatchID    string `json:"batchId,omitempty"`
	FolderName string `json:"folderName,omitempty"`
}

// ComputeSummary recalculates counters and overall status from Steps.
func (r *TestResult) ComputeSummary() {
	r.Passed = 0
	r.Failed = 0
	for _, s := range r.Steps {
		switch s.Status {
		case StatusPassed:
			r.Passed++
		case StatusFailed:
			r.Failed++
		}
	}
	if r.Failed > 0 {
		r.Status = StatusFailed
	} else {
		r.Status = StatusPassed
	}
}
