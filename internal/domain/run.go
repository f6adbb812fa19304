package domain

import (
	"context"
	"errors"
	"net"
	"time"
)

// RunErrorKind is a high-level classification of runtime step errors.
type RunErrorKind string

const (
	RunErrorUnknown  RunErrorKind = "unknown"
	RunErrorStart    RunErrorKind = "start"
	RunErrorExit     RunErrorKind = "exit"
	RunErrorTimeout  RunErrorKind = "timeout"
	RunErrorDNS      RunErrorKind = "dns"
	RunErrorConn     RunErrorKind = "connection"
	RunErrorHTTP     RunErrorKind = "http"
	RunErrorCanceled RunErrorKind = "canceled"
)

// RunError represents a structured error produced while executing a step.
type RunError struct {
	Kind    RunErrorKind
	Message string
}

// NewRunError classifies an arbitrary error into a RunError.
func NewRunError(err error) *RunError {
	if err == nil {
		return nil
	}

	kind := RunErrorUnknown
	switch {
	case errors.Is(err, context.Canceled):
		kind = RunErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = RunErrorTimeout
	default:
		var dnsErr *net.DNSError
		var netErr net.Error
		if errors.As(err, &dnsErr) {
			kind = RunErrorDNS
		} else if errors.As(err, &netErr) && netErr.Timeout() {
			kind = RunErrorTimeout
		} else {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				kind = RunErrorConn
			}
		}
	}

	return &RunError{Kind: kind, Message: err.Error()}
}

// NewRunErrorKind builds a RunError with an explicit kind.
func NewRunErrorKind(kind RunErrorKind, message string) *RunError {
	return &RunError{Kind: kind, Message: message}
}

// AssertionResult is the output of a single probe assertion.
type AssertionResult struct {
	Name    string
	Passed  bool
	Message string
}

// OutputSnapshot stores a bounded view of captured process output.
type OutputSnapshot struct {
	Stdout    []byte
	Stderr    []byte
	Truncated bool
}

// ProbeResult is the outcome of the HTTP health probe of a smoke step.
type ProbeResult struct {
	URL        string
	StatusCode int
	LatencyMS  int64

	// Attempts counts probes issued; 1 for the delay strategy, >= 1 for poll.
	Attempts int

	Body      []byte
	Headers   map[string][]string
	Truncated bool

	Assertions []AssertionResult
	Error      *RunError
}

// Failed reports whether the probe counts as a failure: a transport error,
// a curl-style failing status (>= 400), or any failed assertion.
func (p ProbeResult) Failed() bool {
	if p.Error != nil {
		return true
	}
	if p.StatusCode >= 400 {
		return true
	}
	for _, a := range p.Assertions {
		if !a.Passed {
			return true
		}
	}
	return false
}

// StepResult represents the result of executing a single pipeline step.
type StepResult struct {
	Name string
	Kind StepKind

	// Skipped marks steps never attempted because an earlier step failed.
	Skipped bool

	ExitCode   int
	DurationMS int64

	Output OutputSnapshot

	// Probe is set for smoke steps only.
	Probe *ProbeResult

	Error *RunError
}

// Failed reports whether the step failed. Skipped steps are not failures.
func (r StepResult) Failed() bool {
	if r.Skipped {
		return false
	}
	if r.Error != nil {
		return true
	}
	if r.ExitCode != 0 {
		return true
	}
	if r.Probe != nil {
		return r.Probe.Failed()
	}
	return false
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	PipelineName    string
	PipelinePath    string
	EnvironmentName string

	StartedAt time.Time
	EndedAt   time.Time

	Results []StepResult
}

// Failed reports whether any step of the run failed.
func (r RunResult) Failed() bool {
	for _, s := range r.Results {
		if s.Failed() {
			return true
		}
	}
	return false
}

// FailedSteps counts failed steps.
func (r RunResult) FailedSteps() int {
	n := 0
	for _, s := range r.Results {
		if s.Failed() {
			n++
		}
	}
	return n
}

// SkippedSteps counts steps never attempted due to fail-fast.
func (r RunResult) SkippedSteps() int {
	n := 0
	for _, s := range r.Results {
		if s.Skipped {
			n++
		}
	}
	return n
}

// RunArtifact represents a persisted run for reproducibility.
type RunArtifact struct {
	ID string

	PipelineName    string
	PipelinePath    string
	EnvironmentName string

	// Env is a snapshot of the resolved variable set (maskable).
	Env Vars

	StartedAt  time.Time
	FinishedAt time.Time

	Results []StepResult
}
