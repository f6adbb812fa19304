package domain

import "time"

// StepKind identifies how a pipeline step is executed.
type StepKind string

const (
	// StepRun executes a command to completion and checks its exit code.
	StepRun StepKind = "run"
	// StepSmoke launches the app as a background process and probes it over HTTP.
	StepSmoke StepKind = "smoke"
)

// ReadinessStrategy selects how a smoke step decides the app is ready to probe.
type ReadinessStrategy string

const (
	// ReadyDelay waits a fixed delay and then issues a single probe.
	ReadyDelay ReadinessStrategy = "delay"
	// ReadyPoll probes repeatedly until success or until the timeout elapses.
	ReadyPoll ReadinessStrategy = "poll"
)

// Defaults for smoke-step readiness. The delay default mirrors the classic
// "sleep 15 && curl" CI idiom this tool replaces.
const (
	DefaultReadyDelayMS   = 15000
	DefaultPollIntervalMS = 500
	DefaultPollTimeoutMS  = 30000
	DefaultStopGraceMS    = 5000
)

// ReadinessSpec controls the wait-before-probe behavior of a smoke step.
type ReadinessSpec struct {
	Strategy   ReadinessStrategy
	DelayMS    int // delay strategy: fixed wait before the single probe
	IntervalMS int // poll strategy: pause between probes
	TimeoutMS  int // poll strategy: total probing window
}

// JSONPathAssertion defines a JSONPath-based check against the probe body.
type JSONPathAssertion struct {
	Exists   bool
	Eq       *string
	Contains *string
}

// ProbeAssertSpec defines success checks applied to the health probe response.
// When empty, any completed response with status < 400 passes.
type ProbeAssertSpec struct {
	// Status is an exact expected HTTP status code (optional).
	Status *int

	// MaxLatencyMS is a maximum allowed probe latency in milliseconds (optional).
	MaxLatencyMS *int

	// JSONPath contains JSONPath assertions keyed by expression (optional).
	JSONPath map[string]JSONPathAssertion
}

// SmokeSpec describes a smoke step: launch the app, wait, probe over HTTP,
// then tear the process down.
type SmokeSpec struct {
	// App is the argv of the application process.
	App []string

	// Port the app is expected to bind; the probe targets localhost:<Port>.
	Port int

	// Path of the probe request. Defaults to "/".
	Path string

	Ready  ReadinessSpec
	Assert ProbeAssertSpec

	// StopGraceMS bounds how long the app may take to exit after a
	// termination signal before it is killed.
	StopGraceMS int
}

// StepSpec describes a single pipeline step.
type StepSpec struct {
	Name string
	Kind StepKind

	// Run steps.
	Command   []string
	Dir       string
	Env       Vars // extra env for this step only
	TimeoutMS *int

	// Smoke steps.
	Smoke *SmokeSpec
}

// Pipeline groups ordered steps under one logical unit (Git-friendly).
type Pipeline struct {
	Name string

	// Vars are default variables available to all steps.
	// Environment vars override them.
	Vars Vars

	Steps []StepSpec
}

// PipelineRef is a lightweight reference to a pipeline file on disk.
type PipelineRef struct {
	Name string
	Path string
}

// Command is a fully resolved executable unit handed to infra runners.
type Command struct {
	Argv []string
	Dir  string

	// Env is exported into the child process environment on top of the
	// parent environment.
	Env Vars

	// Timeout bounds the whole execution. Zero means no per-command timeout.
	Timeout time.Duration
}
