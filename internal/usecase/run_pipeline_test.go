package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
)

// --- fakes shared across tests ---

type fakePipelineLoader struct {
	pipe domain.Pipeline
}

func (f fakePipelineLoader) LoadPipeline(_ string) (domain.Pipeline, error) {
	return f.pipe, nil
}
func (f fakePipelineLoader) ListPipelines(_ string) ([]domain.PipelineRef, error) {
	return nil, nil
}

type errPipelineLoader struct{ err error }

func (e errPipelineLoader) LoadPipeline(_ string) (domain.Pipeline, error) {
	return domain.Pipeline{}, e.err
}
func (e errPipelineLoader) ListPipelines(_ string) ([]domain.PipelineRef, error) {
	return nil, nil
}

type fakeEnvLoader struct {
	env domain.Environment
}

func (f fakeEnvLoader) LoadEnvironment(_ string) (domain.Environment, error) {
	return f.env, nil
}

type errEnvLoader struct{ err error }

func (e errEnvLoader) LoadEnvironment(_ string) (domain.Environment, error) {
	return domain.Environment{}, e.err
}

// scriptedCommandRunner returns one outcome per call and captures commands.
type scriptedCommandRunner struct {
	outcomes []ports.CommandOutcome
	captured []domain.Command
	idx      int
}

func (s *scriptedCommandRunner) Run(_ context.Context, cmd domain.Command) (ports.CommandOutcome, error) {
	s.captured = append(s.captured, cmd)

	i := s.idx
	s.idx++
	if i < len(s.outcomes) {
		return s.outcomes[i], nil
	}
	return ports.CommandOutcome{ExitCode: 0}, nil
}

type fakeProcess struct {
	done    chan struct{}
	exit    int
	out     domain.OutputSnapshot
	stopped bool
}

func newRunningProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{}), exit: -1}
}

func newExitedProcess(code int) *fakeProcess {
	p := &fakeProcess{done: make(chan struct{}), exit: code}
	close(p.done)
	return p
}

func (p *fakeProcess) Done() <-chan struct{}         { return p.done }
func (p *fakeProcess) ExitCode() int                 { return p.exit }
func (p *fakeProcess) Output() domain.OutputSnapshot { return p.out }
func (p *fakeProcess) Stop(_ time.Duration) error {
	if !p.stopped {
		p.stopped = true
		select {
		case <-p.done:
		default:
			p.exit = 0
			close(p.done)
		}
	}
	return nil
}

type fakeLauncher struct {
	proc     *fakeProcess
	err      error
	captured []domain.Command
}

func (l *fakeLauncher) Start(_ context.Context, cmd domain.Command) (ports.AppProcess, error) {
	l.captured = append(l.captured, cmd)
	if l.err != nil {
		return nil, l.err
	}
	return l.proc, nil
}

// scriptedProber returns one probe result per call.
type scriptedProber struct {
	results []domain.ProbeResult
	calls   int
}

func (s *scriptedProber) Probe(_ context.Context, _ string) domain.ProbeResult {
	i := s.calls
	s.calls++
	if i < len(s.results) {
		return s.results[i]
	}
	if len(s.results) > 0 {
		return s.results[len(s.results)-1]
	}
	return domain.ProbeResult{StatusCode: 200}
}

type fakeStore struct {
	saved bool
	last  domain.RunArtifact
}

func (s *fakeStore) SaveRun(run domain.RunArtifact) (string, error) {
	s.saved = true
	s.last = run
	return "run-123", nil
}

type errStore struct{ err error }

func (s *errStore) SaveRun(_ domain.RunArtifact) (string, error) { return "", s.err }

// --- helpers ---

func ciPipeline() domain.Pipeline {
	return domain.Pipeline{
		Name: "ci",
		Vars: domain.Vars{"port": "8501"},
		Steps: []domain.StepSpec{
			{Name: "install deps", Kind: domain.StepRun, Command: []string{"pip", "install", "-r", "requirements.txt"}},
			{Name: "lint", Kind: domain.StepRun, Command: []string{"flake8", ".", "--max-line-length=120"}},
			{
				Name: "smoke test",
				Kind: domain.StepSmoke,
				Smoke: &domain.SmokeSpec{
					App:   []string{"streamlit", "run", "app.py", "--server.port", "{{port}}"},
					Port:  8501,
					Path:  "/",
					Ready: domain.ReadinessSpec{Strategy: domain.ReadyDelay, DelayMS: 5},
				},
			},
		},
	}
}

func newUC(pipe domain.Pipeline, cr ports.CommandRunner, launcher ports.ProcessLauncher, prober ports.HealthProber, store ports.ArtifactStore) *RunPipeline {
	return NewRunPipeline(
		fakePipelineLoader{pipe: pipe},
		fakeEnvLoader{env: domain.Environment{Name: "ci", Vars: domain.Vars{"OPENAI_API_KEY": "sk-dummy"}}},
		cr, launcher, prober, store,
	)
}

// --- tests ---

func TestRunPipeline_AllStepsPass(t *testing.T) {
	cr := &scriptedCommandRunner{}
	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{results: []domain.ProbeResult{{StatusCode: 200, LatencyMS: 12}}}
	store := &fakeStore{}

	uc := newUC(ciPipeline(), cr, launcher, prober, store)

	run, id, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Failed() {
		t.Fatalf("expected run to pass, got %+v", run.Results)
	}
	if id != "run-123" || !store.saved {
		t.Fatalf("expected artifact saved with id run-123, got %q", id)
	}
	if len(run.Results) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(run.Results))
	}

	smoke := run.Results[2]
	if smoke.Probe == nil || smoke.Probe.StatusCode != 200 {
		t.Fatalf("expected probe result with status 200, got %+v", smoke.Probe)
	}
	if smoke.Probe.Attempts != 1 {
		t.Fatalf("delay strategy must probe exactly once, got %d attempts", smoke.Probe.Attempts)
	}
	if !launcher.proc.stopped {
		t.Fatal("expected the app process to be stopped after the probe")
	}
}

func TestRunPipeline_InstallFailureSkipsRest(t *testing.T) {
	cr := &scriptedCommandRunner{outcomes: []ports.CommandOutcome{{ExitCode: 1}}}
	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{}

	uc := newUC(ciPipeline(), cr, launcher, prober, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !run.Results[0].Failed() {
		t.Fatal("expected install step to fail")
	}
	if !run.Results[1].Skipped || !run.Results[2].Skipped {
		t.Fatalf("expected lint and smoke to be skipped, got %+v", run.Results)
	}
	if len(cr.captured) != 1 {
		t.Fatalf("expected exactly one command run, got %d", len(cr.captured))
	}
	if len(launcher.captured) != 0 {
		t.Fatal("smoke step must not launch anything after an earlier failure")
	}
	if prober.calls != 0 {
		t.Fatal("prober must not be called after an earlier failure")
	}
}

func TestRunPipeline_LintFailureSkipsSmoke(t *testing.T) {
	cr := &scriptedCommandRunner{outcomes: []ports.CommandOutcome{
		{ExitCode: 0},
		{ExitCode: 1, Output: domain.OutputSnapshot{Stdout: []byte("app.py:12:121: E501 line too long")}},
	}}
	launcher := &fakeLauncher{proc: newRunningProcess()}

	uc := newUC(ciPipeline(), cr, launcher, &scriptedProber{}, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Results[0].Failed() {
		t.Fatal("install should pass")
	}
	if !run.Results[1].Failed() {
		t.Fatal("lint should fail")
	}
	if !run.Results[2].Skipped {
		t.Fatal("smoke should be skipped")
	}
	if run.FailedSteps() != 1 || run.SkippedSteps() != 1 {
		t.Fatalf("unexpected counts: %d failed, %d skipped", run.FailedSteps(), run.SkippedSteps())
	}
}

func TestRunPipeline_SmokeAppExitsBeforeProbe(t *testing.T) {
	cr := &scriptedCommandRunner{}
	launcher := &fakeLauncher{proc: newExitedProcess(2)}
	prober := &scriptedProber{}

	uc := newUC(ciPipeline(), cr, launcher, prober, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	smoke := run.Results[2]
	if !smoke.Failed() {
		t.Fatal("expected smoke step to fail")
	}
	if smoke.Probe == nil || smoke.Probe.Error == nil || smoke.Probe.Error.Kind != domain.RunErrorExit {
		t.Fatalf("expected exit-classified probe error, got %+v", smoke.Probe)
	}
	if smoke.ExitCode != 2 {
		t.Fatalf("expected app exit code 2, got %d", smoke.ExitCode)
	}
	if prober.calls != 0 {
		t.Fatal("prober must not run when the app already exited")
	}
}

func TestRunPipeline_SmokeProbeConnectionRefused(t *testing.T) {
	cr := &scriptedCommandRunner{}
	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{results: []domain.ProbeResult{
		{Error: domain.NewRunErrorKind(domain.RunErrorConn, "connection refused")},
	}}

	uc := newUC(ciPipeline(), cr, launcher, prober, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Failed() {
		t.Fatal("expected run to fail on probe error")
	}
	if !launcher.proc.stopped {
		t.Fatal("process must be stopped even when the probe fails")
	}
}

func TestRunPipeline_SmokeLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("executable not found")}

	uc := newUC(ciPipeline(), &scriptedCommandRunner{}, launcher, &scriptedProber{}, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	smoke := run.Results[2]
	if smoke.Error == nil || smoke.Error.Kind != domain.RunErrorStart {
		t.Fatalf("expected start-classified error, got %+v", smoke.Error)
	}
}

func TestRunPipeline_PollRetriesUntilSuccess(t *testing.T) {
	pipe := ciPipeline()
	pipe.Steps[2].Smoke.Ready = domain.ReadinessSpec{
		Strategy:   domain.ReadyPoll,
		IntervalMS: 1,
		TimeoutMS:  2000,
	}

	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{results: []domain.ProbeResult{
		{Error: domain.NewRunErrorKind(domain.RunErrorConn, "connection refused")},
		{Error: domain.NewRunErrorKind(domain.RunErrorConn, "connection refused")},
		{StatusCode: 200},
	}}

	uc := newUC(pipe, &scriptedCommandRunner{}, launcher, prober, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Failed() {
		t.Fatalf("expected run to pass after retries, got %+v", run.Results[2].Probe)
	}
	if got := run.Results[2].Probe.Attempts; got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRunPipeline_PollGivesUpOnTimeout(t *testing.T) {
	pipe := ciPipeline()
	pipe.Steps[2].Smoke.Ready = domain.ReadinessSpec{
		Strategy:   domain.ReadyPoll,
		IntervalMS: 5,
		TimeoutMS:  15,
	}

	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{results: []domain.ProbeResult{
		{Error: domain.NewRunErrorKind(domain.RunErrorConn, "connection refused")},
	}}

	uc := newUC(pipe, &scriptedCommandRunner{}, launcher, prober, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Failed() {
		t.Fatal("expected run to fail when the window elapses")
	}
	if prober.calls < 2 {
		t.Fatalf("expected multiple probe attempts, got %d", prober.calls)
	}
}

func TestRunPipeline_SecretsExportedToSteps(t *testing.T) {
	cr := &scriptedCommandRunner{}
	launcher := &fakeLauncher{proc: newRunningProcess()}
	prober := &scriptedProber{results: []domain.ProbeResult{{StatusCode: 200}}}

	uc := newUC(ciPipeline(), cr, launcher, prober, nil)

	_, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cr.captured[0].Env["OPENAI_API_KEY"]; got != "sk-dummy" {
		t.Fatalf("expected secret exported to command env, got %q", got)
	}
	if _, ok := cr.captured[0].Env["port"]; ok {
		t.Fatal("lowercase template vars must not be exported to the process env")
	}
	if got := launcher.captured[0].Env["OPENAI_API_KEY"]; got != "sk-dummy" {
		t.Fatalf("expected secret exported to app env, got %q", got)
	}
	if launcher.captured[0].Argv[4] != "8501" {
		t.Fatalf("expected resolved app argv, got %v", launcher.captured[0].Argv)
	}
}

func TestRunPipeline_MissingVarFailsStep(t *testing.T) {
	pipe := ciPipeline()
	pipe.Steps[0].Command = []string{"pip", "install", "{{undefined}}"}

	uc := newUC(pipe, &scriptedCommandRunner{}, &fakeLauncher{proc: newRunningProcess()}, &scriptedProber{}, nil)

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Results[0].Failed() {
		t.Fatal("expected step with unresolvable var to fail")
	}
	if !run.Results[1].Skipped {
		t.Fatal("expected following steps to be skipped")
	}
}

func TestRunPipeline_StoreNil(t *testing.T) {
	uc := newUC(ciPipeline(), &scriptedCommandRunner{}, &fakeLauncher{proc: newRunningProcess()},
		&scriptedProber{results: []domain.ProbeResult{{StatusCode: 200}}}, nil)

	_, id, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id when store is nil, got %q", id)
	}
}

func TestRunPipeline_StoreError(t *testing.T) {
	saveErr := errors.New("disk full")
	uc := newUC(ciPipeline(), &scriptedCommandRunner{}, &fakeLauncher{proc: newRunningProcess()},
		&scriptedProber{results: []domain.ProbeResult{{StatusCode: 200}}}, &errStore{err: saveErr})

	run, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err == nil || !errors.Is(err, saveErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	// The run itself completed; results must still be usable.
	if len(run.Results) != 3 {
		t.Fatalf("expected results despite save failure, got %d", len(run.Results))
	}
}

func TestRunPipeline_LoadErrors(t *testing.T) {
	loadErr := errors.New("pipeline not found")
	uc := NewRunPipeline(errPipelineLoader{err: loadErr}, fakeEnvLoader{}, &scriptedCommandRunner{},
		&fakeLauncher{proc: newRunningProcess()}, &scriptedProber{}, nil)

	if _, _, err := uc.Execute(context.Background(), "x", "ci"); !errors.Is(err, loadErr) {
		t.Fatalf("expected pipeline load error, got %v", err)
	}

	envErr := errors.New("env not found")
	uc = NewRunPipeline(fakePipelineLoader{pipe: ciPipeline()}, errEnvLoader{err: envErr}, &scriptedCommandRunner{},
		&fakeLauncher{proc: newRunningProcess()}, &scriptedProber{}, nil)

	if _, _, err := uc.Execute(context.Background(), "x", "ci"); !errors.Is(err, envErr) {
		t.Fatalf("expected env load error, got %v", err)
	}
}

func TestRunPipeline_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := newUC(ciPipeline(), &scriptedCommandRunner{}, &fakeLauncher{proc: newRunningProcess()}, &scriptedProber{}, nil)

	run, _, err := uc.Execute(ctx, "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Failed() {
		t.Fatal("expected run to fail under a canceled context")
	}
	first := run.Results[0]
	if first.Error == nil || first.Error.Kind != domain.RunErrorCanceled {
		t.Fatalf("expected canceled error on first step, got %+v", first.Error)
	}
}

func TestRunPipeline_ArtifactSnapshotsVars(t *testing.T) {
	store := &fakeStore{}
	uc := newUC(ciPipeline(), &scriptedCommandRunner{}, &fakeLauncher{proc: newRunningProcess()},
		&scriptedProber{results: []domain.ProbeResult{{StatusCode: 200}}}, store)

	_, _, err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.last.Env["port"] != "8501" || store.last.Env["OPENAI_API_KEY"] != "sk-dummy" {
		t.Fatalf("expected merged vars snapshot in artifact, got %v", store.last.Env)
	}
	if store.last.PipelineName != "ci" || store.last.EnvironmentName != "ci" {
		t.Fatalf("unexpected artifact identity: %+v", store.last)
	}
}
