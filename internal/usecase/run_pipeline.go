package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
	ucassert "github.com/cigrirepo/Floww/internal/usecase/assert"
)

// RunPipeline executes a pipeline step by step with fail-fast semantics:
// the first failed step aborts the run and the remaining steps are recorded
// as skipped.
type RunPipeline struct {
	pipelines ports.PipelineLoader
	envs      ports.EnvironmentLoader
	commands  ports.CommandRunner
	launcher  ports.ProcessLauncher
	prober    ports.HealthProber
	store     ports.ArtifactStore // optional; nil disables persistence

	resolver *domain.VarResolver
	now      func() time.Time
}

type RunOption func(*RunPipeline)

// WithResolver overrides the variable resolver (useful for tests).
func WithResolver(vr *domain.VarResolver) RunOption {
	return func(uc *RunPipeline) {
		if vr != nil {
			uc.resolver = vr
		}
	}
}

// WithNow overrides the clock (useful for tests).
func WithNow(now func() time.Time) RunOption {
	return func(uc *RunPipeline) { uc.now = now }
}

func NewRunPipeline(
	pl ports.PipelineLoader,
	el ports.EnvironmentLoader,
	cr ports.CommandRunner,
	launcher ports.ProcessLauncher,
	prober ports.HealthProber,
	store ports.ArtifactStore,
	opts ...RunOption,
) *RunPipeline {
	uc := &RunPipeline{
		pipelines: pl,
		envs:      el,
		commands:  cr,
		launcher:  launcher,
		prober:    prober,
		store:     store,
		resolver:  domain.NewVarResolver(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute runs the pipeline and returns the run result plus the persisted
// artifact ID (empty when the store is nil). The error return covers
// load/persistence problems; step failures are reported in the result.
func (uc *RunPipeline) Execute(ctx context.Context, pipelinePath string, envNameOrPath string) (domain.RunResult, string, error) {
	pipe, err := uc.pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return domain.RunResult{}, "", err
	}

	env, err := uc.envs.LoadEnvironment(envNameOrPath)
	if err != nil {
		return domain.RunResult{}, "", err
	}

	// pipeline vars < env vars
	vars := domain.Merge(pipe.Vars, env.Vars)

	run := domain.RunResult{
		PipelineName:    pipe.Name,
		PipelinePath:    pipelinePath,
		EnvironmentName: env.Name,
		StartedAt:       uc.now(),
		Results:         make([]domain.StepResult, 0, len(pipe.Steps)),
	}

	aborted := false
	for _, step := range pipe.Steps {
		if aborted {
			run.Results = append(run.Results, domain.StepResult{
				Name:    step.Name,
				Kind:    step.Kind,
				Skipped: true,
			})
			continue
		}

		res := uc.runStep(ctx, step, vars)
		run.Results = append(run.Results, res)

		if res.Failed() {
			aborted = true
		}
	}

	run.EndedAt = uc.now()

	id := ""
	if uc.store != nil {
		id, err = uc.store.SaveRun(domain.RunArtifact{
			PipelineName:    run.PipelineName,
			PipelinePath:    run.PipelinePath,
			EnvironmentName: run.EnvironmentName,
			Env:             vars,
			StartedAt:       run.StartedAt,
			FinishedAt:      run.EndedAt,
			Results:         run.Results,
		})
		if err != nil {
			return run, "", err
		}
	}

	return run, id, nil
}

func (uc *RunPipeline) runStep(ctx context.Context, step domain.StepSpec, vars domain.Vars) domain.StepResult {
	if err := ctx.Err(); err != nil {
		return domain.StepResult{
			Name:  step.Name,
			Kind:  step.Kind,
			Error: domain.NewRunError(err),
		}
	}

	rt, err := uc.resolver.NewRuntime(vars)
	if err != nil {
		return failedStep(step, err)
	}

	resolved, err := rt.ResolveStep(step)
	if err != nil {
		// Config-level issue: missing var, invalid placeholder, etc.
		return failedStep(step, err)
	}

	switch resolved.Kind {
	case domain.StepSmoke:
		return uc.runSmoke(ctx, resolved, vars)
	default:
		return uc.runCommand(ctx, resolved, vars)
	}
}

func (uc *RunPipeline) runCommand(ctx context.Context, step domain.StepSpec, vars domain.Vars) domain.StepResult {
	cmd := domain.Command{
		Argv: step.Command,
		Dir:  step.Dir,
		Env:  domain.Merge(domain.ExportableVars(vars), step.Env),
	}
	if step.TimeoutMS != nil {
		cmd.Timeout = time.Duration(*step.TimeoutMS) * time.Millisecond
	}

	outcome, err := uc.commands.Run(ctx, cmd)
	if err != nil {
		return failedStep(step, err)
	}

	return domain.StepResult{
		Name:       step.Name,
		Kind:       step.Kind,
		ExitCode:   outcome.ExitCode,
		DurationMS: outcome.DurationMS,
		Output:     outcome.Output,
		Error:      outcome.Error,
	}
}

// runSmoke launches the app, applies the readiness policy, probes the health
// endpoint and always tears the process down.
func (uc *RunPipeline) runSmoke(ctx context.Context, step domain.StepSpec, vars domain.Vars) domain.StepResult {
	sm := *step.Smoke
	start := uc.now()

	res := domain.StepResult{
		Name: step.Name,
		Kind: step.Kind,
	}

	proc, err := uc.launcher.Start(ctx, domain.Command{
		Argv: sm.App,
		Dir:  step.Dir,
		Env:  domain.Merge(domain.ExportableVars(vars), step.Env),
	})
	if err != nil {
		res.Error = domain.NewRunErrorKind(domain.RunErrorStart, err.Error())
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}

	grace := time.Duration(sm.StopGraceMS) * time.Millisecond
	if grace <= 0 {
		grace = domain.DefaultStopGraceMS * time.Millisecond
	}

	probe := uc.probeWhenReady(ctx, proc, sm)

	_ = proc.Stop(grace)
	res.Output = proc.Output()
	res.Probe = &probe
	res.DurationMS = time.Since(start).Milliseconds()

	// Exit code of the app is informational: after a successful probe the
	// process is terminated by us, so only pre-probe exits matter.
	if probe.Error != nil && probe.Error.Kind == domain.RunErrorExit {
		res.ExitCode = proc.ExitCode()
	}

	return res
}

func (uc *RunPipeline) probeWhenReady(ctx context.Context, proc ports.AppProcess, sm domain.SmokeSpec) domain.ProbeResult {
	url := probeURL(sm)

	switch sm.Ready.Strategy {
	case domain.ReadyPoll:
		return uc.probePoll(ctx, proc, sm, url)
	default:
		return uc.probeAfterDelay(ctx, proc, sm, url)
	}
}

// probeAfterDelay reproduces the classic "sleep N && curl" behavior: one
// fixed wait, one probe, no retry.
func (uc *RunPipeline) probeAfterDelay(ctx context.Context, proc ports.AppProcess, sm domain.SmokeSpec, url string) domain.ProbeResult {
	delay := time.Duration(sm.Ready.DelayMS) * time.Millisecond
	if sm.Ready.DelayMS <= 0 {
		delay = domain.DefaultReadyDelayMS * time.Millisecond
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-proc.Done():
		return domain.ProbeResult{
			URL:      url,
			Attempts: 0,
			Error:    exitedError(proc),
		}
	case <-ctx.Done():
		return domain.ProbeResult{
			URL:      url,
			Attempts: 0,
			Error:    domain.NewRunError(ctx.Err()),
		}
	}

	probe := uc.prober.Probe(ctx, url)
	probe.URL = url
	probe.Attempts = 1
	uc.assertProbe(&probe, sm)
	return probe
}

// probePoll retries the probe on an interval until success or until the
// window elapses. Opt-in alternative to the fixed delay.
func (uc *RunPipeline) probePoll(ctx context.Context, proc ports.AppProcess, sm domain.SmokeSpec, url string) domain.ProbeResult {
	interval := time.Duration(sm.Ready.IntervalMS) * time.Millisecond
	if sm.Ready.IntervalMS <= 0 {
		interval = domain.DefaultPollIntervalMS * time.Millisecond
	}
	window := time.Duration(sm.Ready.TimeoutMS) * time.Millisecond
	if sm.Ready.TimeoutMS <= 0 {
		window = domain.DefaultPollTimeoutMS * time.Millisecond
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()

	attempts := 0
	var last domain.ProbeResult

	for {
		select {
		case <-proc.Done():
			return domain.ProbeResult{
				URL:      url,
				Attempts: attempts,
				Error:    exitedError(proc),
			}
		case <-ctx.Done():
			return domain.ProbeResult{
				URL:      url,
				Attempts: attempts,
				Error:    domain.NewRunError(ctx.Err()),
			}
		default:
		}

		last = uc.prober.Probe(ctx, url)
		attempts++
		last.URL = url
		last.Attempts = attempts

		if last.Error == nil && last.StatusCode < 400 {
			uc.assertProbe(&last, sm)
			return last
		}

		ticker := time.NewTimer(interval)
		select {
		case <-deadline.C:
			ticker.Stop()
			uc.assertProbe(&last, sm)
			return last
		case <-proc.Done():
			ticker.Stop()
			return domain.ProbeResult{
				URL:      url,
				Attempts: attempts,
				Error:    exitedError(proc),
			}
		case <-ctx.Done():
			ticker.Stop()
			return domain.ProbeResult{
				URL:      url,
				Attempts: attempts,
				Error:    domain.NewRunError(ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}

func (uc *RunPipeline) assertProbe(probe *domain.ProbeResult, sm domain.SmokeSpec) {
	if probe.Error != nil {
		return
	}
	probe.Assertions = ucassert.Evaluate(sm.Assert, probe.StatusCode, probe.LatencyMS, probe.Body)
}

func probeURL(sm domain.SmokeSpec) string {
	path := sm.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://localhost:%d%s", sm.Port, path)
}

func exitedError(proc ports.AppProcess) *domain.RunError {
	return domain.NewRunErrorKind(
		domain.RunErrorExit,
		fmt.Sprintf("app exited before it could be probed (exit code %d)", proc.ExitCode()),
	)
}

func failedStep(step domain.StepSpec, err error) domain.StepResult {
	return domain.StepResult{
		Name:  step.Name,
		Kind:  step.Kind,
		Error: domain.NewRunError(err),
	}
}
