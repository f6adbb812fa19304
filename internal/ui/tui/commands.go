package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/infra/execstep"
	"github.com/cigrirepo/Floww/internal/infra/httpprobe"
	"github.com/cigrirepo/Floww/internal/infra/proclaunch"
	"github.com/cigrirepo/Floww/internal/infra/runstore"
	"github.com/cigrirepo/Floww/internal/infra/workspacefinder"
	"github.com/cigrirepo/Floww/internal/infra/yamlenv"
	"github.com/cigrirepo/Floww/internal/infra/yamlpipeline"
	"github.com/cigrirepo/Floww/internal/usecase"
)

func cmdRefreshWorkspace(deps Deps) tea.Cmd {
	return func() tea.Msg {
		wd, err := os.Getwd()
		if err != nil {
			return workspaceRefreshedMsg{cwd: "", found: false, err: fmt.Errorf("getwd: %w", err)}
		}
		if deps.WorkspaceLocator == nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: errors.New("WorkspaceLocator is nil")}
		}

		root, findErr := deps.WorkspaceLocator.FindRoot(wd)
		if findErr != nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: findErr}
		}

		return workspaceRefreshedMsg{cwd: wd, found: true, root: root, err: nil}
	}
}

func cmdInitWorkspaceHere(deps Deps, root string) tea.Cmd {
	return func() tea.Msg {
		if deps.WorkspaceInitializer == nil {
			return initWorkspaceDoneMsg{root: root, err: errors.New("WorkspaceInitializer is nil")}
		}

		err := deps.WorkspaceInitializer.Init(domain.WorkspaceSpec{Root: root}, true)
		return initWorkspaceDoneMsg{root: root, err: err}
	}
}

func cmdLoadPipelines(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return pipelinesLoadedMsg{root: root, err: err}
		}

		loader := yamlpipeline.NewLoader(
			yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
		)

		refs, err := loader.ListPipelines(root)
		return pipelinesLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdLoadEnvironments(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return envsLoadedMsg{root: root, err: err}
		}

		loader := yamlenv.NewLoader(
			root,
			yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
		)

		refs, err := loader.ListEnvironments(root)
		return envsLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdPreviewPipeline(path string) tea.Cmd {
	return func() tea.Msg {
		p := filepath.Clean(path)

		loader := yamlpipeline.NewLoader()
		pipe, err := loader.LoadPipeline(p)
		if err != nil {
			return pipelinePreviewMsg{path: p, preview: "", err: err}
		}

		var b strings.Builder
		b.WriteString("Pipeline: ")
		b.WriteString(pipe.Name)
		b.WriteString("\n\n")

		if len(pipe.Vars) > 0 {
			b.WriteString("Vars:\n")
			for k, v := range pipe.Vars {
				b.WriteString("  - ")
				b.WriteString(k)
				b.WriteString(" = ")
				b.WriteString(v)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}

		b.WriteString("Steps:\n")
		for _, s := range pipe.Steps {
			b.WriteString("  - ")
			b.WriteString(string(s.Kind))
			b.WriteString("  ")
			b.WriteString(s.Name)
			b.WriteString("\n    ")
			if s.Kind == domain.StepSmoke && s.Smoke != nil {
				b.WriteString(strings.Join(s.Smoke.App, " "))
				b.WriteString(fmt.Sprintf("  → http://localhost:%d%s", s.Smoke.Port, s.Smoke.Path))
			} else {
				b.WriteString(strings.Join(s.Command, " "))
			}
			b.WriteString("\n")
		}

		return pipelinePreviewMsg{path: p, preview: b.String(), err: nil}
	}
}

func listenRunner(ch <-chan runnerDoneMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return runnerDoneMsg{err: errors.New("runner channel closed")}
		}
		return msg
	}
}

func startRunAsync(
	workspaceRoot, pipelinePath, envName string,
	log *slog.Logger,
	debug bool,
) (chan runnerDoneMsg, tea.Cmd) {
	ch := make(chan runnerDoneMsg, 1)

	if log == nil {
		log = slog.Default()
	}

	go func() {
		defer close(ch)

		log.Info("run.start",
			"workspace", workspaceRoot,
			"pipeline_path", pipelinePath,
			"env", envName,
			"debug", debug,
		)

		cfg, err := workspacefinder.LoadConfig(workspaceRoot)
		if err != nil {
			log.Error("run.load_config.failed", "err", err)
			ch <- runnerDoneMsg{err: err}
			return
		}

		if strings.TrimSpace(envName) == "" {
			envName = cfg.Defaults.Environment
		}

		pipeLoader := yamlpipeline.NewLoader(
			yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
		)
		envLoader := yamlenv.NewLoader(
			workspaceRoot,
			yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
		)

		prober := httpprobe.New(httpprobe.NewClient(httpprobe.DefaultClientConfig()))
		store := runstore.NewJSONStore(workspaceRoot, cfg, runstore.WithIndex(true))

		uc := usecase.NewRunPipeline(pipeLoader, envLoader, execstep.New(), proclaunch.New(), prober, store)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		run, id, execErr := uc.Execute(ctx, pipelinePath, envName)

		if execErr != nil {
			log.Error("run.failed", "err", execErr, "saved_id", id)
		} else {
			log.Info("run.ok", "saved_id", id, "failed_steps", run.FailedSteps())
		}

		for _, sr := range run.Results {
			switch {
			case sr.Skipped:
				log.Warn("step.skipped", "name", sr.Name)
			case sr.Error != nil:
				log.Warn("step.error",
					"name", sr.Name,
					"kind", string(sr.Error.Kind),
					"message", sr.Error.Message,
					"exit_code", sr.ExitCode,
					"duration_ms", sr.DurationMS,
				)
			case debug:
				attrs := []any{
					"name", sr.Name,
					"exit_code", sr.ExitCode,
					"duration_ms", sr.DurationMS,
				}
				if sr.Probe != nil {
					attrs = append(attrs,
						"probe_url", sr.Probe.URL,
						"probe_status", sr.Probe.StatusCode,
						"probe_attempts", sr.Probe.Attempts,
					)
				}
				log.Debug("step.ok", attrs...)
			}
		}

		ch <- runnerDoneMsg{run: run, id: id, err: execErr}
	}()

	return ch, listenRunner(ch)
}
