package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/infra/execstep"
	"github.com/cigrirepo/Floww/internal/infra/httpprobe"
	"github.com/cigrirepo/Floww/internal/infra/proclaunch"
	"github.com/cigrirepo/Floww/internal/infra/runstore"
	"github.com/cigrirepo/Floww/internal/infra/workspacefinder"
	"github.com/cigrirepo/Floww/internal/infra/yamlenv"
	"github.com/cigrirepo/Floww/internal/infra/yamlpipeline"
	"github.com/cigrirepo/Floww/internal/ports"
)

type workspaceCtx struct {
	root string
	cfg  domain.Config

	pipelines ports.PipelineLoader

	envs       ports.EnvironmentLoader
	envCatalog ports.EnvironmentCatalog

	commands ports.CommandRunner
	launcher ports.ProcessLauncher
	prober   ports.HealthProber
	store    ports.ArtifactStore
}

func loadWorkspace(workspaceFlag string) (*workspaceCtx, error) {
	root, err := resolveWorkspaceRoot(workspaceFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := workspacefinder.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	pipeLoader := yamlpipeline.NewLoader(
		yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
	)

	envLoader := yamlenv.NewLoader(
		root,
		yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
	)

	prober := httpprobe.New(httpprobe.NewClient(httpprobe.DefaultClientConfig()))

	store := runstore.NewJSONStore(root, cfg, runstore.WithIndex(true))

	return &workspaceCtx{
		root:       root,
		cfg:        cfg,
		pipelines:  pipeLoader,
		envs:       envLoader,
		envCatalog: envLoader,
		commands:   execstep.New(),
		launcher:   proclaunch.New(),
		prober:     prober,
		store:      store,
	}, nil
}

func resolveWorkspaceRoot(workspaceFlag string) (string, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	locator := workspacefinder.NewFinder()
	root, err := locator.FindRoot(wd)
	if err != nil {
		return "", fmt.Errorf("workspace not found from %q (tip: run `floww init`): %w", wd, err)
	}
	return root, nil
}

func resolvePipelinePath(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		return "", fmt.Errorf("pipeline is required (use --pipeline or -p)")
	}

	// If arg looks like a path (contains separators), resolve relative to workspace root.
	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	pipelinesDir := filepath.Join(ws.root, ws.cfg.Paths.PipelinesDir)

	// If user provided "ci.yaml", treat it as file under pipelines dir.
	if hasYAMLExt(in) {
		p := filepath.Join(pipelinesDir, in)
		if fileExists(p) {
			return p, nil
		}
	}

	// If user provided "ci", try ci.yaml / ci.yml in pipelines dir.
	p1 := filepath.Join(pipelinesDir, in+".yaml")
	if fileExists(p1) {
		return p1, nil
	}
	p2 := filepath.Join(pipelinesDir, in+".yml")
	if fileExists(p2) {
		return p2, nil
	}

	// As a last resort: match by pipeline "name" field.
	refs, err := ws.pipelines.ListPipelines(ws.root)
	if err == nil {
		for _, r := range refs {
			if strings.EqualFold(r.Name, in) {
				return r.Path, nil
			}
		}
	}

	return "", fmt.Errorf("pipeline %q not found in %q", in, pipelinesDir)
}

func resolveEnvironmentArg(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		return ws.cfg.Defaults.Environment, nil
	}

	// If arg is a path, resolve relative to workspace root.
	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	// If user provided "ci.yaml", treat it as file under env dir.
	if hasYAMLExt(in) {
		envDir := filepath.Join(ws.root, ws.cfg.Paths.EnvironmentsDir)
		p := filepath.Join(envDir, in)
		if fileExists(p) {
			return p, nil
		}
		// fall back to passing as-is (loader will treat it as path-like because of ".yaml")
		return p, nil
	}

	// Otherwise, treat it as an env name ("ci") and let the loader resolve it.
	return in, nil
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, string(filepath.Separator))
}

func hasYAMLExt(s string) bool {
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
