package usecase

import (
	"context"
	"fmt"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
)

type ValidatePipeline struct {
	pipelines ports.PipelineLoader
	envs      ports.EnvironmentLoader
	resolver  *domain.VarResolver
}

type ValidateOption func(*ValidatePipeline)

func WithValidateResolver(vr *domain.VarResolver) ValidateOption {
	return func(uc *ValidatePipeline) {
		if vr != nil {
			uc.resolver = vr
		}
	}
}

func NewValidatePipeline(pl ports.PipelineLoader, el ports.EnvironmentLoader, opts ...ValidateOption) *ValidatePipeline {
	uc := &ValidatePipeline{
		pipelines: pl,
		envs:      el,
		resolver:  domain.NewVarResolver(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute validates a pipeline + environment pair without spawning processes.
// It resolves templated fields ({{vars}}) and checks smoke-step invariants.
func (uc *ValidatePipeline) Execute(ctx context.Context, pipelinePath string, envNameOrPath string) error {
	pipe, err := uc.pipelines.LoadPipeline(pipelinePath)
	if err != nil {
		return err
	}

	env, err := uc.envs.LoadEnvironment(envNameOrPath)
	if err != nil {
		return err
	}

	// pipeline vars < env vars
	vars := domain.Merge(pipe.Vars, env.Vars)

	for _, step := range pipe.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		rt, err := uc.resolver.NewRuntime(vars)
		if err != nil {
			return err
		}

		if _, err := rt.ResolveStep(step); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	return nil
}
