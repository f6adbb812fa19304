package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cigrirepo/Floww/internal/domain"
)

func TestValidatePipeline_OK(t *testing.T) {
	uc := NewValidatePipeline(
		fakePipelineLoader{pipe: ciPipeline()},
		fakeEnvLoader{env: domain.Environment{Name: "ci"}},
	)

	if err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePipeline_MissingVar(t *testing.T) {
	pipe := ciPipeline()
	pipe.Steps[2].Smoke.Path = "{{health_path}}"

	uc := NewValidatePipeline(
		fakePipelineLoader{pipe: pipe},
		fakeEnvLoader{env: domain.Environment{Name: "ci"}},
	)

	err := uc.Execute(context.Background(), "pipelines/ci.yaml", "ci")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "smoke test") {
		t.Fatalf("expected error to name the step, got %v", err)
	}
	if !domain.IsKind(err, domain.KindMissingVar) {
		t.Fatalf("expected missing_variable kind, got %v", err)
	}
}

func TestValidatePipeline_LoadErrorPropagates(t *testing.T) {
	loadErr := errors.New("bad yaml")
	uc := NewValidatePipeline(errPipelineLoader{err: loadErr}, fakeEnvLoader{})

	if err := uc.Execute(context.Background(), "x", "ci"); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestValidatePipeline_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := NewValidatePipeline(
		fakePipelineLoader{pipe: ciPipeline()},
		fakeEnvLoader{env: domain.Environment{Name: "ci"}},
	)

	if err := uc.Execute(ctx, "pipelines/ci.yaml", "ci"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
