package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestRuntime(t *testing.T, vars Vars) *RuntimeResolver {
	t.Helper()

	r := NewVarResolver(
		WithNow(func() time.Time { return time.Unix(1700000000, 0) }),
		WithUUID(func() (string, error) { return "00000000-0000-4000-8000-000000000000", nil }),
	)
	rt, err := r.NewRuntime(vars)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return rt
}

func TestResolveString_Basic(t *testing.T) {
	rt := newTestRuntime(t, Vars{"port": "8501"})

	got, err := rt.ResolveString("http://localhost:{{port}}/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "http://localhost:8501/" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveString_Builtins(t *testing.T) {
	rt := newTestRuntime(t, nil)

	got, err := rt.ResolveString("run-{{$timestamp}}-{{$uuid}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "run-1700000000-00000000-0000-4000-8000-000000000000" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveString_MissingVar(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, err := rt.ResolveString("{{nope}}")
	if err == nil {
		t.Fatal("expected error for missing var")
	}
	if !IsKind(err, KindMissingVar) {
		t.Fatalf("expected missing_variable kind, got %v", err)
	}
}

func TestResolveString_Unclosed(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, err := rt.ResolveString("{{port")
	if err == nil {
		t.Fatal("expected error for unclosed placeholder")
	}
	if !IsKind(err, KindInvalidConfig) {
		t.Fatalf("expected invalid_config kind, got %v", err)
	}
}

func TestResolveArgs_CopiesInput(t *testing.T) {
	rt := newTestRuntime(t, Vars{"port": "8501"})

	in := []string{"streamlit", "run", "app.py", "--server.port", "{{port}}"}
	got, err := rt.ResolveArgs(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got[4] != "8501" {
		t.Fatalf("expected resolved port, got %q", got[4])
	}
	if in[4] != "{{port}}" {
		t.Fatal("ResolveArgs mutated the input slice")
	}
}

func TestResolveStep_Smoke(t *testing.T) {
	rt := newTestRuntime(t, Vars{"port": "8501", "health_path": "/"})

	step := StepSpec{
		Name: "smoke test",
		Kind: StepSmoke,
		Smoke: &SmokeSpec{
			App:  []string{"streamlit", "run", "app.py", "--server.port", "{{port}}"},
			Port: 8501,
			Path: "{{health_path}}",
		},
	}

	got, err := rt.ResolveStep(step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Smoke.App[4] != "8501" {
		t.Fatalf("expected resolved app argv, got %v", got.Smoke.App)
	}
	if got.Smoke.Path != "/" {
		t.Fatalf("expected resolved path, got %q", got.Smoke.Path)
	}
	if step.Smoke.App[4] != "{{port}}" {
		t.Fatal("ResolveStep mutated the input spec")
	}
}

func TestResolveStep_ErrorNamesField(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, err := rt.ResolveStep(StepSpec{
		Name:    "install",
		Kind:    StepRun,
		Command: []string{"pip", "install", "{{requirements}}"},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var oe *OpError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OpError, got %T", err)
	}
	if oe.Kind != KindMissingVar {
		t.Fatalf("expected missing_variable, got %s", oe.Kind)
	}
}

func TestNewRuntime_UUIDError(t *testing.T) {
	r := NewVarResolver(WithUUID(func() (string, error) { return "", errors.New("entropy") }))
	if _, err := r.NewRuntime(nil); err == nil {
		t.Fatal("expected error from uuid generator")
	}
}
