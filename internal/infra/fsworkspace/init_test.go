package fsworkspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cigrirepo/Floww/internal/domain"
)

func TestInitializer_Init_CreatesWorkspaceFiles(t *testing.T) {
	tmp := t.TempDir()

	i := NewInitializer()
	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, false); err != nil {
		t.Fatalf("Init error: %v", err)
	}

	assertFileExists(t, filepath.Join(tmp, "floww.yaml"))
	assertFileExists(t, filepath.Join(tmp, "pipelines", "ci.yaml"))
	assertFileExists(t, filepath.Join(tmp, "env", "ci.yaml"))
	assertFileExists(t, filepath.Join(tmp, "runs"))
	assertFileExists(t, filepath.Join(tmp, ".floww", "logs"))

	secretPath := filepath.Join(tmp, "env", "secrets.local.yaml")
	assertFileExists(t, secretPath)
	info, err := os.Stat(secretPath)
	if err != nil {
		t.Fatalf("stat secrets file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("expected secrets file mode 600, got %o", got)
	}
}

func TestInitializer_Init_SkipsExistingFilesUnlessForce(t *testing.T) {
	tmp := t.TempDir()

	flowwYAML := filepath.Join(tmp, "floww.yaml")
	if err := os.WriteFile(flowwYAML, []byte("custom\n"), 0o644); err != nil {
		t.Fatalf("write existing floww.yaml: %v", err)
	}

	i := NewInitializer()

	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, false); err != nil {
		t.Fatalf("Init (force=false) error: %v", err)
	}

	b, err := os.ReadFile(flowwYAML)
	if err != nil {
		t.Fatalf("read floww.yaml: %v", err)
	}
	if string(b) != "custom\n" {
		t.Fatalf("expected floww.yaml preserved, got %q", string(b))
	}

	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, true); err != nil {
		t.Fatalf("Init (force=true) error: %v", err)
	}

	b, err = os.ReadFile(flowwYAML)
	if err != nil {
		t.Fatalf("read floww.yaml after force: %v", err)
	}
	if !strings.Contains(string(b), "floww:") {
		t.Fatalf("expected floww.yaml overwritten with template, got %q", string(b))
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file %s, stat err=%v", path, err)
	}
}
