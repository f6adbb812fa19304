package ports

import (
	"context"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
)

// AppProcess is a handle to a launched background application process.
type AppProcess interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// ExitCode is valid only after Done is closed; -1 otherwise.
	ExitCode() int

	// Output returns the bounded output captured so far.
	Output() domain.OutputSnapshot

	// Stop asks the process to terminate and waits up to grace before
	// killing it. Safe to call after the process already exited.
	Stop(grace time.Duration) error
}

// ProcessLauncher starts the smoke-test target as a background process.
type ProcessLauncher interface {
	Start(ctx context.Context, cmd domain.Command) (AppProcess, error)
}
