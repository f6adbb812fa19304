package ports

import (
	"context"

	"github.com/cigrirepo/Floww/internal/domain"
)

// CommandOutcome is the raw result of running a command to completion.
// A non-zero exit code is carried in ExitCode, not in Error; Error is set
// for failures to run at all (spawn, timeout, cancel), classified by kind.
type CommandOutcome struct {
	ExitCode   int
	DurationMS int64
	Output     domain.OutputSnapshot
	Error      *domain.RunError
}

// CommandRunner executes a resolved command step to completion.
// The error return is reserved for config-level problems (e.g. empty argv).
type CommandRunner interface {
	Run(ctx context.Context, cmd domain.Command) (CommandOutcome, error)
}
