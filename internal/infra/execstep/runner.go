package execstep

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
)

const defaultMaxOutputBytes = 256 * 1024 // 256KB per stream

// Runner executes command steps via os/exec with bounded output capture.
type Runner struct {
	maxOutputBytes int
}

type Option func(*Runner)

func WithMaxOutputBytes(n int) Option {
	return func(r *Runner) { r.maxOutputBytes = n }
}

func New(opts ...Option) *Runner {
	r := &Runner{maxOutputBytes: defaultMaxOutputBytes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ports.CommandRunner = (*Runner)(nil)

func (r *Runner) Run(ctx context.Context, cmd domain.Command) (ports.CommandOutcome, error) {
	if len(cmd.Argv) == 0 {
		return ports.CommandOutcome{}, &domain.OpError{
			Op:   "execstep.run",
			Kind: domain.KindInvalidConfig,
			Err:  domain.ErrInvalidCommand,
		}
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), EnvPairs(cmd.Env)...)

	stdout := newBoundedBuffer(r.maxOutputBytes)
	stderr := newBoundedBuffer(r.maxOutputBytes)
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()

	out := ports.CommandOutcome{
		DurationMS: time.Since(start).Milliseconds(),
		Output: domain.OutputSnapshot{
			Stdout:    stdout.Bytes(),
			Stderr:    stderr.Bytes(),
			Truncated: stdout.Truncated() || stderr.Truncated(),
		},
	}

	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr) && runCtx.Err() == nil:
		// Normal completion with a non-zero exit; not a runner error.
		out.ExitCode = exitErr.ExitCode()
	case runCtx.Err() != nil:
		out.ExitCode = -1
		out.Error = domain.NewRunError(runCtx.Err())
	default:
		// Spawn-level failure: binary missing, permission denied, bad dir.
		out.ExitCode = -1
		out.Error = domain.NewRunErrorKind(domain.RunErrorStart, err.Error())
	}

	return out, nil
}

// EnvPairs renders vars as KEY=value pairs, sorted for determinism.
func EnvPairs(vars domain.Vars) []string {
	if len(vars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vars[k])
	}
	return out
}

// boundedBuffer accepts unlimited writes but retains at most max bytes.
type boundedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte   { return b.buf.Bytes() }
func (b *boundedBuffer) Truncated() bool { return b.truncated }
