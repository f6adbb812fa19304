package proclaunch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/infra/execstep"
	"github.com/cigrirepo/Floww/internal/ports"
)

const defaultMaxOutputBytes = 256 * 1024 // 256KB per stream

// Launcher starts smoke-test target applications as background processes.
// Children are put in their own process group so teardown reaches anything
// the app forks (dev servers love to fork).
type Launcher struct {
	maxOutputBytes int
}

type Option func(*Launcher)

func WithMaxOutputBytes(n int) Option {
	return func(l *Launcher) { l.maxOutputBytes = n }
}

func New(opts ...Option) *Launcher {
	l := &Launcher{maxOutputBytes: defaultMaxOutputBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ports.ProcessLauncher = (*Launcher)(nil)

func (l *Launcher) Start(ctx context.Context, cmd domain.Command) (ports.AppProcess, error) {
	if len(cmd.Argv) == 0 {
		return nil, &domain.OpError{
			Op:   "proclaunch.start",
			Kind: domain.KindInvalidConfig,
			Err:  domain.ErrInvalidCommand,
		}
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), execstep.EnvPairs(cmd.Env)...)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &process{
		cmd:      c,
		done:     make(chan struct{}),
		exitCode: -1,
		stdout:   newLockedBuffer(l.maxOutputBytes),
		stderr:   newLockedBuffer(l.maxOutputBytes),
	}
	c.Stdout = p.stdout
	c.Stderr = p.stderr

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cmd.Argv[0], err)
	}

	go func() {
		err := c.Wait()

		p.mu.Lock()
		p.exitCode = exitCodeOf(c, err)
		p.mu.Unlock()

		close(p.done)
	}()

	return p, nil
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int

	stdout *lockedBuffer
	stderr *lockedBuffer

	stopOnce sync.Once
}

var _ ports.AppProcess = (*process)(nil)

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *process) Output() domain.OutputSnapshot {
	return domain.OutputSnapshot{
		Stdout:    p.stdout.Bytes(),
		Stderr:    p.stderr.Bytes(),
		Truncated: p.stdout.Truncated() || p.stderr.Truncated(),
	}
}

// Stop signals the process group and waits up to grace before killing it.
func (p *process) Stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.signal(syscall.SIGTERM)

		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-p.done:
			return
		case <-timer.C:
		}

		p.signal(syscall.SIGKILL)
	})

	<-p.done
	return nil
}

func (p *process) signal(sig syscall.Signal) {
	if p.cmd.Process == nil {
		return
	}
	// Negative pid targets the whole process group.
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		_ = p.cmd.Process.Signal(sig)
	}
}

func exitCodeOf(c *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	return -1
}

// lockedBuffer is a bounded buffer safe for concurrent writer/reader use:
// exec pumps output from its own goroutines while probes read snapshots.
type lockedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newLockedBuffer(max int) *lockedBuffer {
	return &lockedBuffer{max: max}
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.max - len(b.buf)
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *lockedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
