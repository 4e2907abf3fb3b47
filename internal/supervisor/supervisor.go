// Package supervisor runs the device's tasks and applies the full-restart
// policy.
//
// A Supervisor starts every task in one errgroup. A task that panics,
// returns an error, or returns at all while the device is still running is an
// unrecoverable fault: every other task is cancelled and Run returns
// ErrFault. Restart then rebuilds the whole device from scratch; no task is
// ever restarted on its own.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
)

// ErrFault is returned when a task terminates abnormally.
var ErrFault = errors.New("supervisor: unrecoverable task fault")

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TaskFunc is one long-running unit of work. It must block until ctx is
// cancelled.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	run  TaskFunc
}

// Supervisor owns no domain state; it only runs tasks.
type Supervisor struct {
	tasks  []task
	logger Logger
}

// New creates an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{logger: noopLogger{}}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Add registers a task. Tasks start in registration order.
func (s *Supervisor) Add(name string, run TaskFunc) {
	s.tasks = append(s.tasks, task{name: name, run: run})
}

// Run starts every task and waits. It returns nil after ctx is cancelled
// and all tasks have stopped, or an ErrFault naming the first failed task.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() error {
			return s.runTask(gctx, t)
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("task fault", "error", err)
	}
	return err
}

func (s *Supervisor) runTask(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", t.name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: task %s panicked: %v", ErrFault, t.name, r)
		}
	}()

	err = t.run(ctx)
	if ctx.Err() != nil {
		// Shutdown, or another task already faulted.
		return nil
	}
	if err == nil {
		return fmt.Errorf("%w: task %s exited", ErrFault, t.name)
	}
	return fmt.Errorf("%w: task %s: %w", ErrFault, t.name, err)
}

// BootFunc builds every component and runs them until ctx is cancelled or
// a fault occurs.
type BootFunc func(ctx context.Context) error

// Restart runs boot, rebooting after delay whenever it returns ErrFault.
// Other errors (e.g. bad configuration) are returned immediately. With
// maxAttempts > 0 it gives up after that many consecutive restarts.
func Restart(ctx context.Context, delay time.Duration, maxAttempts int, logger Logger, boot BootFunc) error {
	if logger == nil {
		logger = noopLogger{}
	}
	for restarts := 0; ; restarts++ {
		err := boot(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || !errors.Is(err, ErrFault) {
			return err
		}
		if maxAttempts > 0 && restarts >= maxAttempts {
			return fmt.Errorf("giving up after %d restarts: %w", restarts, err)
		}

		logger.Warn("device restart", "restart", restarts+1, "reason", err, "delay", delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}
