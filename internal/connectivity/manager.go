package connectivity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
	"github.com/domneedham/galactic-unicorn-go/internal/watch"
)

// Associator joins and watches the wireless network.
type Associator interface {
	// Join attempts association once. The context carries the join timeout.
	Join(ctx context.Context) error

	// Monitor blocks while the link stays up and returns the reason it was lost.
	Monitor(ctx context.Context) error
}

// Logger defines the logging interface for the connectivity manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the manager's retry settings.
type Config struct {
	Backoff     backoff.Policy
	JoinTimeout time.Duration
}

// Manager drives the link state machine.
type Manager struct {
	assoc  Associator
	cfg    Config
	state  *watch.Value[ConnectionState]
	logger Logger

	// Replaced in tests.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(assoc Associator, cfg Config) *Manager {
	return &Manager{
		assoc:  assoc,
		cfg:    cfg,
		state:  watch.NewValue(ConnectionState{Phase: Disconnected, Since: time.Now()}),
		logger: noopLogger{},
		sleep:  backoff.Sleep,
		now:    time.Now,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// State returns the observable connection state.
func (m *Manager) State() *watch.Value[ConnectionState] {
	return m.state
}

func (m *Manager) set(s ConnectionState) {
	s.Since = m.now()
	m.state.Set(s)
}

// Run joins, watches and rejoins the link until ctx is cancelled.
// It only returns ctx's error.
func (m *Manager) Run(ctx context.Context) error {
	b := backoff.New(m.cfg.Backoff)
	defer m.set(ConnectionState{Phase: Disconnected, Reason: "shutdown"})

	for {
		attempt := b.Attempt() + 1
		m.set(ConnectionState{Phase: Connecting, Attempt: attempt})

		if err := m.join(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.Next()
			m.set(ConnectionState{Phase: Disconnected, Attempt: attempt, Reason: err.Error()})
			m.logger.Warn("link join failed", "attempt", attempt, "retry_in", delay, "error", err)
			if err := m.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		up := m.now()
		m.set(ConnectionState{Phase: Connected})
		m.logger.Info("link up", "attempt", attempt)

		lossErr := m.assoc.Monitor(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lossErr == nil {
			lossErr = fmt.Errorf("%w: monitor returned without reason", ErrLink)
		}

		uptime := m.now().Sub(up)
		m.set(ConnectionState{Phase: Degraded, Reason: lossErr.Error()})
		stable := b.ObserveUptime(uptime)
		m.logger.Warn("link down", "reason", lossErr, "uptime", uptime, "backoff_reset", stable)

		delay := b.Next()
		m.set(ConnectionState{Phase: Disconnected, Reason: lossErr.Error()})
		if err := m.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (m *Manager) join(ctx context.Context) error {
	joinCtx := ctx
	if m.cfg.JoinTimeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, m.cfg.JoinTimeout)
		defer cancel()
	}

	err := m.assoc.Join(joinCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLink) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLink, err)
}
