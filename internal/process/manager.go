package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
)

// ErrGaveUp is returned when the child kept failing past MaxRestartAttempts.
var ErrGaveUp = errors.New("process: restart attempts exhausted")

// Status is the child's lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxConsecutiveHealthFailures kills the child after this many failed probes.
const maxConsecutiveHealthFailures = 3

// Config describes the child to keep alive.
type Config struct {
	Name   string // used in log lines
	Binary string
	Args   []string
	Env    []string // KEY=value, appended to the watchdog's environment

	// Output receives the child's stdout and stderr unchanged. If nil, each
	// line is logged at debug level instead.
	Output io.Writer

	// RestartDelay is the first delay after a failure; it doubles up to
	// MaxRestartDelay and resets once the child ran for StableThreshold.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout separates SIGTERM from SIGKILL on shutdown.
	GracefulTimeout time.Duration

	// HealthCheckFunc probes the running child every HealthCheckInterval.
	// Three failures in a row kill it. Nil disables probing.
	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration
}

// DefaultConfig fills in the timings used when a Config leaves them zero.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartDelay:        2 * time.Second,
		MaxRestartDelay:     time.Minute,
		StableThreshold:     2 * time.Minute,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger is satisfied by *logging.Logger.
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

// Manager keeps one child process alive.
type Manager struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	cmd          *exec.Cmd
	status       Status
	restartCount int
	lastError    error
}

// NewManager creates a watchdog for cfg, filling zero durations with defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger replaces the no-op logger.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Run starts the child and respawns it after every abnormal exit until ctx
// is cancelled (the child is then stopped gracefully) or the child exits
// cleanly. It returns nil in both cases, ErrGaveUp when restarts are
// exhausted, or the error from the very first start.
func (m *Manager) Run(ctx context.Context) error {
	b := backoff.New(backoff.Policy{
		Floor:       m.config.RestartDelay,
		Ceiling:     m.config.MaxRestartDelay,
		Factor:      2,
		StableAfter: m.config.StableThreshold,
	})

	for first := true; ; first = false {
		m.setStatus(StatusStarting)
		cmd, err := m.start()
		if err != nil {
			m.fail(err)
			if first {
				return err
			}
		} else {
			started := time.Now()
			err = m.wait(ctx, cmd)
			if ctx.Err() != nil {
				m.setStatus(StatusStopped)
				return nil
			}
			if err == nil {
				m.logger.Info("process exited cleanly", "name", m.config.Name)
				m.setStatus(StatusStopped)
				return nil
			}
			m.fail(err)
			if b.ObserveUptime(time.Since(started)) {
				m.mu.Lock()
				m.restartCount = 0
				m.mu.Unlock()
			}
			m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return fmt.Errorf("%w: %s after %d restarts: %w", ErrGaveUp, m.config.Name, attempt-1, m.LastError())
		}

		delay := b.Next()
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			m.setStatus(StatusStopped)
			return nil
		}
	}
}

// start launches the child in its own process group.
func (m *Manager) start() (*exec.Cmd, error) {
	m.logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.Command(m.config.Binary, m.config.Args...) //nolint:gosec // binary is our own executable or operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	var streams []io.Reader
	if m.config.Output != nil {
		cmd.Stdout = m.config.Output
		cmd.Stderr = m.config.Output
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("creating stderr pipe: %w", err)
		}
		streams = []io.Reader{stdout, stderr}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.mu.Unlock()

	for i, r := range streams {
		go m.captureOutput([]string{"stdout", "stderr"}[i], r)
	}

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// captureOutput logs each line the child writes.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("process output", "name", m.config.Name, "stream", stream, "line", scanner.Text())
	}
}

// wait blocks until the child exits, a health check kills it, or ctx is
// cancelled (the child is then terminated).
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	var healthC <-chan time.Time
	if m.config.HealthCheckFunc != nil {
		ticker := time.NewTicker(m.config.HealthCheckInterval)
		defer ticker.Stop()
		healthC = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			m.terminate(cmd, exitCh)
			return ctx.Err()

		case <-healthC:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()
			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed", "name", m.config.Name, "error", err, "consecutive_failures", failures)
			if failures >= maxConsecutiveHealthFailures {
				m.logger.Error("health check failed repeatedly, killing process", "name", m.config.Name)
				signalGroup(cmd, syscall.SIGKILL)
				<-exitCh
				return fmt.Errorf("killed after %d failed health checks: %w", failures, err)
			}
		}
	}
}

// terminate sends SIGTERM to the child's group, then SIGKILL after
// GracefulTimeout, and waits for the exit.
func (m *Manager) terminate(cmd *exec.Cmd, exitCh <-chan error) {
	m.logger.Info("stopping process", "name", m.config.Name, "pid", cmd.Process.Pid)
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case <-exitCh:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	}

	signalGroup(cmd, syscall.SIGKILL)
	<-exitCh
	m.logger.Info("process killed", "name", m.config.Name)
}

// signalGroup signals the whole process group (negative pid, see Setpgid).
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = cmd.Process.Signal(sig)
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.status = StatusFailed
	m.lastError = err
	m.mu.Unlock()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError is the most recent start failure or abnormal exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount counts restarts since the child last ran stably.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID is the running child's process id, or 0.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning || m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}
