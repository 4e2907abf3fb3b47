package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/domneedham/galactic-unicorn-go/internal/connectivity"
	"github.com/domneedham/galactic-unicorn-go/internal/watch"
)

// ErrSync is wrapped by every failed time query.
var ErrSync = errors.New("timesync: query failed")

// Querier fetches the true current time.
type Querier interface {
	Query(ctx context.Context) (time.Time, error)
}

// NTPQuerier queries an NTP server.
type NTPQuerier struct {
	Server  string
	Timeout time.Duration
}

// Query asks the server for its clock offset and returns the corrected time.
func (q NTPQuerier) Query(ctx context.Context) (time.Time, error) {
	timeout := q.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	resp, err := ntp.QueryWithOptions(q.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return time.Time{}, err
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(resp.ClockOffset), nil
}

// Logger defines the logging interface for the syncer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the resync schedule.
type Config struct {
	Interval      time.Duration // after a successful, fully applied sync
	RetryInterval time.Duration // after a failure, or while slewing off a large error
	Timeout       time.Duration // per query
}

// Syncer keeps a Clock synchronised while the link is up.
type Syncer struct {
	clock    *Clock
	querier  Querier
	link     *watch.Value[connectivity.ConnectionState]
	cfg      Config
	requests chan struct{}
	logger   Logger
}

// NewSyncer creates a Syncer for clock.
func NewSyncer(clock *Clock, querier Querier, link *watch.Value[connectivity.ConnectionState], cfg Config) *Syncer {
	return &Syncer{
		clock:    clock,
		querier:  querier,
		link:     link,
		cfg:      cfg,
		requests: make(chan struct{}, 1),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the syncer.
func (s *Syncer) SetLogger(logger Logger) {
	s.logger = logger
}

// Request asks for an immediate sync. Requests made while one is pending are coalesced.
func (s *Syncer) Request() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Run syncs on every link-up and then on schedule until ctx is cancelled.
// While the link is down it is suspended. It only returns ctx's error.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		_, upVersion, err := s.link.WaitFor(ctx, connectivity.ConnectionState.Up)
		if err != nil {
			return err
		}

		next := s.cfg.Interval
		if remaining, err := s.SyncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("time sync failed", "error", err, "retry_in", s.cfg.RetryInterval)
			next = s.cfg.RetryInterval
		} else if remaining != 0 {
			next = s.cfg.RetryInterval
		}

		if err := s.waitNext(ctx, next, upVersion); err != nil {
			return err
		}
	}
}

// SyncOnce performs one query and adjustment. On failure the clock is untouched.
func (s *Syncer) SyncOnce(ctx context.Context) (time.Duration, error) {
	qctx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	target, err := s.querier.Query(qctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSync, err)
	}

	applied, remaining := s.clock.Adjust(target)
	s.logger.Info("time synced", "applied", applied, "remaining", remaining)
	return remaining, nil
}

// waitNext returns when d elapses, a sync is requested, the link goes down
// or the link came up again after upVersion. The link publishes Connected
// once per join, so any newer version that is up is a fresh link-up even if
// the down in between was never observed. Only ctx cancellation is an error.
func (s *Syncer) waitNext(ctx context.Context, d time.Duration, upVersion uint64) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		changed := s.link.Changed()
		st, ver := s.link.Load()
		if !st.Up() {
			s.logger.Debug("time sync suspended, link down")
			return nil
		}
		if ver != upVersion {
			s.logger.Debug("link re-established, resyncing")
			return nil
		}

		select {
		case <-timer.C:
			return nil
		case <-s.requests:
			s.logger.Debug("time sync requested")
			return nil
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
