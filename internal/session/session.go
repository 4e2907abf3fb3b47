// Package session runs the MQTT messaging session with the automation hub.
//
// Each establishment goes Offline → Handshaking → Subscribed: connect with
// the availability will, subscribe to the fixed topic set, then publish
// online, the discovery announcements and the current states exactly once.
// In steady state inbound publishes are decoded and dispatched, display
// state changes are published (Publishing while in flight) and the
// connection is checked at the keep-alive cadence. Losing the transport, a
// missed keep-alive or the link going down returns the session to Offline,
// drops any in-flight publish and reconnects with backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/connectivity"
	"github.com/domneedham/galactic-unicorn-go/internal/display"
	"github.com/domneedham/galactic-unicorn-go/internal/hass"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
	"github.com/domneedham/galactic-unicorn-go/internal/watch"
)

// inboundBuffer bounds publishes waiting for the session loop.
const inboundBuffer = 32

// errLinkDown is the cancellation cause when the link drops under a session.
var errLinkDown = fmt.Errorf("%w: link down", connectivity.ErrLink)

// Logger defines the logging interface for the session.
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

// Config holds session timing.
type Config struct {
	QoS              byte
	KeepAlive        time.Duration
	KeepAliveTimeout time.Duration
	Backoff          backoff.Policy
}

// Enqueuer accepts display text. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(m queue.Message, now time.Time) queue.EnqueueResult
}

// Display is the arbiter side of the session. *display.Arbiter implements it.
type Display interface {
	Controls() chan<- display.Control
	Buttons() chan<- buttons.Command
	StateUpdates() <-chan display.State
	Snapshot() display.State
}

// Deps are the components the session talks to.
type Deps struct {
	Dial    Dialer
	Link    *watch.Value[connectivity.ConnectionState]
	Queue   Enqueuer
	Display Display
	Clock   display.TimeSource
	Resync  func() // manual time sync; may be nil
}

type inbound struct {
	topic   string
	payload []byte
}

// Session owns the SessionState. Nothing else mutates it.
type Session struct {
	id            config.DeviceIdentity
	cfg           Config
	deps          Deps
	announcements []hass.Announcement
	info          *watch.Value[Info]
	logger        Logger

	establishments atomic.Uint64
	announced      atomic.Uint64
	malformed      atomic.Uint64
	evictions      atomic.Uint64

	// Replaced in tests.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New creates an Offline session. Discovery payloads are built here, once.
func New(id config.DeviceIdentity, cfg Config, deps Deps) (*Session, error) {
	anns, err := hass.Announcements(id)
	if err != nil {
		return nil, err
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 5 * time.Second
	}
	if cfg.KeepAliveTimeout < cfg.KeepAlive {
		cfg.KeepAliveTimeout = 3 * cfg.KeepAlive
	}
	return &Session{
		id:            id,
		cfg:           cfg,
		deps:          deps,
		announcements: anns,
		info:          watch.NewValue(Info{State: Offline, Since: time.Now()}),
		logger:        noopLogger{},
		sleep:         backoff.Sleep,
		now:           time.Now,
	}, nil
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// Info returns the observable session status.
func (s *Session) Info() *watch.Value[Info] {
	return s.info
}

// Stats returns event counters.
func (s *Session) Stats() Stats {
	return Stats{
		Establishments: s.establishments.Load(),
		Announcements:  s.announced.Load(),
		Malformed:      s.malformed.Load(),
		Evictions:      s.evictions.Load(),
	}
}

func (s *Session) set(state State, id string, topics []string) {
	s.info.Set(Info{State: state, ID: id, Topics: topics, Since: s.now()})
}

// Run establishes sessions while the link is up until ctx is cancelled.
// It only returns ctx's error.
func (s *Session) Run(ctx context.Context) error {
	b := backoff.New(s.cfg.Backoff)
	defer s.set(Offline, "", nil)

	for {
		if _, _, err := s.deps.Link.WaitFor(ctx, connectivity.ConnectionState.Up); err != nil {
			return err
		}

		sctx, cancel := context.WithCancelCause(ctx)
		go func() {
			if _, _, err := s.deps.Link.WaitFor(sctx, func(c connectivity.ConnectionState) bool { return !c.Up() }); err == nil {
				cancel(errLinkDown)
			}
		}()

		sessionID := uuid.NewString()
		established, uptime, err := s.establish(sctx, sessionID)
		cancel(nil)
		s.set(Offline, "", nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reset := false
		if established {
			reset = b.ObserveUptime(uptime)
		}
		delay := b.Next()
		if established {
			s.logger.Warn("session lost", "session_id", sessionID, "reason", err, "uptime", uptime, "retry_in", delay, "backoff_reset", reset)
		} else {
			s.logger.Warn("session handshake failed", "attempt", b.Attempt(), "error", err, "retry_in", delay)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// establish runs one session from handshake to loss. It reports whether the
// session reached Subscribed, how long it lasted and why it ended.
func (s *Session) establish(ctx context.Context, sessionID string) (bool, time.Duration, error) {
	s.set(Handshaking, sessionID, nil)

	t, err := s.deps.Dial(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("%w: connect: %w", ErrSession, causeOr(ctx, err))
	}
	defer t.Close()

	in := make(chan inbound, inboundBuffer)
	handler := func(topic string, payload []byte) error {
		select {
		case in <- inbound{topic: topic, payload: payload}:
			return nil
		default:
			return fmt.Errorf("%w: inbound buffer full, dropped publish on %s", ErrSession, topic)
		}
	}

	topics := s.id.Topics.Subscriptions()
	if err := t.SubscribeAll(ctx, topics, s.cfg.QoS, handler); err != nil {
		return false, 0, fmt.Errorf("%w: subscribe: %w", ErrSession, causeOr(ctx, err))
	}

	start := s.now()
	s.set(Subscribed, sessionID, topics)
	s.establishments.Add(1)
	s.logger.Info("session established", "session_id", sessionID, "topics", len(topics))

	err = s.steady(ctx, t, sessionID, topics, in)
	return true, s.now().Sub(start), err
}

// announce publishes availability and discovery. Called exactly once per
// establishment, after subscribing.
func (s *Session) announce(ctx context.Context, t Transport) error {
	if err := t.PublishOnline(ctx); err != nil {
		return err
	}
	for _, a := range s.announcements {
		if err := t.Publish(ctx, a.Topic, a.Payload, s.cfg.QoS, true); err != nil {
			return err
		}
	}
	s.announced.Add(1)
	s.logger.Info("discovery announced", "entities", len(s.announcements))
	return nil
}

// published remembers the last state values sent in this session.
type published struct {
	effect, brightness, color, message, clock string
}

func (s *Session) steady(ctx context.Context, t Transport, sessionID string, topics []string, in <-chan inbound) error {
	pub := &publisher{s: s, t: t, sessionID: sessionID, topics: topics}

	if err := s.announce(ctx, t); err != nil {
		return fmt.Errorf("%w: announce: %w", ErrSession, causeOr(ctx, err))
	}
	var last published
	pub.states(ctx, s.deps.Display.Snapshot(), &last)
	pub.clock(ctx, &last)

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()
	clockTick := time.NewTicker(time.Second)
	defer clockTick.Stop()

	var downSince time.Time
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case <-t.Lost():
			return fmt.Errorf("%w: connection lost: %w", ErrSession, t.LostErr())

		case m := <-in:
			s.dispatch(ctx, m)

		case st := <-s.deps.Display.StateUpdates():
			pub.states(ctx, st, &last)

		case <-clockTick.C:
			pub.clock(ctx, &last)

		case <-keepAlive.C:
			if t.IsConnected() {
				downSince = time.Time{}
				continue
			}
			now := s.now()
			if downSince.IsZero() {
				downSince = now
			}
			if now.Sub(downSince) >= s.cfg.KeepAliveTimeout {
				return fmt.Errorf("%w: keep-alive missed for %s", ErrSession, now.Sub(downSince))
			}
		}
	}
}

// dispatch decodes one inbound publish and hands it to its owner.
func (s *Session) dispatch(ctx context.Context, m inbound) {
	action, err := Decode(s.id.Topics, m.topic, m.payload)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn("malformed payload", "topic", m.topic, "error", err)
		return
	}

	switch action.Kind {
	case ActionMessage:
		res := s.deps.Queue.Enqueue(action.Message, s.now())
		if !res.Dropped {
			s.logger.Debug("message queued", "seq", res.Accepted.Seq, "priority", res.Accepted.Priority)
		}
		if res.Evicted != nil {
			s.evictions.Add(1)
			s.logger.Warn("queue eviction", "error", queue.ErrOverflow, "evicted_seq", res.Evicted.Seq, "priority", res.Evicted.Priority, "arrival", res.Dropped)
		}
	case ActionEffect:
		send(ctx, s.deps.Display.Controls(), display.Control{Op: display.OpSetEffect, Effect: action.Effect})
	case ActionBrightness:
		send(ctx, s.deps.Display.Controls(), display.Control{Op: display.OpSetBrightness, Brightness: action.Brightness})
	case ActionColor:
		send(ctx, s.deps.Display.Controls(), display.Control{Op: display.OpSetColor, Color: action.Color})
	case ActionButton:
		send(ctx, s.deps.Display.Buttons(), action.Button)
	case ActionTimeSync:
		if s.deps.Resync != nil {
			s.deps.Resync()
		}
	}
}

func send[T any](ctx context.Context, ch chan<- T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}

// publisher sends state updates, marking the session Publishing while a
// publish is in flight. Failed publishes are dropped.
type publisher struct {
	s         *Session
	t         Transport
	sessionID string
	topics    []string
}

func (p *publisher) publish(ctx context.Context, topic, value string) bool {
	p.s.set(Publishing, p.sessionID, p.topics)
	err := p.t.Publish(ctx, topic, []byte(value), p.s.cfg.QoS, true)
	p.s.set(Subscribed, p.sessionID, p.topics)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.s.logger.Debug("state publish dropped", "topic", topic, "error", err)
		}
		return false
	}
	return true
}

func (p *publisher) update(ctx context.Context, topic, value string, last *string) {
	if value == *last {
		return
	}
	if p.publish(ctx, topic, value) {
		*last = value
	}
}

func (p *publisher) states(ctx context.Context, st display.State, last *published) {
	topics := p.s.id.Topics
	effect := st.Effect
	if effect == "" {
		effect = render.EffectNone
	}
	p.update(ctx, topics.EffectState, string(effect), &last.effect)
	p.update(ctx, topics.BrightnessState, strconv.Itoa(int(st.Brightness)), &last.brightness)
	p.update(ctx, topics.ColorState, st.Color.Triplet(), &last.color)
	if st.Message != "" {
		p.update(ctx, topics.MessageState, st.Message, &last.message)
	}
}

func (p *publisher) clock(ctx context.Context, last *published) {
	p.update(ctx, p.s.id.Topics.ClockState, render.ClockState(p.s.deps.Clock.Now()), &last.clock)
}

// causeOr prefers the context's cancellation cause over err.
func causeOr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return err
}
