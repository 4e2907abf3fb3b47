package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domneedham/galactic-unicorn-go/internal/backoff"
	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/connectivity"
	"github.com/domneedham/galactic-unicorn-go/internal/display"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/mqtt"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
	"github.com/domneedham/galactic-unicorn-go/internal/watch"
)

func messageOf(text string, ttl time.Duration, priority int) queue.Message {
	return queue.Message{Text: text, TTL: ttl, Priority: priority}
}

type publish struct {
	topic    string
	payload  string
	retained bool
}

type fakeTransport struct {
	mu        sync.Mutex
	published []publish
	online    int
	topics    []string
	handler   mqtt.MessageHandler
	closed    bool
	subErr    error

	connected atomic.Bool
	lost      chan struct{}
	lostOnce  sync.Once
}

func newFakeTransport() *fakeTransport {
	t := &fakeTransport{lost: make(chan struct{})}
	t.connected.Store(true)
	return t
}

func (f *fakeTransport) SubscribeAll(_ context.Context, topics []string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.topics = topics
	f.handler = h
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publish{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (f *fakeTransport) PublishOnline(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online++
	return nil
}

func (f *fakeTransport) Lost() <-chan struct{} { return f.lost }
func (f *fakeTransport) LostErr() error         { return errors.New("broker went away") }
func (f *fakeTransport) IsConnected() bool      { return f.connected.Load() }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) drop() {
	f.lostOnce.Do(func() { close(f.lost) })
}

func (f *fakeTransport) deliver(topic, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	_ = h(topic, []byte(payload))
}

func (f *fakeTransport) publishesTo(prefix string) []publish {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publish
	for _, p := range f.published {
		if strings.HasPrefix(p.topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out transports in order after failing the first n dials.
type fakeDialer struct {
	mu         sync.Mutex
	failFirst  int
	dials      int
	transports []*fakeTransport
}

func (d *fakeDialer) dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failFirst {
		return nil, mqtt.ErrConnectionFailed
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeDisplay struct {
	controls chan display.Control
	buttons  chan buttons.Command
	updates  chan display.State
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		controls: make(chan display.Control, 4),
		buttons:  make(chan buttons.Command, 4),
		updates:  make(chan display.State, 4),
	}
}

func (d *fakeDisplay) Controls() chan<- display.Control  { return d.controls }
func (d *fakeDisplay) Buttons() chan<- buttons.Command    { return d.buttons }
func (d *fakeDisplay) StateUpdates() <-chan display.State { return d.updates }

func (d *fakeDisplay) Snapshot() display.State {
	return display.State{Effect: render.EffectNone, Brightness: 128}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC) }

type harness struct {
	s       *Session
	link    *watch.Value[connectivity.ConnectionState]
	dialer  *fakeDialer
	display *fakeDisplay
	queue   *queue.Queue
	resyncs atomic.Int32

	mu     sync.Mutex
	delays []time.Duration
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	id, err := config.NewIdentity(config.Default(), "test", render.EffectNames())
	require.NoError(t, err)

	h := &harness{
		link:    watch.NewValue(connectivity.ConnectionState{Phase: connectivity.Disconnected}),
		dialer:  &fakeDialer{},
		display: newFakeDisplay(),
		queue:   queue.New(4, 32, 10*time.Second),
	}
	if cfg.Backoff.Floor == 0 {
		cfg.Backoff = backoff.Policy{Floor: time.Second, Ceiling: 8 * time.Second, Factor: 2, StableAfter: time.Hour}
	}
	s, err := New(id, cfg, Deps{
		Dial:    h.dialer.dial,
		Link:    h.link,
		Queue:   h.queue,
		Display: h.display,
		Clock:   fixedClock{},
		Resync:  func() { h.resyncs.Add(1) },
	})
	require.NoError(t, err)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	h.s = s
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func (h *harness) linkUp()   { h.link.Set(connectivity.ConnectionState{Phase: connectivity.Connected}) }
func (h *harness) linkDown() { h.link.Set(connectivity.ConnectionState{Phase: connectivity.Disconnected}) }

func (h *harness) waitState(t *testing.T, want State) Info {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, _, err := h.s.Info().WaitFor(ctx, func(i Info) bool { return i.State == want })
	require.NoError(t, err, "waiting for %s", want)
	return info
}

func (h *harness) waitEstablished(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.s.Stats().Announcements >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_StaysOfflineWithoutLink(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.dialer.count())
	assert.Equal(t, Offline, h.s.Info().Get().State)
	assert.Zero(t, h.s.Stats().Announcements, "never announce while offline")
}

func TestSession_Establish(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()

	h.waitEstablished(t, 1)
	info := h.s.Info().Get()
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, []string{
		"galactic_unicorn/effect/set",
		"galactic_unicorn/brightness/set",
		"galactic_unicorn/message",
		"galactic_unicorn/button/set",
		"galactic_unicorn/system/ntp/sync",
		"galactic_unicorn/rgb/set",
	}, info.Topics)

	tr := h.dialer.transport(0)
	require.NotNil(t, tr)
	discovery := tr.publishesTo("homeassistant/")
	assert.Len(t, discovery, 6)
	for _, p := range discovery {
		assert.True(t, p.retained, p.topic)
	}

	require.Eventually(t, func() bool {
		return len(tr.publishesTo("galactic_unicorn/clock/state")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "09:30", tr.publishesTo("galactic_unicorn/clock/state")[0].payload)
	assert.Equal(t, "none", tr.publishesTo("galactic_unicorn/effect/state")[0].payload)
	assert.Equal(t, "128", tr.publishesTo("galactic_unicorn/brightness/state")[0].payload)

	tr.mu.Lock()
	assert.Equal(t, 1, tr.online)
	tr.mu.Unlock()
}

func TestSession_InboundDispatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)
	tr := h.dialer.transport(0)

	tr.deliver("galactic_unicorn/message", `{"text":"Hello","ttl":5}`)
	require.Eventually(t, func() bool { return h.queue.Len() == 1 }, time.Second, 5*time.Millisecond)
	m, ok := h.queue.Peek(time.Now())
	require.True(t, ok)
	assert.Equal(t, "Hello", m.Text)
	assert.Equal(t, 5*time.Second, m.TTL)

	tr.deliver("galactic_unicorn/effect/set", "fire")
	select {
	case c := <-h.display.controls:
		assert.Equal(t, display.Control{Op: display.OpSetEffect, Effect: render.EffectFire}, c)
	case <-time.After(time.Second):
		t.Fatal("no effect control dispatched")
	}

	tr.deliver("galactic_unicorn/rgb/set", "128,0,128")
	select {
	case c := <-h.display.controls:
		assert.Equal(t, display.Control{Op: display.OpSetColor, Color: render.NewRGB(128, 0, 128)}, c)
	case <-time.After(time.Second):
		t.Fatal("no colour control dispatched")
	}

	tr.deliver("galactic_unicorn/button/set", "sleep")
	select {
	case c := <-h.display.buttons:
		assert.Equal(t, buttons.CmdToggleBlank, c)
	case <-time.After(time.Second):
		t.Fatal("no button command dispatched")
	}

	tr.deliver("galactic_unicorn/system/ntp/sync", "PRESS")
	require.Eventually(t, func() bool { return h.resyncs.Load() == 1 }, time.Second, 5*time.Millisecond)

	tr.deliver("galactic_unicorn/brightness/set", "loud")
	require.Eventually(t, func() bool { return h.s.Stats().Malformed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Subscribed, h.s.Info().Get().State, "malformed payloads never end the session")
}

func TestSession_QueueEvictionCounted(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)
	tr := h.dialer.transport(0)

	for _, text := range []string{"one", "two", "three", "four", "five"} {
		tr.deliver("galactic_unicorn/message", text)
	}
	require.Eventually(t, func() bool { return h.s.Stats().Evictions == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, h.queue.Len())
}

func TestSession_PublishesStateUpdates(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)
	tr := h.dialer.transport(0)

	h.display.updates <- display.State{Effect: render.EffectRainbow, Brightness: 128, Message: "Hi"}
	require.Eventually(t, func() bool {
		return len(tr.publishesTo("galactic_unicorn/effect/state")) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "rainbow", tr.publishesTo("galactic_unicorn/effect/state")[1].payload)
	assert.Len(t, tr.publishesTo("galactic_unicorn/brightness/state"), 1, "unchanged state is not republished")

	h.display.updates <- display.State{Effect: render.EffectRainbow, Brightness: 128, Color: render.NewRGB(1, 2, 3), Message: "Hi"}
	require.Eventually(t, func() bool {
		return len(tr.publishesTo("galactic_unicorn/rgb/state")) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1,2,3", tr.publishesTo("galactic_unicorn/rgb/state")[1].payload)
	require.Eventually(t, func() bool {
		return len(tr.publishesTo("galactic_unicorn/message/state")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_ReconnectsAndReannouncesAfterLoss(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)
	first := h.dialer.transport(0)
	firstID := h.s.Info().Get().ID

	h.queue.Enqueue(queue.Message{Text: "kept"}, time.Now())
	first.drop()

	h.waitEstablished(t, 2)
	assert.True(t, first.isClosed())
	assert.NotEqual(t, firstID, h.s.Info().Get().ID, "new session id per establishment")
	assert.Equal(t, uint64(2), h.s.Stats().Establishments)
	assert.Len(t, first.publishesTo("homeassistant/"), 6)
	assert.Len(t, h.dialer.transport(1).publishesTo("homeassistant/"), 6)
	assert.Equal(t, 1, h.queue.Len(), "accepted text survives the session")
}

func TestSession_LinkDownGoesOffline(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)

	h.linkDown()
	h.waitState(t, Offline)
	require.Eventually(t, func() bool { return h.dialer.transport(0).isClosed() }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.dialer.count(), "no reconnect while the link is down")
	assert.Equal(t, uint64(1), h.s.Stats().Announcements)

	h.linkUp()
	h.waitEstablished(t, 2)
	assert.Equal(t, 2, h.dialer.count())
}

func TestSession_HandshakeBackoff(t *testing.T) {
	h := newHarness(t, Config{})
	h.dialer.failFirst = 4
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, h.delays)
}

func TestSession_MissedKeepAlive(t *testing.T) {
	h := newHarness(t, Config{KeepAlive: 10 * time.Millisecond, KeepAliveTimeout: 30 * time.Millisecond})
	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)

	h.dialer.transport(0).connected.Store(false)
	h.waitEstablished(t, 2)
	assert.True(t, h.dialer.transport(0).isClosed())
}

func TestSession_SubscribeFailureRetries(t *testing.T) {
	h := newHarness(t, Config{})

	// The first transport refuses the subscription.
	tr := newFakeTransport()
	tr.subErr = mqtt.ErrSubscribeFailed
	h.dialer.transports = append(h.dialer.transports, tr)
	dial := h.dialer.dial
	first := true
	h.s.deps.Dial = func(ctx context.Context) (Transport, error) {
		if first {
			first = false
			return tr, nil
		}
		return dial(ctx)
	}

	h.start(t)
	h.linkUp()
	h.waitEstablished(t, 1)
	assert.True(t, tr.isClosed())
	assert.Equal(t, uint64(1), h.s.Stats().Establishments)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "handshaking", Handshaking.String())
	assert.Equal(t, "subscribed", Subscribed.String())
	assert.Equal(t, "publishing", Publishing.String())
}
