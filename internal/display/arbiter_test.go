package display

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

type fakePanel struct {
	mu     sync.Mutex
	frames []*render.Frame
	err    error
	closed bool
}

func (p *fakePanel) Show(f *render.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f.Clone())
	return p.err
}

func (p *fakePanel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePanel) lastFrame() *render.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[len(p.frames)-1]
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type countingLogger struct {
	noopLogger
	warns int
}

func (l *countingLogger) Warn(string, ...any) { l.warns++ }

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestArbiter(t *testing.T) (*Arbiter, *queue.Queue, *fakePanel) {
	t.Helper()
	q := queue.New(8, 128, 10*time.Second)
	p := &fakePanel{}
	a := NewArbiter(Config{
		FrameInterval:      50 * time.Millisecond,
		MinMessageDuration: 3 * time.Second,
		ScrollSpeed:        12,
		Brightness:         255,
	}, p, q, fixedClock{t: t0})
	return a, q, p
}

func TestArbiter_ClockByDefault(t *testing.T) {
	a, _, p := newTestArbiter(t)

	cmd := a.Step(t0)
	assert.Equal(t, KindClock, cmd.Kind)
	require.Len(t, p.frames, 1)
	assert.True(t, p.lastFrame().Lit())
}

func TestArbiter_MessagePreemptsEffectThenEffectResumes(t *testing.T) {
	a, q, _ := newTestArbiter(t)
	a.Apply(Control{Op: OpSetEffect, Effect: render.EffectFire}, t0)
	assert.Equal(t, KindEffect, a.Step(t0).Kind)

	q.Enqueue(queue.Message{Text: "Hello", TTL: 5 * time.Second}, t0.Add(time.Second))

	start := t0.Add(time.Second)
	cmd := a.Step(start)
	require.Equal(t, KindMessage, cmd.Kind)
	assert.Equal(t, "Hello", cmd.Message.Text)

	assert.Equal(t, KindMessage, a.Step(start.Add(4900*time.Millisecond)).Kind)
	assert.Equal(t, KindEffect, a.Step(start.Add(5*time.Second)).Kind)
}

func TestArbiter_SamePriorityNeverPreempts(t *testing.T) {
	a, q, _ := newTestArbiter(t)

	q.Enqueue(queue.Message{Text: "first", TTL: 5 * time.Second}, t0)
	require.Equal(t, "first", a.Step(t0).Message.Text)

	q.Enqueue(queue.Message{Text: "second", TTL: 5 * time.Second}, t0.Add(time.Second))
	for _, at := range []time.Duration{time.Second, 3 * time.Second, 4 * time.Second} {
		assert.Equal(t, "first", a.Step(t0.Add(at)).Message.Text, at)
	}
	assert.Equal(t, "second", a.Step(t0.Add(5*time.Second)).Message.Text)
}

func TestArbiter_HigherPriorityPreemptsAfterMinimum(t *testing.T) {
	a, q, _ := newTestArbiter(t)

	q.Enqueue(queue.Message{Text: "normal", TTL: 8 * time.Second}, t0)
	require.Equal(t, "normal", a.Step(t0).Message.Text)

	q.Enqueue(queue.Message{Text: "urgent", TTL: 8 * time.Second, Priority: 1}, t0.Add(time.Second))

	// Not before the minimum duration has elapsed.
	assert.Equal(t, "normal", a.Step(t0.Add(time.Second)).Message.Text)
	assert.Equal(t, "normal", a.Step(t0.Add(2999*time.Millisecond)).Message.Text)

	assert.Equal(t, "urgent", a.Step(t0.Add(3*time.Second)).Message.Text)
}

func TestArbiter_LongMessageHeldForScrollPass(t *testing.T) {
	a, q, _ := newTestArbiter(t)
	text := "THIS IS A LONG MESSAGE THAT HAS TO SCROLL ACROSS"
	pass := render.ScrollDuration(text, render.Width, 12)
	require.Greater(t, pass, 5*time.Second)

	q.Enqueue(queue.Message{Text: text, TTL: time.Second}, t0)
	a.Step(t0)

	assert.Equal(t, pass, a.WindowRemaining(t0))
	assert.Equal(t, KindMessage, a.Step(t0.Add(pass-time.Millisecond)).Kind)
	assert.Equal(t, KindClock, a.Step(t0.Add(pass)).Kind)
}

func TestArbiter_BlankIsModifier(t *testing.T) {
	a, q, p := newTestArbiter(t)
	q.Enqueue(queue.Message{Text: "hi", TTL: 5 * time.Second}, t0)
	assert.Equal(t, KindMessage, a.Step(t0).Kind)

	a.Press(buttons.CmdToggleBlank, t0.Add(time.Second))
	assert.Equal(t, KindBlank, a.Step(t0.Add(time.Second)).Kind)
	assert.False(t, p.lastFrame().Lit())

	// The window already on screen kept running underneath.
	a.Press(buttons.CmdToggleBlank, t0.Add(2*time.Second))
	assert.Equal(t, KindMessage, a.Step(t0.Add(2*time.Second)).Kind)
	assert.Equal(t, KindClock, a.Step(t0.Add(5*time.Second)).Kind)
}

func TestArbiter_BlankPausesQueue(t *testing.T) {
	a, q, p := newTestArbiter(t)
	q.Enqueue(queue.Message{Text: "hi", TTL: 5 * time.Second}, t0)

	a.Press(buttons.CmdToggleBlank, t0)
	assert.Equal(t, KindBlank, a.Step(t0).Kind)
	assert.Equal(t, KindBlank, a.Step(t0.Add(time.Second)).Kind)
	assert.False(t, p.lastFrame().Lit())
	assert.Equal(t, 1, q.Len(), "nothing is taken from the queue while blanked")

	a.Press(buttons.CmdToggleBlank, t0.Add(2*time.Second))
	assert.Equal(t, KindMessage, a.Step(t0.Add(2*time.Second)).Kind)
	assert.Zero(t, q.Len())
	assert.Equal(t, KindMessage, a.Step(t0.Add(6*time.Second)).Kind, "full window after unblank")
	assert.Equal(t, KindClock, a.Step(t0.Add(7*time.Second)).Kind)
}

func TestArbiter_Brightness(t *testing.T) {
	a, _, p := newTestArbiter(t)

	a.Press(buttons.CmdBrightnessUp, t0)
	assert.Equal(t, uint8(255), a.Snapshot().Brightness, "clamped at the top")

	a.Apply(Control{Op: OpSetBrightness, Brightness: 5}, t0)
	a.Press(buttons.CmdBrightnessDown, t0)
	assert.Equal(t, uint8(0), a.Snapshot().Brightness, "clamped at the bottom")

	a.Step(t0)
	assert.False(t, p.lastFrame().Lit())

	a.Press(buttons.CmdBrightnessUp, t0)
	assert.Equal(t, uint8(BrightnessStep), a.Snapshot().Brightness)
}

func TestArbiter_BrightnessPressTypes(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	a.Apply(Control{Op: OpSetBrightness, Brightness: 100}, t0)

	steps := []struct {
		cmd  buttons.Command
		want uint8
	}{
		{buttons.CmdBrightnessUp, 110},
		{buttons.CmdBrightnessUpLarge, 160},
		{buttons.CmdBrightnessDownLarge, 110},
		{buttons.CmdBrightnessDown, 100},
		{buttons.CmdBrightnessMax, BrightnessMax},
		{buttons.CmdBrightnessUpLarge, 255},
		{buttons.CmdBrightnessMin, BrightnessMin},
		{buttons.CmdBrightnessDownLarge, 0},
	}
	for _, s := range steps {
		a.Press(s.cmd, t0)
		assert.Equal(t, s.want, a.Snapshot().Brightness, "after %v", s.cmd)
	}
}

func TestArbiter_Color(t *testing.T) {
	a, q, p := newTestArbiter(t)
	assert.Equal(t, render.ColorClock, a.Snapshot().Color)

	purple := render.NewRGB(128, 0, 128)
	a.Apply(Control{Op: OpSetColor, Color: purple}, t0)
	assert.Equal(t, purple, a.Snapshot().Color)
	s := <-a.StateUpdates()
	assert.Equal(t, purple, s.Color)

	q.Enqueue(queue.Message{Text: "I"}, t0)
	a.Step(t0)
	assert.True(t, hasPixel(p.lastFrame(), purple), "messages use the colour")
}

func hasPixel(f *render.Frame, c render.RGB) bool {
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if f.At(x, y) == c {
				return true
			}
		}
	}
	return false
}

func TestArbiter_StateUpdates(t *testing.T) {
	a, _, _ := newTestArbiter(t)

	a.Press(buttons.CmdCycleEffect, t0)
	s := <-a.StateUpdates()
	assert.Equal(t, render.EffectFire, s.Effect)
	assert.Equal(t, KindEffect, s.Showing)

	a.Press(buttons.CmdShowClock, t0)
	s = <-a.StateUpdates()
	assert.Equal(t, render.EffectNone, s.Effect)
}

func TestArbiter_StateUpdatesKeepLatest(t *testing.T) {
	a, _, _ := newTestArbiter(t)

	for i := range 3 * updateBuffer {
		a.Apply(Control{Op: OpSetBrightness, Brightness: uint8(i + 1)}, t0)
	}

	var last State
	for len(a.StateUpdates()) > 0 {
		last = <-a.StateUpdates()
	}
	assert.Equal(t, uint8(3*updateBuffer), last.Brightness)
}

func TestArbiter_CycleEffects(t *testing.T) {
	a, _, _ := newTestArbiter(t)

	var seen []render.EffectID
	for range 5 {
		a.Press(buttons.CmdCycleEffect, t0)
		seen = append(seen, a.Snapshot().Effect)
	}
	assert.Equal(t, []render.EffectID{
		render.EffectFire, render.EffectRainbow, render.EffectPlasma, render.EffectSparkle, render.EffectNone,
	}, seen)
}

func TestArbiter_ShowDate(t *testing.T) {
	a, _, _ := newTestArbiter(t)
	a.Apply(Control{Op: OpSetEffect, Effect: render.EffectRainbow}, t0)

	a.Press(buttons.CmdShowDate, t0)
	assert.Equal(t, KindDate, a.Step(t0).Kind)
	assert.Equal(t, KindEffect, a.Step(t0.Add(3*time.Second)).Kind)
}

func TestArbiter_ReplayLastMessage(t *testing.T) {
	a, q, _ := newTestArbiter(t)

	a.Press(buttons.CmdReplayMessage, t0)
	assert.Equal(t, KindClock, a.Step(t0).Kind, "nothing to replay yet")

	q.Enqueue(queue.Message{Text: "again", TTL: 3 * time.Second}, t0)
	a.Step(t0)
	assert.Equal(t, KindClock, a.Step(t0.Add(3*time.Second)).Kind)

	a.Press(buttons.CmdReplayMessage, t0.Add(4*time.Second))
	cmd := a.Step(t0.Add(4 * time.Second))
	assert.Equal(t, KindMessage, cmd.Kind)
	assert.Equal(t, "again", cmd.Message.Text)
	assert.Equal(t, "again", a.Snapshot().Message)
}

func TestArbiter_PanelErrorLoggedOnce(t *testing.T) {
	a, _, p := newTestArbiter(t)
	logger := &countingLogger{}
	a.SetLogger(logger)
	p.err = errors.New("spi bus gone")

	for i := range 5 {
		a.Step(t0.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 1, logger.warns)
}

func TestArbiter_Run(t *testing.T) {
	a, _, p := newTestArbiter(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.Buttons() <- buttons.CmdCycleEffect
	require.Eventually(t, func() bool {
		return a.Snapshot().Effect == render.EffectFire
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.True(t, p.closed)
}

func TestMultiPanel(t *testing.T) {
	ok := &fakePanel{}
	bad := &fakePanel{err: errors.New("boom")}
	m := MultiPanel{ok, bad}

	err := m.Show(render.NewFrame(render.Width, render.Height))
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.frames, 1)
	assert.NoError(t, m.Close())
	assert.True(t, ok.closed && bad.closed)
}

func TestTerminalPanel(t *testing.T) {
	var buf bytes.Buffer
	p := NewTerminalPanel(&buf)

	f := render.NewFrame(render.Width, render.Height)
	f.SetPixel(0, 0, render.NewRGB(1, 2, 3))
	require.NoError(t, p.Show(f))

	out := buf.String()
	assert.Contains(t, out, "\x1b[48;2;1;2;3m")
	assert.Equal(t, render.Height, strings.Count(out, "\n"))

	buf.Reset()
	require.NoError(t, p.Show(f))
	assert.Empty(t, buf.String(), "unchanged frames are not redrawn")
	require.NoError(t, p.Close())
}
