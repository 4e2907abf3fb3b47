// Package display owns the LED panel.
//
// The Arbiter is the only component that pushes frames. Every tick it selects
// exactly one Command, in priority order: the message currently on screen,
// then the next queued message, then a button-requested date overlay, then
// the active effect, then the clock. Blank and brightness are modifiers
// applied to whatever was selected. While blanked no new message is taken
// from the queue.
package display

import (
	"context"
	"sync"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// Brightness changes made by the brightness buttons.
const (
	BrightnessStep      = 10  // short press
	BrightnessLargeStep = 50  // double press
	BrightnessMax       = 255 // long press up
	BrightnessMin       = 20  // long press down
)

const (
	controlBuffer = 16
	updateBuffer  = 8
)

// TimeSource supplies the wall-clock estimate shown on the clock face.
type TimeSource interface {
	Now() time.Time
}

// Logger defines the logging interface for the arbiter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the arbiter settings.
type Config struct {
	FrameInterval      time.Duration
	MinMessageDuration time.Duration
	ScrollSpeed        int // pixels per second
	Brightness         uint8
	Color              render.RGB // zero means render.ColorClock
	ClockStyle         render.ClockStyle
	Effect             render.EffectID
}

type window struct {
	msg   queue.Message
	start time.Time
	until time.Time
}

// Arbiter selects and renders one command per tick.
type Arbiter struct {
	cfg    Config
	panel  Panel
	queue  *queue.Queue
	clock  TimeSource
	logger Logger

	controls chan Control
	buttons  chan buttons.Command
	updates  chan State

	// Owned by the goroutine calling Step and Apply.
	effect      render.EffectID
	effectStart time.Time
	brightness  uint8
	color       render.RGB
	blank       bool
	active      *window
	dateUntil   time.Time
	last        *queue.Message
	frame       *render.Frame
	panelFailed bool

	mu       sync.RWMutex
	snapshot State
}

// NewArbiter creates an arbiter drawing onto panel.
//
// Parameters:
//   - cfg: Frame cadence, message timing and initial brightness/effect
//   - panel: Frame sink; owned by the arbiter from now on
//   - q: Message queue (the arbiter is its only reader)
//   - clock: Wall-clock estimate for the clock face
func NewArbiter(cfg Config, panel Panel, q *queue.Queue, clock TimeSource) *Arbiter {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 50 * time.Millisecond
	}
	if cfg.Effect == "" {
		cfg.Effect = render.EffectNone
	}
	if cfg.Color == (render.RGB{}) {
		cfg.Color = render.ColorClock
	}
	a := &Arbiter{
		cfg:        cfg,
		panel:      panel,
		queue:      q,
		clock:      clock,
		logger:     noopLogger{},
		controls:   make(chan Control, controlBuffer),
		buttons:    make(chan buttons.Command, controlBuffer),
		updates:    make(chan State, updateBuffer),
		effect:     cfg.Effect,
		brightness: cfg.Brightness,
		color:      cfg.Color,
		frame:      render.NewFrame(render.Width, render.Height),
	}
	a.snapshot = a.state(KindClock)
	return a
}

// SetLogger sets the logger for the arbiter.
func (a *Arbiter) SetLogger(logger Logger) {
	a.logger = logger
}

// Controls returns the channel for MQTT-originated configuration changes.
func (a *Arbiter) Controls() chan<- Control {
	return a.controls
}

// Buttons returns the channel for button commands.
func (a *Arbiter) Buttons() chan<- buttons.Command {
	return a.buttons
}

// StateUpdates delivers display state after every externally visible change.
// Slow readers only miss intermediate states, never the latest one.
func (a *Arbiter) StateUpdates() <-chan State {
	return a.updates
}

// Snapshot returns the state as of the last tick. Safe for concurrent use.
func (a *Arbiter) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Run ticks at the frame interval until ctx is cancelled, then closes the panel.
func (a *Arbiter) Run(ctx context.Context) error {
	defer a.panel.Close()

	ticker := time.NewTicker(a.cfg.FrameInterval)
	defer ticker.Stop()

	a.announce(a.Step(time.Now()).Kind)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-a.controls:
			a.Apply(c, time.Now())
		case b := <-a.buttons:
			a.Press(b, time.Now())
		case now := <-ticker.C:
			a.Step(now)
		}
	}
}

// Apply executes an MQTT-originated configuration change.
func (a *Arbiter) Apply(c Control, now time.Time) {
	switch c.Op {
	case OpSetEffect:
		a.setEffect(c.Effect, now)
	case OpSetBrightness:
		a.setBrightness(c.Brightness)
	case OpSetColor:
		a.setColor(c.Color)
	}
}

// Press executes a button command. Blank and brightness only modify the
// frame; the rest change what is selected.
func (a *Arbiter) Press(cmd buttons.Command, now time.Time) {
	switch cmd {
	case buttons.CmdShowClock:
		a.dateUntil = time.Time{}
		a.setEffect(render.EffectNone, now)
	case buttons.CmdCycleEffect:
		a.setEffect(render.NextEffect(a.effect), now)
	case buttons.CmdShowDate:
		a.dateUntil = now.Add(a.cfg.MinMessageDuration)
	case buttons.CmdReplayMessage:
		if a.active == nil && a.last != nil {
			a.startWindow(*a.last, now)
		}
	case buttons.CmdToggleBlank:
		a.blank = !a.blank
		a.logger.Info("display blank toggled", "blank", a.blank)
		a.announce(a.selectedKind())
	case buttons.CmdBrightnessUp:
		a.stepBrightness(BrightnessStep)
	case buttons.CmdBrightnessDown:
		a.stepBrightness(-BrightnessStep)
	case buttons.CmdBrightnessUpLarge:
		a.stepBrightness(BrightnessLargeStep)
	case buttons.CmdBrightnessDownLarge:
		a.stepBrightness(-BrightnessLargeStep)
	case buttons.CmdBrightnessMax:
		a.setBrightness(BrightnessMax)
	case buttons.CmdBrightnessMin:
		a.setBrightness(BrightnessMin)
	}
}

// stepBrightness changes brightness by delta, saturating at 0 and 255.
func (a *Arbiter) stepBrightness(delta int) {
	a.setBrightness(uint8(min(max(int(a.brightness)+delta, 0), 255)))
}

func (a *Arbiter) setEffect(id render.EffectID, now time.Time) {
	if id == "" {
		id = render.EffectNone
	}
	if id == a.effect {
		return
	}
	a.effect = id
	a.effectStart = now
	a.logger.Info("effect changed", "effect", string(id))
	a.announce(a.selectedKind())
}

func (a *Arbiter) setBrightness(level uint8) {
	if level == a.brightness {
		return
	}
	a.brightness = level
	a.logger.Debug("brightness changed", "brightness", level)
	a.announce(a.selectedKind())
}

func (a *Arbiter) setColor(c render.RGB) {
	if c == a.color {
		return
	}
	a.color = c
	a.logger.Info("colour changed", "color", c.Triplet())
	a.announce(a.selectedKind())
}

// Step selects the command for this tick, renders it and pushes one frame.
// It returns the command that was rendered.
func (a *Arbiter) Step(now time.Time) Command {
	cmd := a.selectCommand(now)
	if a.blank {
		cmd = Command{Kind: KindBlank}
	}

	a.render(cmd, now)
	a.frame.Dim(a.brightness)
	if err := a.panel.Show(a.frame); err != nil {
		if !a.panelFailed {
			a.logger.Warn("panel write failed", "error", err)
		}
		a.panelFailed = true
	} else {
		a.panelFailed = false
	}

	a.mu.Lock()
	a.snapshot = a.state(cmd.Kind)
	a.mu.Unlock()
	return cmd
}

func (a *Arbiter) selectCommand(now time.Time) Command {
	if a.active != nil {
		if !now.Before(a.active.until) {
			a.active = nil
		} else if now.Sub(a.active.start) >= a.cfg.MinMessageDuration {
			if next, ok := a.queue.Peek(now); ok && next.Priority > a.active.msg.Priority {
				a.logger.Debug("message preempted", "seq", a.active.msg.Seq, "by", next.Seq)
				a.active = nil
			}
		}
	}

	if a.active == nil && !a.blank {
		if m, ok := a.queue.Next(now); ok {
			a.startWindow(m, now)
		}
	}

	switch {
	case a.active != nil:
		return Command{Kind: KindMessage, Message: a.active.msg}
	case now.Before(a.dateUntil):
		return Command{Kind: KindDate}
	case a.effect != render.EffectNone:
		return Command{Kind: KindEffect, Effect: a.effect, Params: render.DefaultParams()}
	default:
		return Command{Kind: KindClock}
	}
}

// startWindow puts m on screen for max(TTL, minimum duration, one scroll pass).
func (a *Arbiter) startWindow(m queue.Message, now time.Time) {
	d := max(m.TTL, a.cfg.MinMessageDuration, render.ScrollDuration(m.Text, render.Width, a.cfg.ScrollSpeed))
	a.active = &window{msg: m, start: now, until: now.Add(d)}
	last := m
	a.last = &last
	a.logger.Debug("message shown", "seq", m.Seq, "priority", m.Priority, "duration", d)
	a.announce(KindMessage)
}

// WindowRemaining reports how long the message on screen has left.
func (a *Arbiter) WindowRemaining(now time.Time) time.Duration {
	if a.active == nil {
		return 0
	}
	return max(a.active.until.Sub(now), 0)
}

func (a *Arbiter) render(cmd Command, now time.Time) {
	switch cmd.Kind {
	case KindMessage:
		render.RenderText(a.frame, cmd.Message.Text, now.Sub(a.active.start), a.cfg.ScrollSpeed, render.Solid(a.color))
	case KindDate:
		render.RenderDate(a.frame, a.clock.Now())
	case KindEffect:
		render.RenderEffect(a.frame, cmd.Effect, cmd.Params, now.Sub(a.effectStart))
	case KindBlank:
		a.frame.Clear()
	default:
		render.RenderClock(a.frame, a.clock.Now(), a.cfg.ClockStyle, a.color)
	}
}

func (a *Arbiter) selectedKind() Kind {
	switch {
	case a.blank:
		return KindBlank
	case a.active != nil:
		return KindMessage
	case a.effect != render.EffectNone:
		return KindEffect
	default:
		return KindClock
	}
}

func (a *Arbiter) state(showing Kind) State {
	s := State{
		Effect:     a.effect,
		Brightness: a.brightness,
		Color:      a.color,
		Blank:      a.blank,
		Showing:    showing,
	}
	if a.last != nil {
		s.Message = a.last.Text
	}
	return s
}

// announce publishes the current state, replacing the oldest pending update
// when the buffer is full.
func (a *Arbiter) announce(showing Kind) {
	s := a.state(showing)
	a.mu.Lock()
	a.snapshot = s
	a.mu.Unlock()

	for {
		select {
		case a.updates <- s:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}
