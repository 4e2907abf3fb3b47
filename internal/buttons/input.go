package buttons

import (
	"context"
	"time"
)

// Source samples the raw button lines.
type Source interface {
	Sample() (Levels, error)
	Close() error
}

// Logger defines the logging interface for button input.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Input polls a Source and emits Commands for accepted presses.
type Input struct {
	src      Source
	debounce *Debouncer
	classify *Classifier
	interval time.Duration
	out      chan<- Command
	logger   Logger
}

// NewInput creates an Input.
//
// Parameters:
//   - src: Line source to poll
//   - samples: Consecutive stable samples required to accept a transition
//   - interval: Polling interval
//   - out: Channel receiving commands (owned by the display arbiter)
func NewInput(src Source, samples int, interval time.Duration, out chan<- Command) *Input {
	return &Input{
		src:      src,
		debounce: NewDebouncer(samples),
		classify: NewClassifier(DefaultLongPress, DefaultDoublePress),
		interval: interval,
		out:      out,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the input.
func (in *Input) SetLogger(logger Logger) {
	in.logger = logger
}

// SetPressTiming sets the long press threshold and the double press window.
// It must be called before Run.
func (in *Input) SetPressTiming(long, double time.Duration) {
	in.classify = NewClassifier(long, double)
}

// Run polls until ctx is cancelled. Sampling errors are logged once per
// run of failures and otherwise ignored.
func (in *Input) Run(ctx context.Context) error {
	defer in.src.Close()

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	failing := false
	for {
		var now time.Time
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now = <-ticker.C:
		}

		raw, err := in.src.Sample()
		if err != nil {
			if !failing {
				in.logger.Warn("button sample failed", "error", err)
			}
			failing = true
			continue
		}
		failing = false

		pressed, released := in.debounce.Update(raw)
		if err := in.emit(ctx, in.classify.Update(pressed, released, now)); err != nil {
			return err
		}
	}
}

func (in *Input) emit(ctx context.Context, events []Event) error {
	for _, e := range events {
		cmd := CommandForPress(e.Button, e.Press)
		in.logger.Debug("button pressed", "button", e.Button.String(), "press", e.Press.String(), "command", cmd.String())
		select {
		case in.out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// NoSource is a Source with no buttons.
type NoSource struct{}

func (NoSource) Sample() (Levels, error) { return 0, nil }
func (NoSource) Close() error            { return nil }
