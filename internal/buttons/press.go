package buttons

import "time"

// Default press timings.
const (
	DefaultLongPress   = 500 * time.Millisecond
	DefaultDoublePress = 250 * time.Millisecond
)

// Press is how a button was pressed.
type Press int

const (
	PressShort Press = iota
	PressLong
	PressDouble
)

func (p Press) String() string {
	switch p {
	case PressLong:
		return "long"
	case PressDouble:
		return "double"
	default:
		return "short"
	}
}

// Event is one classified press.
type Event struct {
	Button Button
	Press  Press
}

// pressSensitive reports whether b's command depends on the press type.
// Other buttons report a short press as soon as they go down.
func pressSensitive(b Button) bool {
	return b == ButtonBrightnessUp || b == ButtonBrightnessDown
}

type pressTracker struct {
	down     time.Time // zero while released
	long     bool      // long press already reported for this hold
	second   bool      // this hold completed a double press
	released time.Time // end of a short press waiting for a second one
}

// Classifier turns debounced transitions into short, long and double presses.
//
// A hold reaching the long threshold is a long press, reported while the
// button is still down. A press that starts within the double window after a
// short press ends is a double press. A short press is reported once the
// double window has passed without a second press.
type Classifier struct {
	long   time.Duration
	double time.Duration
	track  [numButtons]pressTracker
}

// NewClassifier creates a Classifier. Non-positive timings use the defaults.
func NewClassifier(long, double time.Duration) *Classifier {
	if long <= 0 {
		long = DefaultLongPress
	}
	if double <= 0 {
		double = DefaultDoublePress
	}
	return &Classifier{long: long, double: double}
}

// Update feeds the transitions accepted by one sample taken at now and
// returns the presses completed by it, in button order.
func (c *Classifier) Update(pressed, released Levels, now time.Time) []Event {
	var out []Event
	for b := Button(0); b < numButtons; b++ {
		if !pressSensitive(b) {
			if pressed.Pressed(b) {
				out = append(out, Event{Button: b, Press: PressShort})
			}
			continue
		}

		t := &c.track[b]
		if pressed.Pressed(b) {
			t.down, t.long, t.second = now, false, false
			if !t.released.IsZero() {
				t.released = time.Time{}
				t.second = true
				out = append(out, Event{Button: b, Press: PressDouble})
			}
		}
		if !t.down.IsZero() && !t.long && !t.second && now.Sub(t.down) >= c.long {
			t.long = true
			out = append(out, Event{Button: b, Press: PressLong})
		}
		if released.Pressed(b) && !t.down.IsZero() {
			if !t.long && !t.second {
				t.released = now
			}
			t.down, t.long, t.second = time.Time{}, false, false
		}
		if !t.released.IsZero() && now.Sub(t.released) >= c.double {
			t.released = time.Time{}
			out = append(out, Event{Button: b, Press: PressShort})
		}
	}
	return out
}
