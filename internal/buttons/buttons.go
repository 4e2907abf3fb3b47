// Package buttons turns raw button line levels into discrete Commands.
//
// An Input polls a Source at a fixed interval, feeds the samples through a
// Debouncer and emits one Command per accepted press. A transition is
// accepted only after it has been stable for N consecutive samples.
package buttons

import "strings"

// Button identifies one physical button on the Galactic Unicorn.
type Button int

const (
	ButtonA Button = iota
	ButtonB
	ButtonC
	ButtonD
	ButtonSleep
	ButtonBrightnessUp
	ButtonBrightnessDown

	numButtons
)

var buttonNames = [numButtons]string{
	ButtonA:              "a",
	ButtonB:              "b",
	ButtonC:              "c",
	ButtonD:              "d",
	ButtonSleep:          "sleep",
	ButtonBrightnessUp:   "brightness_up",
	ButtonBrightnessDown: "brightness_down",
}

func (b Button) String() string {
	if b < 0 || b >= numButtons {
		return "unknown"
	}
	return buttonNames[b]
}

// ParseButton resolves a button name as used on the button/set topic.
func ParseButton(name string) (Button, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for b, n := range buttonNames {
		if n == name {
			return Button(b), true
		}
	}
	return 0, false
}

// Levels is a bitmask of pressed buttons.
type Levels uint16

// Pressed reports whether b is set.
func (l Levels) Pressed(b Button) bool {
	return l&(1<<uint(b)) != 0
}

// With returns l with b set.
func (l Levels) With(b Button) Levels {
	return l | 1<<uint(b)
}

// Command is a user intent derived from a button press.
type Command int

const (
	CmdNone Command = iota
	CmdShowClock
	CmdCycleEffect
	CmdShowDate
	CmdReplayMessage
	CmdToggleBlank
	CmdBrightnessUp
	CmdBrightnessDown
	CmdBrightnessUpLarge
	CmdBrightnessDownLarge
	CmdBrightnessMax
	CmdBrightnessMin
)

func (c Command) String() string {
	switch c {
	case CmdShowClock:
		return "show_clock"
	case CmdCycleEffect:
		return "cycle_effect"
	case CmdShowDate:
		return "show_date"
	case CmdReplayMessage:
		return "replay_message"
	case CmdToggleBlank:
		return "toggle_blank"
	case CmdBrightnessUp:
		return "brightness_up"
	case CmdBrightnessDown:
		return "brightness_down"
	case CmdBrightnessUpLarge:
		return "brightness_up_large"
	case CmdBrightnessDownLarge:
		return "brightness_down_large"
	case CmdBrightnessMax:
		return "brightness_max"
	case CmdBrightnessMin:
		return "brightness_min"
	default:
		return "none"
	}
}

// CommandFor maps a button to its command. Physical presses and simulated
// presses from the button/set topic share this mapping.
func CommandFor(b Button) Command {
	switch b {
	case ButtonA:
		return CmdShowClock
	case ButtonB:
		return CmdCycleEffect
	case ButtonC:
		return CmdShowDate
	case ButtonD:
		return CmdReplayMessage
	case ButtonSleep:
		return CmdToggleBlank
	case ButtonBrightnessUp:
		return CmdBrightnessUp
	case ButtonBrightnessDown:
		return CmdBrightnessDown
	default:
		return CmdNone
	}
}

// CommandForPress maps a classified press to its command. Long and double
// presses only differ from short ones on the brightness buttons.
func CommandForPress(b Button, p Press) Command {
	switch {
	case b == ButtonBrightnessUp && p == PressLong:
		return CmdBrightnessMax
	case b == ButtonBrightnessUp && p == PressDouble:
		return CmdBrightnessUpLarge
	case b == ButtonBrightnessDown && p == PressLong:
		return CmdBrightnessMin
	case b == ButtonBrightnessDown && p == PressDouble:
		return CmdBrightnessDownLarge
	}
	return CommandFor(b)
}
