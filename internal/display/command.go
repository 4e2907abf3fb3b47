package display

import (
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// Kind is the variant of a DisplayCommand.
type Kind int

const (
	KindClock Kind = iota
	KindEffect
	KindMessage
	KindDate
	KindBlank
)

func (k Kind) String() string {
	switch k {
	case KindClock:
		return "clock"
	case KindEffect:
		return "effect"
	case KindMessage:
		return "message"
	case KindDate:
		return "date"
	case KindBlank:
		return "blank"
	default:
		return "unknown"
	}
}

// Command is the one renderable request chosen for a tick.
type Command struct {
	Kind    Kind
	Effect  render.EffectID
	Params  render.EffectParams
	Message queue.Message
}

// ControlOp identifies a configuration change requested over MQTT.
type ControlOp int

const (
	OpSetEffect ControlOp = iota + 1
	OpSetBrightness
	OpSetColor
)

// Control is a configuration change for the arbiter. Button commands use
// buttons.Command instead.
type Control struct {
	Op         ControlOp
	Effect     render.EffectID
	Brightness uint8
	Color      render.RGB
}

// State is the externally visible display configuration.
type State struct {
	Effect     render.EffectID
	Brightness uint8
	Color      render.RGB // accent for the clock face and messages
	Blank      bool
	Showing    Kind
	Message    string // text of the message most recently put on screen
}
