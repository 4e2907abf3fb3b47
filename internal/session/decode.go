package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/domneedham/galactic-unicorn-go/internal/buttons"
	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
	"github.com/domneedham/galactic-unicorn-go/internal/queue"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// ActionKind is what an inbound publish asks the device to do.
type ActionKind int

const (
	ActionMessage ActionKind = iota + 1
	ActionEffect
	ActionBrightness
	ActionButton
	ActionTimeSync
	ActionColor
)

// Action is a decoded inbound publish.
type Action struct {
	Kind       ActionKind
	Message    queue.Message
	Effect     render.EffectID
	Brightness uint8
	Color      render.RGB
	Button     buttons.Command
}

// messagePayload is the structured form of a display request.
type messagePayload struct {
	Text     string `json:"text"`
	TTL      int    `json:"ttl"` // seconds
	Priority int    `json:"priority"`
}

// Decode maps an inbound publish onto an Action. Unknown topics and payloads
// that cannot be decoded return ErrMalformedPayload.
func Decode(topics config.TopicSet, topic string, payload []byte) (Action, error) {
	if !utf8.Valid(payload) {
		return Action{}, fmt.Errorf("%w: %s: invalid UTF-8", ErrMalformedPayload, topic)
	}
	body := strings.TrimSpace(string(payload))

	switch topic {
	case topics.Message:
		return decodeMessage(topic, body)

	case topics.EffectSet:
		id, ok := render.ParseEffect(body)
		if !ok {
			return Action{}, fmt.Errorf("%w: %s: unknown effect %q", ErrMalformedPayload, topic, body)
		}
		return Action{Kind: ActionEffect, Effect: id}, nil

	case topics.BrightnessSet:
		v, err := strconv.ParseFloat(body, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 255 {
			return Action{}, fmt.Errorf("%w: %s: brightness %q not in 0-255", ErrMalformedPayload, topic, body)
		}
		return Action{Kind: ActionBrightness, Brightness: uint8(math.Round(v))}, nil

	case topics.ColorSet:
		c, err := render.ParseRGB(body)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, topic, err)
		}
		return Action{Kind: ActionColor, Color: c}, nil

	case topics.ButtonSet:
		b, ok := buttons.ParseButton(body)
		if !ok {
			return Action{}, fmt.Errorf("%w: %s: unknown button %q", ErrMalformedPayload, topic, body)
		}
		return Action{Kind: ActionButton, Button: buttons.CommandFor(b)}, nil

	case topics.NTPSync:
		return Action{Kind: ActionTimeSync}, nil
	}

	return Action{}, fmt.Errorf("%w: unexpected topic %q", ErrMalformedPayload, topic)
}

// decodeMessage accepts plain text or {"text","ttl","priority"}. A body that
// looks like JSON but does not parse is shown as text.
func decodeMessage(topic, body string) (Action, error) {
	m := queue.Message{Text: body}
	if strings.HasPrefix(body, "{") {
		var p messagePayload
		if err := json.Unmarshal([]byte(body), &p); err == nil {
			if p.TTL < 0 || p.Priority < 0 {
				return Action{}, fmt.Errorf("%w: %s: negative ttl or priority", ErrMalformedPayload, topic)
			}
			m = queue.Message{
				Text:     strings.TrimSpace(p.Text),
				TTL:      time.Duration(p.TTL) * time.Second,
				Priority: p.Priority,
			}
		}
	}
	if m.Text == "" {
		return Action{}, fmt.Errorf("%w: %s: empty message", ErrMalformedPayload, topic)
	}
	return Action{Kind: ActionMessage, Message: m}, nil
}
