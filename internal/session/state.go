package session

import (
	"errors"
	"time"
)

var (
	// ErrSession wraps handshake, subscribe, keep-alive and transport failures.
	ErrSession = errors.New("session: messaging session error")

	// ErrMalformedPayload marks an inbound publish that could not be decoded.
	// It is logged and dropped, never propagated.
	ErrMalformedPayload = errors.New("session: malformed payload")
)

// State is the messaging session phase.
type State int

const (
	Offline State = iota
	Handshaking
	Subscribed
	Publishing
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case Handshaking:
		return "handshaking"
	case Subscribed:
		return "subscribed"
	case Publishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// Info is the published session status.
type Info struct {
	State  State
	ID     string   // unique per establishment; empty while Offline
	Topics []string // subscribed topic set; nil until Subscribed
	Since  time.Time
}

// Stats counts session events since boot.
type Stats struct {
	Establishments uint64 `json:"establishments"`
	Announcements  uint64 `json:"announcements"`
	Malformed      uint64 `json:"malformed"`
	Evictions      uint64 `json:"evictions"`
}
