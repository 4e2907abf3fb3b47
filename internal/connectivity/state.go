package connectivity

import (
	"errors"
	"fmt"
	"time"
)

// ErrLink is wrapped by every association or transport failure.
var ErrLink = errors.New("connectivity: link error")

// Phase is the coarse link status.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Degraded
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ConnectionState is the published link status.
type ConnectionState struct {
	Phase   Phase
	Attempt int    // join attempt number while Connecting
	Reason  string // loss or failure reason while Degraded or Disconnected
	Since   time.Time
}

// Up reports whether the link is usable.
func (s ConnectionState) Up() bool {
	return s.Phase == Connected
}

func (s ConnectionState) String() string {
	switch s.Phase {
	case Connecting:
		return fmt.Sprintf("connecting(%d)", s.Attempt)
	case Degraded:
		return fmt.Sprintf("degraded(%s)", s.Reason)
	default:
		return s.Phase.String()
	}
}
