package api

import (
	"net/http"
	"time"

	"github.com/domneedham/galactic-unicorn-go/internal/session"
)

type linkView struct {
	Phase   string    `json:"phase"`
	Attempt int       `json:"attempt,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since"`
}

type sessionView struct {
	State  string    `json:"state"`
	ID     string    `json:"id,omitempty"`
	Topics []string  `json:"topics,omitempty"`
	Since  time.Time `json:"since,omitzero"`
}

type timeView struct {
	Now      string    `json:"now"`
	Synced   bool      `json:"synced"`
	LastSync time.Time `json:"last_sync,omitzero"`
	OffsetMS int64     `json:"offset_ms"`
}

type healthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Link    linkView    `json:"link"`
	Session sessionView `json:"session"`
	Time    timeView    `json:"time"`
}

type displayView struct {
	Showing    string `json:"showing"`
	Effect     string `json:"effect"`
	Brightness uint8  `json:"brightness"`
	Color      string `json:"color"`
	Blank      bool   `json:"blank"`
	Message    string `json:"message,omitempty"`
}

type queueView struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
}

type statusResponse struct {
	healthResponse
	DeviceID string         `json:"device_id"`
	Uptime   string         `json:"uptime"`
	Display  *displayView   `json:"display,omitempty"`
	Queue    *queueView     `json:"queue,omitempty"`
	Counters *session.Stats `json:"counters,omitempty"`
	Viewers  int            `json:"preview_clients"`
}

// health gathers the summary reported by both endpoints. The device is
// healthy when the link is up, a session is established and the clock has
// been synchronised at least once.
func (s *Server) health() (healthResponse, bool) {
	ls := s.link.Get()
	resp := healthResponse{
		Version: s.version,
		Link: linkView{
			Phase:   ls.Phase.String(),
			Attempt: ls.Attempt,
			Reason:  ls.Reason,
			Since:   ls.Since,
		},
		Session: sessionView{State: session.Offline.String()},
	}

	sessionUp := false
	if s.session != nil {
		info := s.session.Info().Get()
		resp.Session = sessionView{
			State:  info.State.String(),
			ID:     info.ID,
			Topics: info.Topics,
			Since:  info.Since,
		}
		sessionUp = info.State != session.Offline && info.State != session.Handshaking
	}

	ts := s.clock.Status()
	resp.Time = timeView{
		Now:      s.clock.Now().Format(time.RFC3339),
		Synced:   ts.Synced,
		LastSync: ts.LastSync,
		OffsetMS: ts.Offset.Milliseconds(),
	}

	ok := ls.Up() && sessionUp && ts.Synced
	resp.Status = "ok"
	if !ok {
		resp.Status = "degraded"
	}
	return resp, ok
}

// handleHealth returns the link, session and time sync summary.
// A degraded device answers 503 so simple probes can alert on it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp, ok := s.health()
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// handleStatus returns the full diagnostic view. It always answers 200.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	h, _ := s.health()
	resp := statusResponse{
		healthResponse: h,
		DeviceID:       s.deviceID,
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.display != nil {
		st := s.display.Snapshot()
		resp.Display = &displayView{
			Showing:    st.Showing.String(),
			Effect:     string(st.Effect),
			Brightness: st.Brightness,
			Color:      st.Color.Triplet(),
			Blank:      st.Blank,
			Message:    st.Message,
		}
	}
	if s.queue != nil {
		resp.Queue = &queueView{Length: s.queue.Len(), Capacity: s.queue.Capacity()}
	}
	if s.session != nil {
		stats := s.session.Stats()
		resp.Counters = &stats
	}
	if s.hub != nil {
		resp.Viewers = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
