package api

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/logging"
	"github.com/domneedham/galactic-unicorn-go/internal/render"
)

// Message types exchanged with browsers.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeEvent       = "event"
	TypeAck         = "ack"
	TypeError       = "error"
)

// ChannelFrame carries every changed frame as a FramePayload.
const ChannelFrame = "frame"

const (
	// Frames arrive at the display rate; a stalled browser drops frames
	// instead of queueing seconds of them.
	viewerBuffer = 16

	pingEvery    = 30 * time.Second
	pongWait     = 10 * time.Second
	writeWait    = 5 * time.Second
	maxInboundSz = 4096
)

// Message is the envelope for every WebSocket message in both directions.
type Message struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// FramePayload is one rendered frame. Pixels is the hex encoding of the
// row-major RGB bytes, already scaled to the panel brightness.
type FramePayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels string `json:"pixels"`
}

func encodeFrame(f *render.Frame) json.RawMessage {
	//nolint:errcheck // FramePayload always marshals
	b, _ := json.Marshal(FramePayload{
		Width:  f.Width,
		Height: f.Height,
		Pixels: hex.EncodeToString(f.Pixels),
	})
	return b
}

// Hub fans frames out to connected browsers. It implements display.Panel,
// so the arbiter can draw on it like on any other panel.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	viewers map[*viewer]struct{}

	frameMu sync.Mutex
	last    *render.Frame // never mutated once stored
}

// NewHub creates a hub with no viewers.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		viewers: make(map[*viewer]struct{}),
	}
}

// Show broadcasts f on ChannelFrame when it differs from the previous frame.
// The hub keeps a copy so late subscribers get the current picture.
func (h *Hub) Show(f *render.Frame) error {
	h.frameMu.Lock()
	if h.last != nil && h.last.Width == f.Width && bytes.Equal(h.last.Pixels, f.Pixels) {
		h.frameMu.Unlock()
		return nil
	}
	h.last = f.Clone()
	h.frameMu.Unlock()

	if h.ClientCount() > 0 {
		h.Broadcast(ChannelFrame, encodeFrame(f))
	}
	return nil
}

// Close disconnects every viewer. The hub stays usable afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		delete(h.viewers, v)
		close(v.send)
		v.conn.Close()
	}
	return nil
}

func (h *Hub) current() *render.Frame {
	h.frameMu.Lock()
	defer h.frameMu.Unlock()
	return h.last
}

// Broadcast sends payload to every viewer subscribed to channel.
func (h *Hub) Broadcast(channel string, payload json.RawMessage) {
	data, err := json.Marshal(Message{Type: TypeEvent, Channel: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		if v.subscribed(channel) {
			v.offer(data)
		}
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	n := len(h.viewers)
	h.mu.Unlock()
	h.logger.Debug("preview client connected", "clients", n)
}

// remove drops v. Whoever removes v from the map closes its send channel,
// so Close and a disconnecting reader never both close it.
func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	if ok {
		delete(h.viewers, v)
		close(v.send)
	}
	n := len(h.viewers)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("preview client disconnected", "clients", n)
	}
}

// viewer is one connected browser.
type viewer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the request and starts the viewer's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	v := &viewer{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, viewerBuffer),
		channels: make(map[string]struct{}),
	}
	s.hub.add(v)

	go v.writeLoop()
	go v.readLoop()
}

// offer queues data without blocking. It must be called with the hub's
// lock held, which keeps send open for the duration.
func (v *viewer) offer(data []byte) {
	select {
	case v.send <- data:
	default:
	}
}

func (v *viewer) subscribed(channel string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.channels[channel]
	return ok
}

// reply queues a message for this viewer only.
func (v *viewer) reply(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	v.hub.mu.RLock()
	defer v.hub.mu.RUnlock()
	if _, ok := v.hub.viewers[v]; ok {
		v.offer(data)
	}
}

func (v *viewer) readLoop() {
	defer func() {
		v.hub.remove(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxInboundSz)
	extend := func() {
		//nolint:errcheck // A failed deadline surfaces as a read error
		v.conn.SetReadDeadline(time.Now().Add(pingEvery + pongWait))
	}
	extend()
	v.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.hub.logger.Debug("preview client read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any message counts.
		extend()
		v.handle(data)
	}
}

func (v *viewer) writeLoop() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			//nolint:errcheck // A failed deadline surfaces as a write error
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close frame
				v.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // A failed deadline surfaces as a write error
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (v *viewer) handle(data []byte) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		v.reply(Message{Type: TypeError, Payload: errorPayload("invalid JSON message")})
		return
	}

	switch m.Type {
	case TypeSubscribe:
		v.mu.Lock()
		for _, ch := range m.Channels {
			v.channels[ch] = struct{}{}
		}
		v.mu.Unlock()
		v.reply(Message{Type: TypeAck, ID: m.ID, Channels: m.Channels})

		// Paint the current picture straight away instead of waiting for a change.
		if f := v.hub.current(); f != nil && contains(m.Channels, ChannelFrame) {
			v.reply(Message{Type: TypeEvent, Channel: ChannelFrame, Payload: encodeFrame(f)})
		}
	case TypeUnsubscribe:
		v.mu.Lock()
		for _, ch := range m.Channels {
			delete(v.channels, ch)
		}
		v.mu.Unlock()
		v.reply(Message{Type: TypeAck, ID: m.ID, Channels: m.Channels})
	case TypePing:
		v.reply(Message{Type: TypePong, ID: m.ID})
	default:
		v.reply(Message{Type: TypeError, ID: m.ID, Payload: errorPayload("unknown message type: " + m.Type)})
	}
}

func errorPayload(msg string) json.RawMessage {
	//nolint:errcheck // A string map always marshals
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
