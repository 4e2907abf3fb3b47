// Package api implements the clock's local status server.
//
// This package provides:
//   - GET /api/v1/health: link, session and time sync in one summary
//   - GET /api/v1/status: the full diagnostic view (display, queue, counters)
//   - GET /ws: a WebSocket hub streaming rendered frames to browsers
//   - GET /: the embedded virtual panel page that draws those frames
//
// # Architecture
//
// The server only reads. Every value it reports comes from an observable
// owned by another component (watch values, snapshots, counters), so a slow
// HTTP client can never stall the display or the messaging session.
//
// The Hub doubles as a display.Panel: when the display driver is "preview"
// the arbiter hands it each frame and the hub fans it out to subscribed
// clients.
//
// # WebSocket messages
//
// Every message is a JSON Message envelope:
//
//	→ {"type":"subscribe","id":"1","channels":["frame"]}
//	← {"type":"ack","id":"1","channels":["frame"]}
//	← {"type":"event","channel":"frame","payload":{"width":53,"height":11,"pixels":"ff0010..."}}
//
// ping gets pong, unsubscribe gets ack, anything else gets an error.
//
// # Security
//
// There is no authentication. The server binds to 127.0.0.1 by default and
// exposes nothing that can change device state.
package api
