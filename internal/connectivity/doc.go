// Package connectivity owns the wireless link state machine.
//
// The Manager is the only writer of ConnectionState. It joins the network
// through an Associator, reports Connected, watches the link and, when the
// link drops, passes through Degraded back to Disconnected before retrying
// with exponential backoff. No failure here is fatal: the clock keeps
// running on its local time estimate while the link is down.
//
//	Disconnected ─► Connecting(n) ─┬─► Connected ─► Degraded(reason) ─► Disconnected
//	      ▲                         └─► Disconnected (after backoff) ──┘
//
// Dependents (time sync, messaging session) observe State() and must only
// act on the newest published state.
package connectivity
