// Package logging sets up the log/slog logger shared by every component.
//
// Entries are JSON unless logging.format is "text", filtered by
// logging.level, and written to logging.output (stdout or stderr). Each one
// carries service, version and device_id; components add their own name:
//
//	log := logging.New(cfg.Logging, version, cfg.Device.ID)
//	link.SetLogger(log.Component("connectivity"))
//
// Log state transitions, not steady state. Passwords never reach a log line.
package logging
