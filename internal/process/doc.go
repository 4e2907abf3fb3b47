// Package process is the watchdog that keeps the firmware running.
//
// `unicorn watchdog` re-executes the binary as a child in its own process
// group and waits on it. An abnormal exit, or three failed health probes in
// a row, gets the child restarted after an exponentially growing delay. A
// clean exit or a cancelled context ends the watch; on cancellation the
// child receives SIGTERM and, after GracefulTimeout, SIGKILL.
//
//	m := process.NewManager(process.DefaultConfig("unicorn", exe, nil))
//	m.SetLogger(log)
//	err := m.Run(ctx)
package process
