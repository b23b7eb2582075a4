// Package daemonrun assembles tipflow's runtime components from config and
// runs the long-lived daemon process.
//
// Build is shared by the CLI and the daemon so both drive the same store,
// generator, publisher and notifier wiring. Run owns the daemon lifetime:
// pid file, repository preparation, single-instance lock, approval server and
// scheduler, and shutdown on SIGINT/SIGTERM.
package daemonrun
