// Package main hosts the tipflow CLI entrypoint and command graph.
//
// The Cobra command tree drives a single generation run, manual approval and
// rejection of pending items, repository and environment status, and config
// scaffolding. Commands share one lazily loaded config and the component
// wiring from internal/daemonrun, so they exercise the same store, publisher
// and notifier code as the daemon.
package main
