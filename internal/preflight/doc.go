// Package preflight runs readiness checks before tipflow does any work: the
// git binary, repository and state directory access, and the text model
// endpoint when one is configured.
//
// The CLI status command prints these results; the daemon logs failures at
// startup without refusing to start.
package preflight
