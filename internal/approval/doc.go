// Package approval persists approval requests keyed by unguessable tokens.
//
// A Record moves from pending to exactly one terminal status (approved or
// rejected) and never back. Decide is the compare-and-swap primitive the
// workflow builds on: it runs a side effect while holding the store's
// exclusive lock and only records the decision when the side effect
// succeeds, so concurrent or repeated decisions cannot publish twice.
//
// Two backends implement Store: a JSON snapshot file guarded by a flock
// (the default, readable by hand) and a SQLite database.
package approval
