// Package workflow coordinates the daily generate-and-approve cycle.
//
// Runner.RunOnce drafts an item, saves it, records a pending approval and
// notifies the reviewer. Approver turns a reviewer decision into a store
// transition: approval publishes the item inside the store's decision lock so
// a failed push leaves the request pending, and rejection discards the file.
// The HTTP handlers in internal/daemon and the CLI both go through Approver.
package workflow
