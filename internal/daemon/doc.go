// Package daemon runs the long-lived tipflow process.
//
// It serves the approval endpoints reviewers reach from notification links,
// runs the daily generation job on a wall-clock schedule, and holds a flock
// on the state directory so only one instance runs per installation.
package daemon
