// Package services defines shared utilities consumed by the workflow and the
// external integrations (model endpoint, git, mail, ntfy).
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (configuration vs external service vs validation).
//   - A Clock abstraction so timestamps and schedules are testable.
package services
