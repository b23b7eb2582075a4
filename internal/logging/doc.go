// Package logging assembles the structured slog loggers used across tipflow.
//
// It owns the console and JSON handlers, level parsing, optional file output
// fanned out next to the terminal handler, and context-aware helpers that tag
// log lines with run IDs, stages, and request IDs. NewNop provides a silent
// logger for tests and wiring code that cannot fail.
package logging
