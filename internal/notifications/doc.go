// Package notifications tells the reviewer about approval requests and
// publication results.
//
// Email (SMTP) and ntfy transports are built from config. When both are set
// up, every message goes out on each transport and failures are joined. When
// neither is configured NewService returns a noop whose approval requests fail
// with ErrNotConfigured so callers can fall back to manual instructions.
package notifications
