package preflight

import "tipflow/internal/config"

// SetLookPathForTests swaps the binary lookup and returns a restore func.
func SetLookPathForTests(fn func(string) (string, error)) func() {
	prev := lookPath
	lookPath = fn
	return func() { lookPath = prev }
}

// SetHealthCheckerForTests swaps the model client factory and returns a
// restore func.
func SetHealthCheckerForTests(fn func() (HealthChecker, error)) func() {
	prev := newHealthChecker
	newHealthChecker = func(*config.Config) (HealthChecker, error) { return fn() }
	return func() { newHealthChecker = prev }
}
