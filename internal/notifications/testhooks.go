package notifications

import (
	"context"
	"net/smtp"
)

// SetMailSenderForTests overrides SMTP delivery during tests.
func SetMailSenderForTests(fn func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error) func() {
	previous := mailSender
	mailSender = fn
	return func() {
		mailSender = previous
	}
}
