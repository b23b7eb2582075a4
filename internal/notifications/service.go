package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/logging"
)

const userAgent = "tipflow/0.1.0"

// ErrNotConfigured reports that no transport is available.
var ErrNotConfigured = errors.New("no notifier configured")

// ApprovalRequest carries what a reviewer needs to decide on an item.
type ApprovalRequest struct {
	Item       content.Item
	Token      string
	ApproveURL string
	RejectURL  string
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyApprovalRequested(ctx context.Context, req ApprovalRequest) error
	NotifyPublished(ctx context.Context, item content.Item, viewURL string) error
	NotifyError(ctx context.Context, err error, label string) error
	TestNotification(ctx context.Context) error
}

// NewService builds the configured transports. With none configured a noop
// implementation is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	logger = logging.NewComponentLogger(logger, "notifier")
	var channels []channel
	if cfg.Email.Configured() {
		channels = append(channels, channel{name: "email", svc: newEmailService(cfg)})
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		channels = append(channels, channel{name: "ntfy", svc: newNtfyService(cfg)})
	}
	if len(channels) == 0 {
		return noopService{}
	}
	return &fanout{channels: channels, logger: logger}
}

type channel struct {
	name string
	svc  Service
}

// fanout delivers to every channel. A delivery counts when at least one
// channel accepted it; failed channels are logged. Test notifications report
// every failure so a broken channel shows up in test-notify.
type fanout struct {
	channels []channel
	logger   *slog.Logger
}

func (f *fanout) NotifyApprovalRequested(ctx context.Context, req ApprovalRequest) error {
	return f.each(ctx, "approval_request", false, func(s Service) error { return s.NotifyApprovalRequested(ctx, req) })
}

func (f *fanout) NotifyPublished(ctx context.Context, item content.Item, viewURL string) error {
	return f.each(ctx, "published", false, func(s Service) error { return s.NotifyPublished(ctx, item, viewURL) })
}

func (f *fanout) NotifyError(ctx context.Context, err error, label string) error {
	return f.each(ctx, "error", false, func(s Service) error { return s.NotifyError(ctx, err, label) })
}

func (f *fanout) TestNotification(ctx context.Context) error {
	return f.each(ctx, "test", true, func(s Service) error { return s.TestNotification(ctx) })
}

func (f *fanout) each(ctx context.Context, event string, strict bool, send func(Service) error) error {
	logger := logging.WithContext(ctx, f.logger)
	var errs []error
	var failed []string
	for _, ch := range f.channels {
		if err := send(ch.svc); err != nil {
			logging.WarnWithHint(logger, "notification delivery failed", "notification_failed",
				"check "+ch.name+" settings", logging.String("channel", ch.name),
				logging.String("event", event), logging.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			failed = append(failed, ch.name)
			continue
		}
		logger.Debug("notification delivered", logging.String("channel", ch.name), logging.String("event", event))
	}
	if len(errs) > 0 && len(errs) < len(f.channels) && !strict {
		logger.Info("notification delivered on some channels",
			logging.String("event", event),
			logging.String("failed_channels", strings.Join(failed, ",")))
		return nil
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) NotifyApprovalRequested(context.Context, ApprovalRequest) error {
	return ErrNotConfigured
}
func (noopService) NotifyPublished(context.Context, content.Item, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return ErrNotConfigured }
