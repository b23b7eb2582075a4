package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tipflow/internal/approval"
	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/notifications"
	"tipflow/internal/services"
)

// Generator drafts and persists items.
type Generator interface {
	Generate(ctx context.Context) (content.Item, error)
	Save(item content.Item) (string, error)
}

// RunResult summarizes one RunOnce.
type RunResult struct {
	RunID string
	Item  content.Item
	Path  string
	Token string
	// ApproveURL and RejectURL are the reviewer links for Token.
	ApproveURL string
	RejectURL  string
	// Notified is false when no notification went out; NotifyErr says why.
	Notified  bool
	NotifyErr error
}

// Runner executes the daily pipeline.
type Runner struct {
	generator Generator
	store     approval.Store
	notifier  notifications.Service
	publicURL string
	ids       services.IDGenerator
	logger    *slog.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(ids services.IDGenerator) RunnerOption {
	return func(r *Runner) {
		if ids != nil {
			r.ids = ids
		}
	}
}

// NewRunner wires a Runner. publicURL is the externally reachable base of the
// approval server.
func NewRunner(generator Generator, store approval.Store, notifier notifications.Service, publicURL string, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		generator: generator,
		store:     store,
		notifier:  notifier,
		publicURL: strings.TrimRight(publicURL, "/"),
		ids:       services.UUIDGenerator{},
		logger:    logging.NewComponentLogger(logger, "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce generates one item and requests approval for it. It returns
// content.ErrNotAvailable when nothing new can be produced. A failed
// notification does not fail the run.
func (r *Runner) RunOnce(ctx context.Context) (*RunResult, error) {
	result := &RunResult{RunID: r.ids.New()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run started")

	logger.Info("[1/4] generating item")
	item, err := r.generator.Generate(services.WithStage(ctx, "generate"))
	if err != nil {
		if errors.Is(err, content.ErrNotAvailable) {
			logging.WarnWithHint(logger, "no new item available; run aborted", "content_exhausted",
				"configure a model API key or extend the fallback pool")
			return nil, err
		}
		return nil, fmt.Errorf("generate: %w", err)
	}
	result.Item = item
	logger.Info("item generated", logging.String(logging.FieldShortname, item.Shortname))

	logger.Info("[2/4] saving item")
	path, err := r.generator.Save(item)
	if err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	result.Path = path
	logger.Info("item saved", logging.String("path", path))

	logger.Info("[3/4] creating approval request")
	token, err := r.store.CreatePending(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}
	result.Token = token
	result.ApproveURL = r.publicURL + "/approve/" + token
	result.RejectURL = r.publicURL + "/reject/" + token
	logger = logger.With(logging.String(logging.FieldToken, logging.TokenPrefix(token)))
	logger.Info("approval request created")

	logger.Info("[4/4] notifying reviewer")
	err = r.notifier.NotifyApprovalRequested(services.WithStage(ctx, "notify"), notifications.ApprovalRequest{
		Item:       item,
		Token:      token,
		ApproveURL: result.ApproveURL,
		RejectURL:  result.RejectURL,
	})
	switch {
	case errors.Is(err, notifications.ErrNotConfigured):
		logger.Info("no notifier configured; manual approval required")
		result.NotifyErr = err
	case err != nil:
		logging.WarnWithHint(logger, "notification failed; manual approval required", "notify_failed",
			"check email and ntfy settings (tipflow test-notify)", logging.Error(err))
		result.NotifyErr = err
	default:
		result.Notified = true
		logger.Info("reviewer notified")
	}

	logger.Info("run finished", logging.Bool("notified", result.Notified))
	return result, nil
}

// ManualInstructions renders what a reviewer must do when no notification
// went out.
func ManualInstructions(res *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item saved to %s\n", res.Path)
	b.WriteString("Review it, then either:\n")
	fmt.Fprintf(&b, "  approve: tipflow approve %s\n", res.Token)
	fmt.Fprintf(&b, "  reject:  tipflow reject %s (or delete the file)\n", res.Token)
	fmt.Fprintf(&b, "Links: %s\n       %s\n", res.ApproveURL, res.RejectURL)
	return b.String()
}
