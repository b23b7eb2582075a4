package workflow

import (
	"context"
	"errors"
	"log/slog"

	"tipflow/internal/approval"
	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/notifications"
	"tipflow/internal/services"
)

// Publisher pushes an approved item to the remote repository.
type Publisher interface {
	Publish(ctx context.Context, filePath string, item content.Item, branch string) error
	ViewURL(item content.Item) string
}

// ContentFiles locates and removes saved item files.
type ContentFiles interface {
	Path(filename string) string
	Remove(filename string) error
}

// Outcome describes a decision.
type Outcome struct {
	Record *approval.Record
	// RemoteURL is set after a successful approval.
	RemoteURL string
	// FileRemoved reports whether a rejection deleted the item file.
	FileRemoved bool
}

// Approver applies reviewer decisions.
type Approver struct {
	store     approval.Store
	files     ContentFiles
	publisher Publisher
	notifier  notifications.Service
	logger    *slog.Logger
}

// NewApprover wires an Approver. A nil notifier disables publish notices.
func NewApprover(store approval.Store, files ContentFiles, publisher Publisher, notifier notifications.Service, logger *slog.Logger) *Approver {
	return &Approver{
		store:     store,
		files:     files,
		publisher: publisher,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "approver"),
	}
}

// Approve publishes the item behind token and marks it approved. Errors are
// approval.ErrNotFound, an *approval.AlreadyDecidedError (Outcome.Record
// carries the current record), or the publish failure, in which case the
// record stays pending and the decision can be retried.
func (a *Approver) Approve(ctx context.Context, token string) (Outcome, error) {
	ctx = services.WithStage(ctx, "approve")
	logger := logging.WithContext(ctx, a.logger).With(logging.String(logging.FieldToken, logging.TokenPrefix(token)))

	rec, err := a.store.Decide(ctx, token, approval.StatusApproved, func(r approval.Record) error {
		return a.publisher.Publish(ctx, a.files.Path(r.Item.Filename), r.Item, "")
	})
	switch {
	case errors.Is(err, approval.ErrNotFound):
		logger.Info("approval for unknown token")
		return Outcome{}, err
	case errors.Is(err, approval.ErrAlreadyDecided):
		logger.Info("approval for decided token", logging.String("status", string(rec.Status)))
		return Outcome{Record: rec}, err
	case err != nil:
		logging.WarnWithHint(logger, "publish failed; request left pending", "publish_failed",
			"fix the repository or remote, then approve again", logging.Error(err))
		a.notifyError(ctx, logger, err, "publish")
		return Outcome{Record: rec}, err
	}

	out := Outcome{Record: rec, RemoteURL: a.publisher.ViewURL(rec.Item)}
	logger.Info("item approved and published",
		logging.String(logging.FieldShortname, rec.Item.Shortname),
		logging.String("url", out.RemoteURL))
	if a.notifier != nil {
		if err := a.notifier.NotifyPublished(ctx, rec.Item, out.RemoteURL); err != nil {
			logger.Warn("publish notice failed", logging.Error(err))
		}
	}
	return out, nil
}

// Reject marks the item behind token rejected and deletes its file. A file
// that cannot be removed is logged and reported via Outcome.FileRemoved.
// Rejecting a decided token changes nothing and returns an
// *approval.AlreadyDecidedError.
func (a *Approver) Reject(ctx context.Context, token string) (Outcome, error) {
	ctx = services.WithStage(ctx, "reject")
	logger := logging.WithContext(ctx, a.logger).With(logging.String(logging.FieldToken, logging.TokenPrefix(token)))

	rec, err := a.store.Decide(ctx, token, approval.StatusRejected, nil)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		logger.Info("rejection for unknown token")
		return Outcome{}, err
	case errors.Is(err, approval.ErrAlreadyDecided):
		logger.Info("rejection for decided token", logging.String("status", string(rec.Status)))
		return Outcome{Record: rec}, err
	case err != nil:
		return Outcome{Record: rec}, err
	}

	out := Outcome{Record: rec}
	if err := a.files.Remove(rec.Item.Filename); err != nil {
		logger.Warn("could not delete rejected item file",
			logging.String("file", rec.Item.Filename), logging.Error(err))
	} else {
		out.FileRemoved = true
	}
	logger.Info("item rejected", logging.String(logging.FieldShortname, rec.Item.Shortname))
	return out, nil
}

// Pending lists records awaiting a decision, oldest first.
func (a *Approver) Pending(ctx context.Context) ([]*approval.Record, error) {
	return a.store.List(ctx, approval.StatusPending)
}

// Stats returns record counts by status.
func (a *Approver) Stats(ctx context.Context) (approval.Stats, error) {
	return a.store.Stats(ctx)
}

func (a *Approver) notifyError(ctx context.Context, logger *slog.Logger, err error, label string) {
	if a.notifier == nil {
		return
	}
	if nerr := a.notifier.NotifyError(ctx, err, label); nerr != nil {
		logger.Debug("error notice not delivered", logging.Error(nerr))
	}
}
