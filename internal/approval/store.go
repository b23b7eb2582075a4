package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"tipflow/internal/config"
	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/services"
)

// Action is the side effect Decide runs before recording a decision. It
// receives a copy of the pending record.
type Action func(Record) error

// Store persists approval records.
type Store interface {
	// CreatePending stores item under a fresh token and returns the token.
	CreatePending(ctx context.Context, item content.Item) (string, error)
	// Get returns the record for token or ErrNotFound.
	Get(ctx context.Context, token string) (*Record, error)
	// List returns records matching any of statuses (all when empty), oldest first.
	List(ctx context.Context, statuses ...Status) ([]*Record, error)
	Stats(ctx context.Context) (Stats, error)
	// Transition is Decide without a side effect.
	Transition(ctx context.Context, token string, to Status) (*Record, error)
	// Decide atomically moves a pending record to the terminal status to,
	// provided action succeeds. It returns ErrNotFound, an
	// *AlreadyDecidedError, or the action's error; in all three cases the
	// stored record is unchanged. The store-wide write lock is held while
	// action runs, so other decisions and JSON-backend reads wait for it; a
	// publishing action can hold the lock up to the configured push timeout.
	Decide(ctx context.Context, token string, to Status, action Action) (*Record, error)
	Close() error
}

type options struct {
	clock  services.Clock
	logger *slog.Logger
}

// Option customizes a store.
type Option func(*options)

// WithClock overrides the time source for CreatedAt and DecidedAt.
func WithClock(clock services.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: services.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "approval-store")
	return o
}

// Open returns the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config, opts ...Option) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch cfg.Store.Backend {
	case config.StoreBackendSQLite:
		return OpenSQLite(cfg.StorePath(), opts...)
	case config.StoreBackendJSON, "":
		return OpenJSON(cfg.StorePath(), opts...)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "approval", "open", "unknown backend "+cfg.Store.Backend, nil)
	}
}

func matchesStatus(status Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Token < records[j].Token
	})
}

// checkDecision validates a decision against the current record.
func checkDecision(rec *Record, to Status) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: to %q", ErrInvalidTransition, to)
	}
	if rec.Status.Terminal() {
		return &AlreadyDecidedError{Status: rec.Status}
	}
	return nil
}
