package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tipflow/internal/content"
	"tipflow/internal/fileutil"
	"tipflow/internal/logging"
	"tipflow/internal/services"
)

const lockRetryDelay = 25 * time.Millisecond

// JSONStore keeps every record in one JSON object keyed by token. Each
// operation is a read-modify-write under an in-process mutex plus an
// exclusive flock on a sibling .lock file, so the CLI and the daemon can
// share one file.
type JSONStore struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	clock  services.Clock
	logger *slog.Logger
}

// OpenJSON opens (or lazily creates) the JSON snapshot at path and validates
// any existing content.
func OpenJSON(path string, opts ...Option) (*JSONStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &JSONStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		clock:  o.clock,
		logger: o.logger,
	}
	if err := s.withLock(context.Background(), func(map[string]*Record) (bool, error) { return false, nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the snapshot location.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) CreatePending(ctx context.Context, item content.Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	var token string
	err := s.withLock(ctx, func(records map[string]*Record) (bool, error) {
		for {
			t, err := NewToken()
			if err != nil {
				return false, err
			}
			if _, taken := records[t]; !taken {
				token = t
				break
			}
		}
		records[token] = &Record{
			Token:     token,
			Item:      item,
			Status:    StatusPending,
			CreatedAt: s.clock.Now().UTC(),
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("approval request stored",
		logging.String(logging.FieldToken, logging.TokenPrefix(token)),
		logging.String(logging.FieldShortname, item.Shortname))
	return token, nil
}

func (s *JSONStore) Get(ctx context.Context, token string) (*Record, error) {
	var rec *Record
	err := s.withLock(ctx, func(records map[string]*Record) (bool, error) {
		found, ok := records[token]
		if !ok {
			return false, ErrNotFound
		}
		rec = found.clone()
		return false, nil
	})
	return rec, err
}

func (s *JSONStore) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var out []*Record
	err := s.withLock(ctx, func(records map[string]*Record) (bool, error) {
		for _, rec := range records {
			if matchesStatus(rec.Status, statuses) {
				out = append(out, rec.clone())
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (s *JSONStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.withLock(ctx, func(records map[string]*Record) (bool, error) {
		for _, rec := range records {
			stats.add(rec.Status)
		}
		return false, nil
	})
	return stats, err
}

func (s *JSONStore) Transition(ctx context.Context, token string, to Status) (*Record, error) {
	return s.Decide(ctx, token, to, nil)
}

func (s *JSONStore) Decide(ctx context.Context, token string, to Status, action Action) (*Record, error) {
	var result *Record
	err := s.withLock(ctx, func(records map[string]*Record) (bool, error) {
		rec, ok := records[token]
		if !ok {
			return false, ErrNotFound
		}
		result = rec.clone()
		if err := checkDecision(rec, to); err != nil {
			return false, err
		}
		if action != nil {
			if err := action(*rec.clone()); err != nil {
				return false, err
			}
		}
		decided := s.clock.Now().UTC()
		rec.Status = to
		rec.DecidedAt = &decided
		result = rec.clone()
		return true, nil
	})
	if err != nil {
		return result, err
	}
	s.logger.Info("approval decided",
		logging.String(logging.FieldToken, logging.TokenPrefix(token)),
		logging.String("status", string(to)))
	return result, nil
}

// Close is a no-op; the file is only held open during operations.
func (s *JSONStore) Close() error { return nil }

// withLock runs fn over the decoded snapshot while holding both locks and
// writes the snapshot back when fn reports a change.
func (s *JSONStore) withLock(ctx context.Context, fn func(map[string]*Record) (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock approval store: %w", err)
	}
	if !locked {
		return errors.New("lock approval store: not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release store lock", logging.Error(err))
		}
	}()

	records, err := s.read()
	if err != nil {
		return err
	}
	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.write(records)
}

func (s *JSONStore) read() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read approval store: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	records := make(map[string]*Record, len(raw))
	for token, payload := range raw {
		rec, err := decodeRecord(token, payload)
		if err != nil {
			return nil, err
		}
		records[token] = rec
	}
	return records, nil
}

func (s *JSONStore) write(records map[string]*Record) error {
	out := make(map[string]storedRecord, len(records))
	for token, rec := range records {
		out[token] = encodeRecord(rec)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode approval store: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write approval store: %w", err)
	}
	return nil
}
