package approval

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteStore keeps records in a SQLite table. Decide runs inside a
// BEGIN IMMEDIATE transaction so the write lock is taken before the record
// is read.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	clock  services.Clock
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	query := url.Values{}
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "journal_mode(WAL)")
	query.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, clock: o.clock, logger: o.logger}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) CreatePending(ctx context.Context, item content.Item) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item: %w", err)
	}
	created := s.clock.Now().UTC().Format(time.RFC3339Nano)

	for {
		token, err := NewToken()
		if err != nil {
			return "", err
		}
		var res sql.Result
		err = retryOnBusy(ctx, func() error {
			var execErr error
			res, execErr = s.db.ExecContext(ctx,
				`INSERT OR IGNORE INTO approvals (token, status, tip_data, created_at) VALUES (?, ?, ?, ?)`,
				token, StatusPending, string(payload), created)
			return execErr
		})
		if err != nil {
			return "", fmt.Errorf("insert approval: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		s.logger.Info("approval request stored",
			logging.String(logging.FieldToken, logging.TokenPrefix(token)),
			logging.String(logging.FieldShortname, item.Shortname))
		return token, nil
	}
}

const recordColumns = "token, status, tip_data, created_at, decided_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*Record, error) {
	var (
		token, status, tipData, createdRaw string
		decidedRaw                         sql.NullString
	)
	if err := row.Scan(&token, &status, &tipData, &createdRaw, &decidedRaw); err != nil {
		return nil, err
	}
	rec := &Record{Token: token, Status: Status(status)}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("%w: record %s: unknown status %q", ErrCorrupt, logging.TokenPrefix(token), status)
	}
	if err := json.Unmarshal([]byte(tipData), &rec.Item); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrCorrupt, logging.TokenPrefix(token), err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: record %s: created_at: %v", ErrCorrupt, logging.TokenPrefix(token), err)
	}
	rec.CreatedAt = created
	if decidedRaw.Valid {
		decided, err := time.Parse(time.RFC3339Nano, decidedRaw.String)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: decided_at: %v", ErrCorrupt, logging.TokenPrefix(token), err)
		}
		rec.DecidedAt = &decided
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, token string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM approvals WHERE token = ?`, token)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM approvals`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at, token`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	sortRecords(out)
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM approvals GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("approval stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusApproved:
			stats.Approved = count
		case StatusRejected:
			stats.Rejected = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) Transition(ctx context.Context, token string, to Status) (*Record, error) {
	return s.Decide(ctx, token, to, nil)
}

func (s *SQLiteStore) Decide(ctx context.Context, token string, to Status, action Action) (*Record, error) {
	var tx *sql.Tx
	if err := retryOnBusy(ctx, func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		return err
	}); err != nil {
		return nil, fmt.Errorf("begin decision: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM approvals WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	if err := checkDecision(rec, to); err != nil {
		return rec, err
	}
	if action != nil {
		if err := action(*rec.clone()); err != nil {
			return rec, err
		}
	}

	decided := s.clock.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE approvals SET status = ?, decided_at = ? WHERE token = ? AND status = ?`,
		to, decided.Format(time.RFC3339Nano), token, StatusPending); err != nil {
		return rec, fmt.Errorf("update approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return rec, fmt.Errorf("commit decision: %w", err)
	}
	rec.Status = to
	rec.DecidedAt = &decided
	s.logger.Info("approval decided",
		logging.String(logging.FieldToken, logging.TokenPrefix(token)),
		logging.String("status", string(to)))
	return rec, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
