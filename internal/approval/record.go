package approval

import (
	"encoding/json"
	"fmt"
	"time"

	"tipflow/internal/content"
	"tipflow/internal/logging"
)

// Record is one approval request.
type Record struct {
	Token     string
	Item      content.Item
	Status    Status
	CreatedAt time.Time
	// DecidedAt is nil while the record is pending.
	DecidedAt *time.Time
}

// Stats counts records by status.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

func (s *Stats) add(status Status) {
	switch status {
	case StatusPending:
		s.Pending++
	case StatusApproved:
		s.Approved++
	case StatusRejected:
		s.Rejected++
	}
	s.Total++
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.DecidedAt != nil {
		decided := *r.DecidedAt
		out.DecidedAt = &decided
	}
	return &out
}

// storedRecord is the persisted shape: {tip_data, created_at, status,
// approved_at | rejected_at}.
type storedRecord struct {
	TipData    *content.Item `json:"tip_data"`
	CreatedAt  time.Time     `json:"created_at"`
	Status     Status        `json:"status"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	RejectedAt *time.Time    `json:"rejected_at,omitempty"`
}

func encodeRecord(r *Record) storedRecord {
	item := r.Item
	out := storedRecord{TipData: &item, CreatedAt: r.CreatedAt, Status: r.Status}
	switch r.Status {
	case StatusApproved:
		out.ApprovedAt = r.DecidedAt
	case StatusRejected:
		out.RejectedAt = r.DecidedAt
	}
	return out
}

func decodeRecord(token string, raw json.RawMessage) (*Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrCorrupt, logging.TokenPrefix(token), err)
	}
	if !stored.Status.Valid() {
		return nil, fmt.Errorf("%w: record %s: unknown status %q", ErrCorrupt, logging.TokenPrefix(token), stored.Status)
	}
	if stored.TipData == nil {
		return nil, fmt.Errorf("%w: record %s: missing tip_data", ErrCorrupt, logging.TokenPrefix(token))
	}
	if err := stored.TipData.Validate(); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrCorrupt, logging.TokenPrefix(token), err)
	}
	rec := &Record{
		Token:     token,
		Item:      *stored.TipData,
		Status:    stored.Status,
		CreatedAt: stored.CreatedAt,
	}
	switch stored.Status {
	case StatusApproved:
		rec.DecidedAt = stored.ApprovedAt
	case StatusRejected:
		rec.DecidedAt = stored.RejectedAt
	}
	return rec, nil
}
