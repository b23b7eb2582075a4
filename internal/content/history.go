package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"tipflow/internal/fileutil"
)

// HistoryEntry summarizes one saved item.
type HistoryEntry struct {
	Headline  string    `json:"headline"`
	Shortname string    `json:"shortname"`
	Filename  string    `json:"filename"`
	Date      time.Time `json:"date"`
}

// HistoryLog is the append-only record of every item saved to the working
// tree, in save order.
type HistoryLog struct {
	Tips []HistoryEntry `json:"tips"`
}

// LoadHistory reads the history file. A missing file yields an empty log.
func LoadHistory(path string) (HistoryLog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return HistoryLog{Tips: []HistoryEntry{}}, nil
	}
	if err != nil {
		return HistoryLog{}, fmt.Errorf("read history: %w", err)
	}
	var log HistoryLog
	if err := json.Unmarshal(data, &log); err != nil {
		return HistoryLog{}, fmt.Errorf("parse history %s: %w", path, err)
	}
	if log.Tips == nil {
		log.Tips = []HistoryEntry{}
	}
	return log, nil
}

// Save rewrites the history file atomically.
func (h HistoryLog) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// Contains reports whether shortname was already recorded.
func (h HistoryLog) Contains(shortname string) bool {
	for _, entry := range h.Tips {
		if entry.Shortname == shortname {
			return true
		}
	}
	return false
}

// Recent returns up to n entries, newest last.
func (h HistoryLog) Recent(n int) []HistoryEntry {
	if n <= 0 || len(h.Tips) == 0 {
		return nil
	}
	if n > len(h.Tips) {
		n = len(h.Tips)
	}
	out := make([]HistoryEntry, n)
	copy(out, h.Tips[len(h.Tips)-n:])
	return out
}

// Append returns a copy of the log with the item's summary added.
func (h HistoryLog) Append(item Item) HistoryLog {
	tips := make([]HistoryEntry, len(h.Tips), len(h.Tips)+1)
	copy(tips, h.Tips)
	tips = append(tips, HistoryEntry{
		Headline:  item.Headline,
		Shortname: item.Shortname,
		Filename:  item.Filename,
		Date:      item.CreatedAt,
	})
	return HistoryLog{Tips: tips}
}
