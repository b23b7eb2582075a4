package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"tipflow/internal/logging"
)

// Entry is one decoded JSON log line.
type Entry struct {
	Time      string
	Level     string
	Message   string
	Component string
	Fields    map[string]any
	// Raw is the original line; set even when decoding fails.
	Raw string
}

// ParseEntry decodes a JSON log line. Lines that are not JSON objects come
// back with only Raw set and ok=false.
func ParseEntry(line string) (Entry, bool) {
	entry := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry, false
	}
	take := func(key string) string {
		v, _ := fields[key].(string)
		delete(fields, key)
		return v
	}
	entry.Time = take("ts")
	entry.Level = take("level")
	entry.Message = take("msg")
	entry.Component = take(logging.FieldComponent)
	delete(fields, "source")
	entry.Fields = fields
	return entry, true
}

// Filter selects entries by component and minimum level. Zero values match
// everything.
type Filter struct {
	Component string
	MinLevel  string
}

// Match reports whether e passes f. Undecodable lines only pass an empty
// filter.
func (f Filter) Match(e Entry, decoded bool) bool {
	if !decoded {
		return f.Component == "" && f.MinLevel == ""
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" && logging.ParseLevel(e.Level) < logging.ParseLevel(f.MinLevel) {
		return false
	}
	return true
}

// String renders "ts LEVEL component: message key=value" with keys sorted.
func (e Entry) String() string {
	if e.Message == "" && e.Level == "" {
		return e.Raw
	}
	var b strings.Builder
	if e.Time != "" {
		b.WriteString(e.Time)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(levelName(e.Level)))
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func levelName(level string) string {
	switch logging.ParseLevel(level) {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}
