package doc

import (
	"time"
)

// System-managed field names.
const (
	FieldID      = "id"
	FieldUpdated = "updated"
)

// TimeLayout is the fixed-width format of FieldUpdated. Fixed width keeps
// lexical order equal to chronological order, which the store relies on
// for ORDER BY updated.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Document is a normalized nested mapping.
type Document map[string]any

// ID returns the document identifier, or "" when absent or not a string.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Updated returns the last-updated timestamp string, or "" when absent.
func (d Document) Updated() string {
	ts, _ := d[FieldUpdated].(string)
	return ts
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a FieldUpdated value.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// NextTimestamp returns the timestamp for a write happening at now that
// replaces a document last written at prev. The result is strictly greater
// than prev, even if the wall clock stalled or stepped backwards.
// An empty or unparsable prev imposes no lower bound.
func NextTimestamp(now time.Time, prev string) string {
	now = now.UTC()
	if prev != "" {
		if p, err := ParseTime(prev); err == nil && !now.After(p) {
			now = p.Add(time.Nanosecond)
		}
	}
	return FormatTime(now)
}
