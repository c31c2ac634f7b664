package collector

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/store"
)

// ValidationError describes a rejected update payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// naiveLayouts carry no zone and are read in the collector's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseUpdate validates an update body and converts it to a record. Fields
// are checked in a fixed order so the first problem is reported. Timestamps
// without a zone are interpreted in loc; date-only values are UTC midnight.
func ParseUpdate(body []byte, loc *time.Location) (store.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return store.Record{}, invalid("Request body must be a JSON object")
	}

	rawTS, hasTS := present(fields, "timestamp")
	if !hasTS || isFalsy(rawTS) {
		return store.Record{}, invalid("Missing required field: timestamp")
	}

	rawCount, hasCount := present(fields, "current_count")
	if !hasCount {
		return store.Record{}, invalid("Missing required field: current_count")
	}
	var count float64
	if err := json.Unmarshal(rawCount, &count); err != nil {
		return store.Record{}, invalid("current_count must be a number")
	}
	if count < 0 {
		return store.Record{}, invalid("current_count cannot be negative")
	}
	if count != math.Trunc(count) || count > math.MaxInt32 {
		return store.Record{}, invalid("current_count must be a whole number")
	}

	direction, err := parseDirection(fields)
	if err != nil {
		return store.Record{}, err
	}

	if loc == nil {
		loc = time.UTC
	}
	ts, ok := parseTimestamp(rawTS, loc)
	if !ok {
		return store.Record{}, invalid("Invalid timestamp format")
	}

	return store.Record{Timestamp: ts, CurrentCount: int(count), Direction: direction}, nil
}

// present returns the raw value of key unless it is absent or null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func parseDirection(fields map[string]json.RawMessage) (string, error) {
	raw, ok := present(fields, "direction")
	if !ok {
		return "", nil
	}
	var dir string
	if err := json.Unmarshal(raw, &dir); err != nil {
		return "", invalid(`direction must be either "IN" or "OUT"`)
	}
	switch dir {
	case "":
		return "", nil
	case "IN", "OUT":
		return dir, nil
	default:
		return "", invalid(`direction must be either "IN" or "OUT"`)
	}
}

// isFalsy reports an empty string, zero or false.
func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case `""`, "false":
		return true
	}
	var n float64
	return json.Unmarshal(raw, &n) == nil && n == 0
}

// parseTimestamp accepts an ISO 8601 string or epoch milliseconds.
func parseTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.UTC(), true
			}
		}
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}
