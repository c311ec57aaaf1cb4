// Package translog persists sanitization output as append-only,
// line-delimited JSON transcripts and rescans them when the secret set
// changes.
//
// One Record is written per processing cycle. Raw (pre-redaction) text
// never reaches this package: callers hand over only the sanitized
// rendering and the rewritten event stream.
package translog

import (
	"encoding/json"
	"fmt"
	"time"

	"redactd/internal/event"
)

// Record is one durable transcript entry.
type Record struct {
	Timestamp      time.Time          `json:"timestamp"`
	Events         []event.InputEvent `json:"sanitized_events"`
	SanitizedText  string             `json:"sanitized_text"`
	ContainsSecret bool               `json:"contains_secret"`
}

// wireRecord is the tolerant decoding form: events are parsed one by
// one so a malformed event drops that event, not the record.
type wireRecord struct {
	Timestamp      time.Time         `json:"timestamp"`
	Events         []json.RawMessage `json:"sanitized_events"`
	SanitizedText  string            `json:"sanitized_text"`
	ContainsSecret bool              `json:"contains_secret"`
}

// DecodeRecord parses one transcript line. It returns the record, the
// number of malformed events dropped, and an error only when the line
// itself is not a record.
func DecodeRecord(line []byte) (Record, int, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, 0, fmt.Errorf("decode record: %w", err)
	}
	events, skipped := event.ParseAll(w.Events)
	return Record{
		Timestamp:      w.Timestamp,
		Events:         events,
		SanitizedText:  w.SanitizedText,
		ContainsSecret: w.ContainsSecret,
	}, skipped, nil
}

// EncodeRecord renders a record as one JSON line, newline-terminated.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return append(data, '\n'), nil
}
