// Package event defines the input event model shared by the capture,
// reconstruction, and sanitization layers.
//
// Events arrive from the external capture collaborator as one JSON object
// per event. Only key presses mutate reconstructed text; releases are kept
// for downstream consumers of the sanitized stream.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event kinds on the wire.
const (
	KindKeyPress   = "KEY_PRESS"
	KindKeyRelease = "KEY_RELEASE"
)

// Named control key tokens. Anything else with the "Key." prefix is an
// opaque modifier and is ignored by reconstruction.
const (
	KeySpace     = "Key.space"
	KeyEnter     = "Key.enter"
	KeyBackspace = "Key.backspace"
	KeyDelete    = "Key.delete"
	KeyLeft      = "Key.left"
	KeyRight     = "Key.right"
	KeyHome      = "Key.home"
	KeyEnd       = "Key.end"

	// KeyRedacted replaces the key token of a redacted event. It is a
	// control token, so replaying a sanitized stream inserts nothing
	// for it.
	KeyRedacted = "Key.redacted"
)

// Errors returned while decoding events.
var (
	ErrMalformed = errors.New("event: malformed event")
)

// ID identifies an event within one processing batch. Identity is
// positional: two presses of the same key are distinct events.
type ID int

// InputEvent is a single captured input event.
type InputEvent struct {
	Kind      string    `json:"event"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`

	// Redacted marks an event whose key token was replaced because it
	// contributed to a matched secret.
	Redacted bool `json:"redacted,omitempty"`
}

// IsPress reports whether the event is a key press.
func (e InputEvent) IsPress() bool { return e.Kind == KindKeyPress }

// IsRelease reports whether the event is a key release.
func (e InputEvent) IsRelease() bool { return e.Kind == KindKeyRelease }

// IsControl reports whether the key token names a control key rather
// than literal text.
func IsControl(key string) bool { return strings.HasPrefix(key, "Key.") }

// Timestamp layouts accepted on the wire. The capture collaborator emits
// RFC 3339; older transcripts carry bare ISO timestamps without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// wireEvent is the tolerant decoding form: timestamps are parsed by hand
// so a single bad field never poisons a whole batch.
type wireEvent struct {
	Kind      string `json:"event"`
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
	Redacted  bool   `json:"redacted"`
}

// Parse decodes a single event from its JSON form. A missing key field,
// unknown kind, or unparsable timestamp yields ErrMalformed.
func Parse(data []byte) (InputEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return InputEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromWire(w)
}

func fromWire(w wireEvent) (InputEvent, error) {
	if w.Kind != KindKeyPress && w.Kind != KindKeyRelease {
		return InputEvent{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, w.Kind)
	}
	if w.Key == "" {
		return InputEvent{}, fmt.Errorf("%w: missing key", ErrMalformed)
	}

	ev := InputEvent{Kind: w.Kind, Key: w.Key, Redacted: w.Redacted}
	if w.Timestamp == "" {
		return InputEvent{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}

	var parsed bool
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, w.Timestamp)
		if err == nil {
			ev.Timestamp = t
			parsed = true
			break
		}
	}
	if !parsed {
		return InputEvent{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, w.Timestamp)
	}

	return ev, nil
}

// ParseAll decodes a batch of raw events, dropping malformed ones. It
// returns the decoded events and the number skipped.
func ParseAll(raw []json.RawMessage) ([]InputEvent, int) {
	events := make([]InputEvent, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		ev, err := Parse(r)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// Clone returns a copy of the event slice. Sanitization rewrites events
// and must never alias the caller's batch.
func Clone(events []InputEvent) []InputEvent {
	out := make([]InputEvent, len(events))
	copy(out, events)
	return out
}
