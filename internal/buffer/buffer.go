// Package buffer reconstructs editable text from a raw key press stream.
//
// The reconstructor is a deterministic state machine: it folds press
// events in order into a cursor-addressable rune buffer, keeps a snapshot
// of the buffer after every mutation, and tracks which event produced
// each character. Provenance survives deletion: when a character is
// removed, its entry moves to the deleted record set instead of being
// discarded, so a secret that was typed and then erased can still be
// redacted from the underlying events.
package buffer

import (
	"redactd/internal/event"
)

// EventSet is a small set of event identities contributing to one
// character position. Insertion keeps it deduplicated.
type EventSet []event.ID

// Contains reports whether the set holds id.
func (s EventSet) Contains(id event.ID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id added, preserving set semantics.
func (s EventSet) Add(id event.ID) EventSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

func (s EventSet) clone() EventSet {
	if s == nil {
		return nil
	}
	out := make(EventSet, len(s))
	copy(out, s)
	return out
}

// DeletedRecord preserves provenance for a character that was removed
// from the buffer.
type DeletedRecord struct {
	// Position is the offset the character occupied when it was deleted.
	Position int

	// Char is the removed character.
	Char rune

	// Events produced the character before it was deleted.
	Events EventSet

	// DeletedBy is the backspace or delete event that removed it.
	DeletedBy event.ID
}

// Snapshot is the buffer state after one mutating event, with the
// provenance map frozen alongside the text. Snapshots are append-only.
type Snapshot struct {
	Text       string
	Provenance []EventSet
}

// Result is the outcome of one reconstruction pass.
type Result struct {
	// Text is the final buffer content.
	Text string

	// Cursor is the final cursor position in runes.
	Cursor int

	// Snapshots holds the buffer state after every mutating event.
	Snapshots []Snapshot

	// Provenance maps each position of Text to the events that produced
	// the character there.
	Provenance []EventSet

	// Deleted holds provenance for removed characters, keyed by the
	// reconstruction step at which the deletion happened.
	Deleted map[int]DeletedRecord
}

// History returns the snapshot texts in order.
func (r *Result) History() []string {
	out := make([]string, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.Text
	}
	return out
}

// Buffer is the reconstruction state machine. The zero value is not
// usable; call New.
type Buffer struct {
	runes  []rune
	prov   []EventSet
	cursor int
	step   int

	snapshots []Snapshot
	deleted   map[int]DeletedRecord
}

// New returns an empty buffer with the cursor at position 0.
func New() *Buffer {
	return &Buffer{deleted: make(map[int]DeletedRecord)}
}

// Reconstruct folds a batch of events into text. Release events and
// malformed presses are no-ops; every event is consumed exactly once.
func Reconstruct(events []event.InputEvent) *Result {
	b := New()
	for i, ev := range events {
		b.Apply(event.ID(i), ev)
	}
	return b.Result()
}

// Result finalizes the current state.
func (b *Buffer) Result() *Result {
	prov := make([]EventSet, len(b.prov))
	for i, s := range b.prov {
		prov[i] = s.clone()
	}
	return &Result{
		Text:       string(b.runes),
		Cursor:     b.cursor,
		Snapshots:  b.snapshots,
		Provenance: prov,
		Deleted:    b.deleted,
	}
}

// Text returns the current buffer content.
func (b *Buffer) Text() string { return string(b.runes) }

// Cursor returns the current cursor position.
func (b *Buffer) Cursor() int { return b.cursor }

// Apply processes one event, returning true if the buffer was mutated.
// Only key presses mutate state. Unknown control tokens consume the
// event without effect, and the cursor is always clamped to the buffer
// bounds rather than wrapping.
func (b *Buffer) Apply(id event.ID, ev event.InputEvent) bool {
	if !ev.IsPress() || ev.Key == "" {
		return false
	}

	b.clampCursor()

	mutated := false
	switch ev.Key {
	case event.KeySpace:
		b.insert(id, " ")
		mutated = true
	case event.KeyEnter:
		b.insert(id, "\n")
		mutated = true
	case event.KeyBackspace:
		if b.cursor > 0 {
			b.remove(b.cursor-1, id)
			b.cursor--
			mutated = true
		}
	case event.KeyDelete:
		if b.cursor < len(b.runes) {
			b.remove(b.cursor, id)
			mutated = true
		}
	case event.KeyLeft:
		if b.cursor > 0 {
			b.cursor--
		}
	case event.KeyRight:
		if b.cursor < len(b.runes) {
			b.cursor++
		}
	case event.KeyHome:
		b.cursor = 0
	case event.KeyEnd:
		b.cursor = len(b.runes)
	default:
		if event.IsControl(ev.Key) {
			// Opaque modifier: consumed, no mutation.
			return false
		}
		b.insert(id, ev.Key)
		mutated = true
	}

	if mutated {
		b.step++
		b.snapshot()
	}
	return mutated
}

// insert places the token's runes at the cursor and advances it. A token
// may span multiple runes (a replayed placeholder, for instance); each
// inserted position is attributed to the same event.
func (b *Buffer) insert(id event.ID, token string) {
	ins := []rune(token)
	at := b.cursor

	b.runes = append(b.runes[:at], append(append([]rune{}, ins...), b.runes[at:]...)...)

	sets := make([]EventSet, len(ins))
	for i := range sets {
		sets[i] = EventSet{id}
	}
	b.prov = append(b.prov[:at], append(sets, b.prov[at:]...)...)

	b.cursor += len(ins)
}

// remove deletes the rune at pos, moving its provenance into the deleted
// record set keyed by the current step.
func (b *Buffer) remove(pos int, deletedBy event.ID) {
	rec := DeletedRecord{
		Position:  pos,
		Char:      b.runes[pos],
		Events:    b.prov[pos].clone(),
		DeletedBy: deletedBy,
	}
	b.deleted[b.step] = rec

	b.runes = append(b.runes[:pos], b.runes[pos+1:]...)
	b.prov = append(b.prov[:pos], b.prov[pos+1:]...)
}

// snapshot freezes the buffer state after a mutation.
func (b *Buffer) snapshot() {
	prov := make([]EventSet, len(b.prov))
	for i, s := range b.prov {
		prov[i] = s.clone()
	}
	b.snapshots = append(b.snapshots, Snapshot{
		Text:       string(b.runes),
		Provenance: prov,
	})
}

func (b *Buffer) clampCursor() {
	if b.cursor < 0 {
		b.cursor = 0
	}
	if b.cursor > len(b.runes) {
		b.cursor = len(b.runes)
	}
}
