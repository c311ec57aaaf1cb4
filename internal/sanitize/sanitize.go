// Package sanitize drives reconstruction, matching, and redaction for
// one batch of input events.
//
// The orchestrator maps matched text spans back onto the events that
// produced them (including events whose characters were later deleted),
// rewrites those events in place of the secret, and renders a sanitized
// text. It has no side effects; persistence belongs to the caller.
package sanitize

import (
	"sort"
	"strings"
	"sync"

	"redactd/internal/buffer"
	"redactd/internal/event"
	"redactd/internal/logging"
	"redactd/internal/match"
	"redactd/internal/vault"
)

// Placeholder is the fixed token substituted for a matched secret span,
// in both the sanitized text and the rewritten event stream.
const Placeholder = "[REDACTED]"

// Location is one redacted span. HistoryIndex is -1 for spans in the
// final text and the buffer snapshot index for deleted-source spans.
type Location struct {
	Start        int `json:"start_index"`
	End          int `json:"end_index"`
	HistoryIndex int `json:"buffer_state_idx"`
}

// Result is the outcome of sanitizing one batch.
type Result struct {
	// Events is the rewritten event stream: contributing presses and
	// their releases carry placeholder tokens and the redacted flag.
	// Timestamps and ordering are untouched.
	Events []event.InputEvent

	// Text is the reconstructed text before redaction. Never persist it.
	Text string

	// SanitizedText is Text with every matched span replaced by the
	// placeholder.
	SanitizedText string

	// Locations lists the redacted spans.
	Locations []Location

	// Matches are the accepted matches that drove the redaction.
	Matches []match.Match
}

// ContainsSecret reports whether any secret was found in the batch.
func (r Result) ContainsSecret() bool { return len(r.Locations) > 0 }

// Sanitizer orchestrates one reconstruction→match→redact pass per call.
// The vault is injected; tests supply vault.Memory.
type Sanitizer struct {
	vault vault.Vault
	log   *logging.Logger

	mu     sync.RWMutex
	finder *match.Finder
}

// New returns a Sanitizer over the given vault with standard matching
// thresholds.
func New(v vault.Vault) *Sanitizer {
	return &Sanitizer{
		vault:  v,
		finder: match.NewFinder(),
		log:    logging.Default().WithComponent("sanitize"),
	}
}

// SetFinder replaces the match finder, for configured thresholds. Safe
// to call while cycles run; the new thresholds apply from the next pass.
func (s *Sanitizer) SetFinder(f *match.Finder) {
	s.mu.Lock()
	s.finder = f
	s.mu.Unlock()
}

// Sanitize processes one batch. Malformed events are treated as no-ops;
// a bad event never aborts the batch.
func (s *Sanitizer) Sanitize(events []event.InputEvent) Result {
	if n := countMalformed(events); n > 0 {
		s.log.Debug("skipping malformed events", "count", n)
	}

	rec := buffer.Reconstruct(events)
	out := Result{
		Events:        event.Clone(events),
		Text:          rec.Text,
		SanitizedText: rec.Text,
	}

	secrets := s.vault.List()
	if len(secrets) == 0 {
		return out
	}

	s.mu.RLock()
	finder := s.finder
	s.mu.RUnlock()

	matches := finder.Find(rec.Text, secrets, rec.History())
	matches = dropPlaceholderOverlaps(rec.Text, matches)
	if len(matches) == 0 {
		return out
	}
	out.Matches = matches

	releases := relatedReleases(events)
	deleters := deleterIndex(rec.Deleted)

	for _, m := range matches {
		if m.Strategy == match.StrategyDeleted {
			continue
		}
		if producers := producingEvents(rec, m); len(producers) > 0 {
			redactSpan(out.Events, producers, releases, deleters, true)
		}
		out.Locations = append(out.Locations, Location{Start: m.Start, End: m.End, HistoryIndex: match.LiveText})
	}

	// Deleted-source anchors run after the live spans. An anchor whose
	// events are already fully redacted is a duplicate sighting of a
	// copy handled above (the live copy of a retyped secret, or an
	// overlapping era) and is dropped.
	for _, m := range matches {
		if m.Strategy != match.StrategyDeleted {
			continue
		}
		producers := producingEvents(rec, m)
		if len(producers) == 0 || allRedacted(out.Events, producers) {
			continue
		}
		redactSpan(out.Events, producers, releases, deleters, false)
		out.Locations = append(out.Locations, Location{Start: m.HistStart, End: m.HistEnd, HistoryIndex: m.HistoryIndex})
	}

	out.SanitizedText = replaceSpans(rec.Text, matches)
	return out
}

// producingEvents collects the press events whose characters fall inside
// the match span, ordered by event position. Deleted-source matches walk
// the snapshot's frozen provenance instead of the live map.
func producingEvents(rec *buffer.Result, m match.Match) []event.ID {
	var sets []buffer.EventSet
	switch {
	case m.Strategy == match.StrategyDeleted:
		if m.HistoryIndex < 0 || m.HistoryIndex >= len(rec.Snapshots) {
			return nil
		}
		snap := rec.Snapshots[m.HistoryIndex]
		if m.HistEnd > len(snap.Provenance) {
			return nil
		}
		sets = snap.Provenance[m.HistStart:m.HistEnd]
	default:
		if m.End > len(rec.Provenance) {
			return nil
		}
		sets = rec.Provenance[m.Start:m.End]
	}

	seen := make(map[event.ID]bool)
	var ids []event.ID
	for _, set := range sets {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// redactSpan rewrites one span's events. For a live span the first
// producing press carries the placeholder token so a replay renders it
// once; every other contributing event, the deleting events, and the
// matching releases become the ignored redaction control token. Spans
// whose characters were already deleted get no placeholder anchor,
// keeping replay identical to the original final text.
func redactSpan(events []event.InputEvent, producers []event.ID, releases map[event.ID]event.ID, deleters map[event.ID][]event.ID, anchor bool) {
	mark := func(id event.ID, key string) {
		i := int(id)
		if i < 0 || i >= len(events) || events[i].Redacted {
			return
		}
		events[i].Key = key
		events[i].Redacted = true
	}

	rest := producers
	if anchor {
		mark(producers[0], Placeholder)
		rest = producers[1:]
	}
	for _, id := range rest {
		mark(id, event.KeyRedacted)
	}
	for _, id := range producers {
		if rel, ok := releases[id]; ok {
			mark(rel, event.KeyRedacted)
		}
		for _, del := range deleters[id] {
			mark(del, event.KeyRedacted)
			if rel, ok := releases[del]; ok {
				mark(rel, event.KeyRedacted)
			}
		}
	}
}

// allRedacted reports whether every producing event is already marked.
func allRedacted(events []event.InputEvent, producers []event.ID) bool {
	for _, id := range producers {
		if i := int(id); i >= 0 && i < len(events) && !events[i].Redacted {
			return false
		}
	}
	return true
}

// relatedReleases pairs each press with its following release of the
// same key token, so a redacted press never leaks through its release.
func relatedReleases(events []event.InputEvent) map[event.ID]event.ID {
	pending := make(map[string][]event.ID)
	related := make(map[event.ID]event.ID, len(events)/2)

	for i, ev := range events {
		switch {
		case ev.IsPress():
			pending[ev.Key] = append(pending[ev.Key], event.ID(i))
		case ev.IsRelease():
			stack := pending[ev.Key]
			if len(stack) == 0 {
				continue
			}
			press := stack[len(stack)-1]
			pending[ev.Key] = stack[:len(stack)-1]
			related[press] = event.ID(i)
		}
	}
	return related
}

// deleterIndex maps each producing event to the backspace/delete events
// that removed its characters.
func deleterIndex(deleted map[int]buffer.DeletedRecord) map[event.ID][]event.ID {
	idx := make(map[event.ID][]event.ID)
	for _, rec := range deleted {
		for _, id := range rec.Events {
			idx[id] = append(idx[id], rec.DeletedBy)
		}
	}
	return idx
}

// replaceSpans renders the sanitized text. Spans are processed
// right-to-left so earlier offsets stay valid as later spans are
// replaced; zero-length (deleted-source) spans insert nothing.
func replaceSpans(text string, matches []match.Match) string {
	runes := []rune(text)

	spans := make([]match.Match, 0, len(matches))
	for _, m := range matches {
		if m.Strategy != match.StrategyDeleted && m.End > m.Start && m.End <= len(runes) {
			spans = append(spans, m)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	for _, m := range spans {
		replaced := append([]rune{}, runes[:m.Start]...)
		replaced = append(replaced, []rune(Placeholder)...)
		replaced = append(replaced, runes[m.End:]...)
		runes = replaced
	}
	return string(runes)
}

// dropPlaceholderOverlaps removes matches that intersect an existing
// placeholder token in the text. Already-redacted spans are never
// matched as new secrets, which makes sanitization a fixed point.
func dropPlaceholderOverlaps(text string, matches []match.Match) []match.Match {
	spans := placeholderSpans(text)
	if len(spans) == 0 {
		return matches
	}

	out := matches[:0]
	for _, m := range matches {
		conflict := false
		if m.Strategy != match.StrategyDeleted {
			for _, sp := range spans {
				if m.Start < sp[1] && m.End > sp[0] {
					conflict = true
					break
				}
			}
		}
		if !conflict {
			out = append(out, m)
		}
	}
	return out
}

// placeholderSpans locates placeholder occurrences as rune spans.
func placeholderSpans(text string) [][2]int {
	var spans [][2]int
	phLen := len([]rune(Placeholder))

	offset := 0
	rest := text
	for {
		i := strings.Index(rest, Placeholder)
		if i < 0 {
			break
		}
		start := offset + len([]rune(rest[:i]))
		spans = append(spans, [2]int{start, start + phLen})
		offset = start + phLen
		rest = rest[i+len(Placeholder):]
	}
	return spans
}

func countMalformed(events []event.InputEvent) int {
	n := 0
	for _, ev := range events {
		if (ev.Kind != event.KindKeyPress && ev.Kind != event.KindKeyRelease) || ev.Key == "" {
			n++
		}
	}
	return n
}
