package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"redactd/internal/event"
	"redactd/internal/logging"
)

// Recorder feeds input events into a buffer until its context is
// cancelled.
type Recorder interface {
	Record(ctx context.Context, buf *Buffer) error
}

// StreamRecorder parses line-delimited JSON events from a reader,
// typically a capture agent piping into stdin. Malformed lines are
// counted and skipped.
type StreamRecorder struct {
	r   io.Reader
	log *logging.Logger

	mu        sync.Mutex
	malformed int
}

// NewStreamRecorder wraps a reader of JSONL input events.
func NewStreamRecorder(r io.Reader) *StreamRecorder {
	return &StreamRecorder{
		r:   r,
		log: logging.Default().WithComponent("capture"),
	}
}

// Record reads events until EOF or cancellation.
func (s *StreamRecorder) Record(ctx context.Context, buf *Buffer) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := event.Parse(line)
		if err != nil {
			s.mu.Lock()
			s.malformed++
			n := s.malformed
			s.mu.Unlock()
			s.log.Debug("skipping malformed input line", "malformed_total", n)
			continue
		}
		buf.Append(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input stream: %w", err)
	}
	return nil
}

// Malformed reports how many input lines failed to parse.
func (s *StreamRecorder) Malformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// SimulatedRecorder replays a scripted event sequence, for tests and
// local dry runs without a capture agent.
type SimulatedRecorder struct {
	events []event.InputEvent
	delay  time.Duration
}

// NewSimulatedRecorder creates a recorder that replays events with an
// optional inter-event delay.
func NewSimulatedRecorder(events []event.InputEvent, delay time.Duration) *SimulatedRecorder {
	return &SimulatedRecorder{events: events, delay: delay}
}

// Record appends the scripted events in order.
func (s *SimulatedRecorder) Record(ctx context.Context, buf *Buffer) error {
	for _, ev := range s.events {
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		buf.Append(ev)
	}
	return nil
}

// SimulateTyping converts a string to press and release pairs, one pair
// per rune, using the control tokens for space, newline and backspace.
// The rune '\b' emits a backspace pair.
func SimulateTyping(text string, start time.Time) []event.InputEvent {
	events := make([]event.InputEvent, 0, 2*len(text))
	ts := start
	for _, r := range text {
		key := string(r)
		switch r {
		case ' ':
			key = event.KeySpace
		case '\n':
			key = event.KeyEnter
		case '\b':
			key = event.KeyBackspace
		}
		events = append(events,
			event.InputEvent{Kind: event.KindKeyPress, Key: key, Timestamp: ts},
			event.InputEvent{Kind: event.KindKeyRelease, Key: key, Timestamp: ts.Add(5 * time.Millisecond)},
		)
		ts = ts.Add(40 * time.Millisecond)
	}
	return events
}
