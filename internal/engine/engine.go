// Package engine ties capture, sanitization, and transcript persistence
// into a periodic processing cycle.
//
// Secret registration is serialized against the cycle: mutating the
// vault mid-reconstruction could redact with a half-updated secret set,
// so registration fails fast with ErrCycleInFlight instead of blocking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"redactd/internal/capture"
	"redactd/internal/logging"
	"redactd/internal/sanitize"
	"redactd/internal/translog"
	"redactd/internal/vault"
)

// Errors surfaced by the engine.
var (
	ErrCycleInFlight = errors.New("engine: processing cycle in flight")
	ErrStopped       = errors.New("engine: stopped")
)

// Phase names one stage of the processing cycle, for health reporting.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDraining       Phase = "draining"
	PhaseReconstructing Phase = "reconstructing"
	PhaseRedacting      Phase = "redacting"
	PhasePersisting     Phase = "persisting"
)

// DefaultFlushInterval is the cycle period when none is configured.
const DefaultFlushInterval = 30 * time.Second

// Sink persists one sanitized record. *translog.Writer satisfies it.
type Sink interface {
	Append(rec translog.Record) error
}

// Engine drains the capture buffer on a fixed interval, sanitizes the
// batch, and appends the result to the transcript sink.
type Engine struct {
	buf      *capture.Buffer
	vault    vault.Vault
	san      *sanitize.Sanitizer
	sink     Sink
	interval time.Duration
	log      *logging.Logger

	// cycleMu guards one full cycle; TryLock on the secret operations
	// gives callers ErrCycleInFlight instead of a stall.
	cycleMu sync.Mutex

	mu      sync.Mutex
	phase   Phase
	cycles  uint64
	stopped bool
}

// Config carries the engine's collaborators.
type Config struct {
	Buffer        *capture.Buffer
	Vault         vault.Vault
	Sanitizer     *sanitize.Sanitizer
	Sink          Sink
	FlushInterval time.Duration
}

// New assembles an engine. A nil sanitizer gets one over the vault; a
// non-positive interval falls back to DefaultFlushInterval.
func New(cfg Config) *Engine {
	san := cfg.Sanitizer
	if san == nil {
		san = sanitize.New(cfg.Vault)
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Engine{
		buf:      cfg.Buffer,
		vault:    cfg.Vault,
		san:      san,
		sink:     cfg.Sink,
		interval: interval,
		phase:    PhaseIdle,
		log:      logging.Default().WithComponent("engine"),
	}
}

// Run drives cycles until ctx is cancelled, then flushes a final cycle
// so no buffered events are lost on shutdown.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("engine running", "flush_interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			if err := e.RunCycle(); err != nil && !errors.Is(err, ErrCycleInFlight) {
				e.log.Error("final flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := e.RunCycle(); err != nil {
				e.log.Error("cycle failed", "error", err)
			}
		}
	}
}

// RunCycle executes one drain→sanitize→persist pass. An empty buffer is
// a no-op. A persist failure requeues the batch for the next cycle.
func (e *Engine) RunCycle() error {
	if !e.cycleMu.TryLock() {
		return ErrCycleInFlight
	}
	defer e.cycleMu.Unlock()

	e.setPhase(PhaseDraining)
	defer e.setPhase(PhaseIdle)

	batch := e.buf.Drain()
	if len(batch) == 0 {
		return nil
	}

	e.setPhase(PhaseReconstructing)
	e.setPhase(PhaseRedacting)
	res := e.san.Sanitize(batch)

	e.setPhase(PhasePersisting)
	rec := translog.Record{
		Timestamp:      time.Now().UTC(),
		Events:         res.Events,
		SanitizedText:  res.SanitizedText,
		ContainsSecret: res.ContainsSecret(),
	}
	if err := e.sink.Append(rec); err != nil {
		e.buf.Requeue(batch)
		return fmt.Errorf("persist cycle: %w", err)
	}

	e.mu.Lock()
	e.cycles++
	n := e.cycles
	e.mu.Unlock()
	e.log.Debug("cycle persisted",
		"cycle", n,
		"events", len(batch),
		"redactions", len(res.Locations))
	return nil
}

// RegisterSecret adds a secret to the vault between cycles.
func (e *Engine) RegisterSecret(secret string) error {
	return e.withVault(func() error { return e.vault.Register(secret) })
}

// RevokeSecret removes a secret from the vault between cycles. Already
// written transcripts are untouched; rescan handles those.
func (e *Engine) RevokeSecret(secret string) error {
	return e.withVault(func() error { return e.vault.Revoke(secret) })
}

// Secrets snapshots the registered secrets between cycles.
func (e *Engine) Secrets() ([]string, error) {
	var out []string
	err := e.withVault(func() error {
		out = e.vault.List()
		return nil
	})
	return out, err
}

func (e *Engine) withVault(fn func() error) error {
	if !e.cycleMu.TryLock() {
		return ErrCycleInFlight
	}
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	return fn()
}

// Phase reports the current cycle stage.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Cycles reports how many cycles have persisted a record.
func (e *Engine) Cycles() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycles
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}
