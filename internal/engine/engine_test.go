package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redactd/internal/capture"
	"redactd/internal/translog"
	"redactd/internal/vault"
)

// memorySink collects appended records.
type memorySink struct {
	mu      sync.Mutex
	records []translog.Record
	err     error
}

func (s *memorySink) Append(rec translog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) all() []translog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]translog.Record(nil), s.records...)
}

// blockingSink parks Append until released, to observe an in-flight cycle.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Append(translog.Record) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func fill(buf *capture.Buffer, text string) {
	for _, ev := range capture.SimulateTyping(text, time.Now()) {
		buf.Append(ev)
	}
}

func newTestEngine(sink Sink, secrets ...string) (*Engine, *capture.Buffer) {
	buf := capture.NewBuffer(1000)
	eng := New(Config{
		Buffer: buf,
		Vault:  vault.NewMemory(secrets...),
		Sink:   sink,
	})
	return eng, buf
}

func TestRunCycle_PersistsSanitizedRecord(t *testing.T) {
	sink := &memorySink{}
	eng, buf := newTestEngine(sink, "hunter2")
	fill(buf, "pw is hunter2 ok")

	require.NoError(t, eng.RunCycle())

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, "pw is [REDACTED] ok", records[0].SanitizedText)
	assert.True(t, records[0].ContainsSecret)
	assert.Equal(t, uint64(1), eng.Cycles())
	assert.Zero(t, buf.Len())
}

func TestRunCycle_EmptyBufferIsNoOp(t *testing.T) {
	sink := &memorySink{}
	eng, _ := newTestEngine(sink)

	require.NoError(t, eng.RunCycle())

	assert.Empty(t, sink.all())
	assert.Zero(t, eng.Cycles())
}

func TestRunCycle_RequeuesOnPersistFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	eng, buf := newTestEngine(sink, "hunter2")
	fill(buf, "some text")

	err := eng.RunCycle()
	require.Error(t, err)
	assert.Equal(t, 18, buf.Len())

	// Once the sink recovers, the retried batch persists.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	require.NoError(t, eng.RunCycle())
	require.Len(t, sink.all(), 1)
	assert.Equal(t, "some text", sink.all()[0].SanitizedText)
}

func TestSecretOps_FailDuringCycle(t *testing.T) {
	sink := &blockingSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng, buf := newTestEngine(sink)
	fill(buf, "x")

	done := make(chan error, 1)
	go func() { done <- eng.RunCycle() }()

	<-sink.entered
	assert.ErrorIs(t, eng.RegisterSecret("hunter2"), ErrCycleInFlight)
	assert.ErrorIs(t, eng.RevokeSecret("hunter2"), ErrCycleInFlight)
	_, err := eng.Secrets()
	assert.ErrorIs(t, err, ErrCycleInFlight)

	close(sink.release)
	require.NoError(t, <-done)

	// Between cycles the operations succeed.
	require.NoError(t, eng.RegisterSecret("hunter2"))
	secrets, err := eng.Secrets()
	require.NoError(t, err)
	assert.Equal(t, []string{"hunter2"}, secrets)
}

func TestEngine_NewSecretAppliesNextCycle(t *testing.T) {
	sink := &memorySink{}
	eng, buf := newTestEngine(sink)

	fill(buf, "pw is hunter2 ok")
	require.NoError(t, eng.RunCycle())

	require.NoError(t, eng.RegisterSecret("hunter2"))
	fill(buf, "pw is hunter2 ok")
	require.NoError(t, eng.RunCycle())

	records := sink.all()
	require.Len(t, records, 2)
	assert.Equal(t, "pw is hunter2 ok", records[0].SanitizedText)
	assert.Equal(t, "pw is [REDACTED] ok", records[1].SanitizedText)
}

func TestEngine_PhaseReporting(t *testing.T) {
	sink := &memorySink{}
	eng, _ := newTestEngine(sink)

	assert.Equal(t, PhaseIdle, eng.Phase())
	require.NoError(t, eng.RunCycle())
	assert.Equal(t, PhaseIdle, eng.Phase())
}
