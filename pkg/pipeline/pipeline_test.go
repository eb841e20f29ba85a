package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloadsync/reloadsync/pkg/delta"
	"github.com/reloadsync/reloadsync/pkg/pipeline"
	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

type fakeInterpreter struct {
	mu          sync.Mutex
	interpretFn func(s schema.Schema, preserveState bool) (pipeline.View, error)
	applyFn     func(d delta.SchemaDelta, preserveState bool) (pipeline.View, error)
	interpreted []schema.Schema
	applied     []delta.SchemaDelta
}

func (f *fakeInterpreter) Interpret(s schema.Schema, preserveState bool) (pipeline.View, error) {
	f.mu.Lock()
	f.interpreted = append(f.interpreted, s)
	f.mu.Unlock()
	if f.interpretFn != nil {
		return f.interpretFn(s, preserveState)
	}
	return "view:" + s.Nodes[0].ID, nil
}

func (f *fakeInterpreter) ApplyDelta(d delta.SchemaDelta, preserveState bool) (pipeline.View, error) {
	f.mu.Lock()
	f.applied = append(f.applied, d)
	f.mu.Unlock()
	if f.applyFn != nil {
		return f.applyFn(d, preserveState)
	}
	return "view:delta", nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []wire.Message
}

func (f *fakeSender) Send(msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) acks() []wire.Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Ack
	for _, m := range f.sent {
		if a, ok := m.(wire.Ack); ok {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeSender) reloads() []wire.Reload {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Reload
	for _, m := range f.sent {
		if r, ok := m.(wire.Reload); ok {
			out = append(out, r)
		}
	}
	return out
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []schema.Schema
}

func (f *fakeSaver) SaveSchema(_ context.Context, s *schema.Schema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *s)
	return nil
}

func rootSchema(id string, padding int) schema.Schema {
	return schema.Schema{
		Metadata: schema.Metadata{Version: "1.0"},
		Nodes: []schema.Node{
			{ID: id, Type: "View", Props: map[string]any{"padding": padding}},
		},
	}
}

func TestPipelineAppliesFullUpdateAndAcks(t *testing.T) {
	interp := &fakeInterpreter{}
	sender := &fakeSender{}
	saver := &fakeSaver{}
	p := pipeline.New(interp, saver, sender, "session-1234", pipeline.DefaultConfig(), nil)

	updates := make(chan wire.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	s := rootSchema("r", 8)
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindFull,
		Sequence: 0,
		Schema:   &s,
	}

	result := waitResult(t, p)
	assert.True(t, result.Success)

	require.Eventually(t, func() bool { return len(sender.acks()) == 1 }, time.Second, time.Millisecond)
	ack := sender.acks()[0]
	assert.True(t, ack.Success)
	assert.Equal(t, int64(0), ack.Sequence)

	require.Equal(t, 8, p.CurrentSchema().Nodes[0].Props["padding"])
}

func TestPipelineFullChecksumMismatchRejected(t *testing.T) {
	interp := &fakeInterpreter{}
	sender := &fakeSender{}
	p := pipeline.New(interp, nil, sender, "session-1234", pipeline.DefaultConfig(), nil)

	updates := make(chan wire.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	s := rootSchema("r", 1)
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindFull,
		Sequence: 1,
		Schema:   &s,
		Checksum: "not-the-real-checksum",
	}

	result := waitResult(t, p)
	assert.False(t, result.Success)

	require.Eventually(t, func() bool { return len(sender.acks()) == 1 }, time.Second, time.Millisecond)
	ack := sender.acks()[0]
	assert.False(t, ack.Success)
	assert.Equal(t, string(wire.CodeChecksumMismatch), ack.Error)
	assert.Nil(t, p.CurrentSchema())
}

func TestPipelineIncrementalRequiresBase(t *testing.T) {
	interp := &fakeInterpreter{}
	sender := &fakeSender{}
	p := pipeline.New(interp, nil, sender, "session-1234", pipeline.Config{DebounceWindow: 10 * time.Millisecond}, nil)

	updates := make(chan wire.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	d := delta.SchemaDelta{Modified: []schema.Node{{ID: "r", Type: "View"}}}
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindIncremental,
		Sequence: 1,
		Delta:    &d,
	}

	require.Eventually(t, func() bool { return len(sender.acks()) == 1 }, time.Second, time.Millisecond)
	ack := sender.acks()[0]
	assert.False(t, ack.Success)
	assert.Equal(t, string(wire.CodeUpdateFailed), ack.Error)
}

func TestPipelineDebouncesIncrementalBurst(t *testing.T) {
	interp := &fakeInterpreter{}
	sender := &fakeSender{}
	p := pipeline.New(interp, nil, sender, "session-1234", pipeline.Config{DebounceWindow: 30 * time.Millisecond}, nil)

	updates := make(chan wire.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	base := rootSchema("r", 1)
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindFull,
		Sequence: 0,
		Schema:   &base,
	}
	waitResult(t, p)

	for seq := int64(1); seq <= 3; seq++ {
		d := delta.SchemaDelta{Modified: []schema.Node{{ID: "r", Type: "View", Props: map[string]any{"padding": int(seq)}}}}
		updates <- wire.Update{
			Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
			Kind:     wire.UpdateKindIncremental,
			Sequence: seq,
			Delta:    &d,
		}
	}

	result := waitResult(t, p)
	assert.True(t, result.Success)
	assert.Equal(t, wire.UpdateKindIncremental, result.UpdateType)

	require.Eventually(t, func() bool { return len(sender.acks()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, int(p.CurrentSchema().Nodes[0].Props["padding"].(int)))
}

func TestPipelineDropsStaleSequenceIdempotently(t *testing.T) {
	interp := &fakeInterpreter{}
	sender := &fakeSender{}
	p := pipeline.New(interp, nil, sender, "session-1234", pipeline.Config{DebounceWindow: 10 * time.Millisecond}, nil)

	updates := make(chan wire.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	base := rootSchema("r", 1)
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindFull,
		Sequence: 0,
		Schema:   &base,
	}
	waitResult(t, p)

	d := delta.SchemaDelta{Modified: []schema.Node{{ID: "r", Type: "View", Props: map[string]any{"padding": 2}}}}
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindIncremental,
		Sequence: 1,
		Delta:    &d,
	}
	waitResult(t, p)

	// Resend sequence 1 again: must be dropped and acked success (idempotent).
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindIncremental,
		Sequence: 1,
		Delta:    &d,
	}

	require.Eventually(t, func() bool { return len(sender.acks()) == 3 }, time.Second, time.Millisecond)
	last := sender.acks()[2]
	assert.True(t, last.Success)
	assert.Equal(t, int64(1), last.Sequence)
}

func TestPipelineTriggersReloadAfterConsecutiveFailures(t *testing.T) {
	interp := &fakeInterpreter{
		applyFn: func(d delta.SchemaDelta, preserveState bool) (pipeline.View, error) {
			return nil, errors.New("boom")
		},
	}
	sender := &fakeSender{}
	p := pipeline.New(interp, nil, sender, "session-1234", pipeline.Config{DebounceWindow: 5 * time.Millisecond}, nil)

	updates := make(chan wire.Message, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, updates)

	base := rootSchema("r", 1)
	updates <- wire.Update{
		Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
		Kind:     wire.UpdateKindFull,
		Sequence: 0,
		Schema:   &base,
	}
	waitResult(t, p)

	for seq := int64(1); seq <= 3; seq++ {
		d := delta.SchemaDelta{Modified: []schema.Node{{ID: "r", Type: "View"}}}
		updates <- wire.Update{
			Envelope: wire.Envelope{Type: wire.TypeUpdate, SessionID: "session-1234", Version: wire.ProtocolVersion},
			Kind:     wire.UpdateKindIncremental,
			Sequence: seq,
			Delta:    &d,
		}
		waitResult(t, p)
	}

	require.Eventually(t, func() bool { return len(sender.reloads()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, wire.ReloadReasonError, sender.reloads()[0].Reason)
}

func waitResult(t *testing.T, p *pipeline.Pipeline) pipeline.UpdateResult {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pipeline result")
		return pipeline.UpdateResult{}
	}
}
