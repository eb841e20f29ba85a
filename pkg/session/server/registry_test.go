package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/reloadsync/reloadsync/pkg/store"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// fakeStore is an in-memory store.Store double for exercising persist and
// rehydrate without a real database.
type fakeStore struct {
	mu   sync.Mutex
	recs map[string]store.SessionRecord
}

func newFakeStore() *fakeStore { return &fakeStore{recs: make(map[string]store.SessionRecord)} }

func (f *fakeStore) SaveSession(_ context.Context, rec store.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.ID] = rec
	return nil
}

func (f *fakeStore) LoadSession(_ context.Context, id string) (store.SessionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	return rec, ok, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recs, id)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeMember struct {
	id   string
	sent []wire.Message
}

func (m *fakeMember) ConnectionID() string { return m.id }
func (m *fakeMember) Send(msg wire.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(0, nil)

	s1, err := r.GetOrCreate("sess-1", "token-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s1.ID != "sess-1" {
		t.Fatalf("expected ID sess-1, got %s", s1.ID)
	}

	s2, err := r.GetOrCreate("sess-1", "token-1")
	if err != nil {
		t.Fatalf("GetOrCreate (existing): %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same Session instance on repeat GetOrCreate")
	}

	if _, err := r.GetOrCreate("sess-1", "wrong-token"); err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestRegistry_ConnectAndJoin(t *testing.T) {
	r := NewRegistry(0, nil)
	m1 := &fakeMember{id: "conn-1"}

	s, err := r.Connect("sess-1", "token-1", m1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.MemberCount() != 1 {
		t.Fatalf("expected 1 member, got %d", s.MemberCount())
	}

	m2 := &fakeMember{id: "conn-2"}
	if _, err := r.Join("sess-1", "token-1", m2); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if s.MemberCount() != 2 {
		t.Fatalf("expected 2 members, got %d", s.MemberCount())
	}

	if _, err := r.Join("sess-1", "wrong-token", m2); err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}

	if _, err := r.Join("no-such-session", "token-1", m2); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	r.Leave("sess-1", "conn-1")
	if s.MemberCount() != 1 {
		t.Fatalf("expected 1 member after Leave, got %d", s.MemberCount())
	}
}

func TestRegistry_ConnectMismatchedToken(t *testing.T) {
	r := NewRegistry(0, nil)
	m1 := &fakeMember{id: "conn-1"}
	if _, err := r.Connect("sess-1", "token-1", m1); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	m2 := &fakeMember{id: "conn-2"}
	if _, err := r.Connect("sess-1", "wrong-token", m2); err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestSession_NextSequence(t *testing.T) {
	r := NewRegistry(0, nil)
	s, _ := r.GetOrCreate("sess-1", "token-1")

	if got := s.NextSequence(); got != 1 {
		t.Fatalf("expected first sequence 1, got %d", got)
	}
	if got := s.NextSequence(); got != 2 {
		t.Fatalf("expected second sequence 2, got %d", got)
	}
	if got := s.LastSequence(); got != 2 {
		t.Fatalf("expected LastSequence 2, got %d", got)
	}
}

func TestSession_RecordAck(t *testing.T) {
	r := NewRegistry(0, nil)
	s, _ := r.GetOrCreate("sess-1", "token-1")

	applyTime := int64(12)
	ack := wire.Ack{Sequence: 1, Success: true, ApplyTimeMs: &applyTime}
	s.RecordAck(ack, "delta", time.Now())

	entries := s.Metrics.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 metric entry, got %d", len(entries))
	}
	if entries[0].ApplyTimeMs != 12 || !entries[0].Success || entries[0].Type != "delta" {
		t.Fatalf("unexpected metric entry: %+v", entries[0])
	}
}

func TestSession_Broadcast(t *testing.T) {
	r := NewRegistry(0, nil)
	m1 := &fakeMember{id: "conn-1"}
	m2 := &fakeMember{id: "conn-2"}
	s, _ := r.Connect("sess-1", "token-1", m1)
	_, _ = r.Join("sess-1", "token-1", m2)

	msg := wire.Ping{Envelope: wire.Envelope{Type: wire.TypePing}}
	s.Broadcast(msg, "conn-1", nil)

	if len(m1.sent) != 0 {
		t.Fatalf("expected excluded member to receive nothing, got %d messages", len(m1.sent))
	}
	if len(m2.sent) != 1 {
		t.Fatalf("expected other member to receive 1 message, got %d", len(m2.sent))
	}
}

func TestRegistry_RunEvictionRemovesIdleSessions(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, nil)
	m1 := &fakeMember{id: "conn-1"}
	if _, err := r.Connect("sess-1", "token-1", m1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	r.Leave("sess-1", "conn-1")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go r.RunEviction(ctx, 20*time.Millisecond)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := r.Get("sess-1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected idle session to be evicted")
}

func TestRegistry_Sessions(t *testing.T) {
	r := NewRegistry(0, nil)
	if _, err := r.GetOrCreate("sess-1", "t"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := r.GetOrCreate("sess-2", "t"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := len(r.Sessions()); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}
}

func TestSession_SetSchema_PersistsToStore(t *testing.T) {
	fs := newFakeStore()
	r := NewRegistryWithStore(0, 0, nil, fs, nil)

	s, err := r.GetOrCreate("sess-1", "token-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s.NextSequence()
	s.NextSequence()
	s.SetSchema(&schema.Schema{Metadata: schema.Metadata{Version: "v1"}})

	rec, ok, err := fs.LoadSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !ok {
		t.Fatal("expected the persisted record to exist after SetSchema")
	}
	if rec.Token != "token-1" || rec.SchemaVersion != "v1" || rec.LastSequence != 2 {
		t.Fatalf("unexpected persisted record: %+v", rec)
	}
}

func TestRegistry_GetOrCreate_RehydratesFromStore(t *testing.T) {
	fs := newFakeStore()
	schemaJSON, err := json.Marshal(&schema.Schema{Metadata: schema.Metadata{Version: "v2"}})
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	_ = fs.SaveSession(context.Background(), store.SessionRecord{
		ID:            "sess-1",
		Token:         "token-1",
		LastSequence:  5,
		SchemaVersion: "v2",
		SchemaJSON:    schemaJSON,
	})

	r := NewRegistryWithStore(0, 0, nil, fs, nil)

	s, err := r.GetOrCreate("sess-1", "token-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.LastSequence() != 5 {
		t.Fatalf("expected rehydrated LastSequence 5, got %d", s.LastSequence())
	}
	if s.Schema() == nil || s.Schema().Version != "v2" {
		t.Fatalf("expected rehydrated schema version v2, got %+v", s.Schema())
	}

	if _, err := r.GetOrCreate("sess-1", "wrong-token"); err != ErrTokenMismatch {
		t.Fatalf("expected ErrTokenMismatch for a rehydrated session with the wrong token, got %v", err)
	}
}
