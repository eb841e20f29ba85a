package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	cfg := &Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db")},
	}
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGORMStore_SaveAndLoadSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := SessionRecord{
		ID:            "sess-1",
		Token:         "token-1",
		LastSequence:  3,
		SchemaVersion: "v1",
		SchemaJSON:    []byte(`{"nodes":[]}`),
	}
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, ok, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !ok {
		t.Fatal("expected session to be found")
	}
	if got.Token != "token-1" || got.LastSequence != 3 || got.SchemaVersion != "v1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if string(got.SchemaJSON) != `{"nodes":[]}` {
		t.Fatalf("unexpected schema JSON: %s", got.SchemaJSON)
	}
}

func TestGORMStore_LoadSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LoadSession(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing session")
	}
}

func TestGORMStore_SaveSession_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, SessionRecord{ID: "sess-1", Token: "t", LastSequence: 1}); err != nil {
		t.Fatalf("SaveSession (1): %v", err)
	}
	if err := s.SaveSession(ctx, SessionRecord{ID: "sess-1", Token: "t", LastSequence: 2}); err != nil {
		t.Fatalf("SaveSession (2): %v", err)
	}

	got, ok, err := s.LoadSession(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("LoadSession: ok=%v err=%v", ok, err)
	}
	if got.LastSequence != 2 {
		t.Fatalf("expected the second save to win, got LastSequence=%d", got.LastSequence)
	}
}

func TestGORMStore_DeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSession(ctx, SessionRecord{ID: "sess-1", Token: "t"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	_, ok, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if ok {
		t.Fatal("expected session to be gone after delete")
	}
}

func TestConfig_ApplyDefaults_SQLite(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.Type != DatabaseTypeSQLite {
		t.Fatalf("expected default type sqlite, got %s", cfg.Type)
	}
	if cfg.SQLite.Path == "" {
		t.Fatal("expected a default sqlite path to be set")
	}
}

func TestConfig_Validate_PostgresRequiresHost(t *testing.T) {
	cfg := &Config{Type: DatabaseTypePostgres}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for postgres config with no host")
	}
}
