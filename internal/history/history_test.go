package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLastEmpty(t *testing.T) {
	s := openTestStore(t)
	e, err := s.Last(context.Background())
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if e != nil {
		t.Errorf("Last() = %+v, want nil", e)
	}
}

func TestRecordAndLast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{SessionID: "a", Raw: "first", Final: "first", CreatedAt: base},
		{SessionID: "b", Raw: "second draft", Final: "Second draft.", Formatted: true, Provider: "openai", CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s): %v", e.SessionID, err)
		}
	}

	last, err := s.Last(ctx)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if last == nil {
		t.Fatal("Last() = nil")
	}
	if last.SessionID != "b" || last.Final != "Second draft." || !last.Formatted || last.Provider != "openai" {
		t.Errorf("Last() = %+v", last)
	}
	if !last.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v, want %v", last.CreatedAt, base.Add(time.Minute))
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, Entry{SessionID: id, Raw: id, Final: id, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "c" || got[1].SessionID != "b" {
		t.Errorf("Recent(2) = %+v, want c then b", got)
	}

	if got, _ := s.Recent(ctx, 0); got != nil {
		t.Errorf("Recent(0) = %+v, want nil", got)
	}
}

func TestRecordDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, Entry{SessionID: "x", Raw: "hi", Final: "hi"}); err != nil {
		t.Fatal(err)
	}
	last, _ := s.Last(ctx)
	if last.Provider != "none" {
		t.Errorf("Provider = %q, want none", last.Provider)
	}
	if last.CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}

	if err := s.Record(ctx, Entry{Raw: "no id"}); err == nil {
		t.Error("Record without session id should fail")
	}
}

func TestOpenFilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.sqlite")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Record(ctx, Entry{SessionID: "p", Raw: "kept", Final: "kept"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	last, err := s.Last(ctx)
	if err != nil || last == nil || last.Final != "kept" {
		t.Errorf("Last() after reopen = %+v, %v", last, err)
	}
}
