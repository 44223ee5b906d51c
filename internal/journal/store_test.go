package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected empty journal, got %d", n)
	}

	for i := 0; i < 3; i++ {
		err := s.Record(ctx, Entry{
			SourceChannelID: "A",
			TargetChannelID: "100",
			AuthorID:        "1",
			AuthorName:      "bob",
			Path:            "webhook",
			ContentLen:      2,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err = s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 entries, got %d", n)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if err := s.Record(ctx, Entry{SourceChannelID: "A", TargetChannelID: "100", AuthorName: name, Path: "webhook"}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].AuthorName != "third" || entries[1].AuthorName != "second" {
		t.Errorf("entries not newest-first: %v, %v", entries[0].AuthorName, entries[1].AuthorName)
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
