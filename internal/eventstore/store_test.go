package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendEntry(ctx, Entry{SessionID: "s", Text: "hi"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	entries, err := es.ListSessionEntries(ctx, "s", 10)
	if err != nil {
		t.Fatalf("ephemeral list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries in ephemeral mode, got %d", len(entries))
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "session-123"
	if err := es.BeginSession(context.Background(), sessionID, "hw:1"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.AppendEntry(context.Background(), Entry{
		SessionID:   sessionID,
		StartOffset: 0.0,
		EndOffset:   1.42,
		Text:        "turn on the lights",
	}); err != nil {
		t.Fatalf("append entry: %v", err)
	}
	entries, err := es.ListSessionEntries(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "turn on the lights" {
		t.Fatalf("unexpected text: %s", entries[0].Text)
	}
	if entries[0].EndOffset != 1.42 {
		t.Fatalf("unexpected end offset: %v", entries[0].EndOffset)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(context.Background(), "old-session", "default"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.AppendEntry(context.Background(), Entry{SessionID: "old-session", Text: "stale"}); err != nil {
		t.Fatalf("append entry: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(context.Background(), "new-session", "default"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := es.ListSessionEntries(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected old session pruned")
	}
}
