package eventstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/voicepay/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	es, err := Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Record(context.Background(), "s", "", KindUtterance, "home", map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	events, err := es.SessionEvents(context.Background(), "s", 10)
	if err != nil || events != nil {
		t.Fatalf("expected no events, got %v %v", events, err)
	}
	if !es.Healthy(context.Background()) {
		t.Fatalf("ephemeral store should be healthy")
	}
}

func TestRecordAndList(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := es.BeginSession(ctx, "session-1", "node-1"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	payload := map[string]string{"recipient": "Ram", "amount": "500"}
	if err := es.Record(ctx, "session-1", "trace", KindCommit, "success", payload); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.Record(ctx, "session-1", "", KindTransition, "home", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := es.SessionEvents(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindCommit || events[0].State != "success" || events[0].TraceID != "trace" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	var got map[string]string
	if err := json.Unmarshal(events[0].Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got["recipient"] != "Ram" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
	if events[1].Payload != nil {
		t.Fatalf("expected empty payload, got %s", events[1].Payload)
	}

	n, err := es.CountKind(ctx, KindCommit)
	if err != nil || n != 1 {
		t.Fatalf("count commits: %d %v", n, err)
	}
}

func TestAppendRequiresKind(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	if err := es.Append(context.Background(), Event{SessionID: "s"}); err == nil {
		t.Fatalf("expected error for missing kind")
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, "old-session", "node"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Record(ctx, "old-session", "", KindUtterance, "home", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginSession(ctx, "new-session", "node"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.SessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
}
