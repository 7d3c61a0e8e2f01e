package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/cueso/pkg/models"
)

func newTestStore(t *testing.T, config StoreConfig) *Store {
	t.Helper()
	store := NewStore(config)
	t.Cleanup(store.Close)
	return store
}

func TestStoreCreateAppliesDefaults(t *testing.T) {
	store := newTestStore(t, StoreConfig{})

	session, err := store.Create(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.ID == "" {
		t.Error("session should get an ID")
	}
	if session.Config.MaxIterations != models.DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", session.Config.MaxIterations, models.DefaultMaxIterations)
	}
	if session.Config.MaxTokens != models.DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", session.Config.MaxTokens, models.DefaultMaxTokens)
	}
	if session.CreatedAt.IsZero() || session.LastActivity.IsZero() {
		t.Error("timestamps should be set")
	}

	got, err := store.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != session {
		t.Error("Get should return the live session")
	}
}

func TestStoreGetOrCreate(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	session, created, err := store.GetOrCreate(ctx, "")
	if err != nil || !created {
		t.Fatalf("empty ID should create: created=%v err=%v", created, err)
	}

	same, created, err := store.GetOrCreate(ctx, session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("existing ID should not create")
	}
	if same != session {
		t.Error("should return the same live session")
	}

	other, created, err := store.GetOrCreate(ctx, "client-chosen-id")
	if err != nil || !created {
		t.Fatalf("unknown ID should create: created=%v err=%v", created, err)
	}
	if other.ID != "client-chosen-id" {
		t.Errorf("session ID = %q", other.ID)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	session, _ := store.Create(ctx)
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Delete(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("double delete should report not found, got %v", err)
	}
}

func TestStoreResetKeepsSystemMessages(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	session, _ := store.Create(ctx)
	session.Append(models.Message{Role: models.RoleSystem, Content: "pinned"})
	session.Append(models.Message{Role: models.RoleUser, Content: "hi"})
	session.Append(models.Message{Role: models.RoleAssistant, Content: "hello"})
	session.IterationCount = 3

	if err := store.Reset(ctx, session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.Messages) != 1 || session.Messages[0].Role != models.RoleSystem {
		t.Errorf("reset should keep only system messages, got %+v", session.Messages)
	}
	if session.IterationCount != 0 {
		t.Errorf("IterationCount = %d after reset", session.IterationCount)
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	first, _ := store.Create(ctx)
	first.Append(models.Message{Role: models.RoleUser, Content: "hi"})
	store.Create(ctx)

	infos := store.List(ctx)
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	for _, info := range infos {
		if info.ID == first.ID && info.MessageCount != 1 {
			t.Errorf("MessageCount = %d, want 1", info.MessageCount)
		}
	}
}

func TestStoreWithLockSerializesAndBumpsActivity(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	session, _ := store.Create(ctx)
	before := session.LastActivity

	err := store.WithLock(ctx, session.ID, "test", func(s *models.Session) error {
		if !store.locks.IsLocked(session.ID) {
			t.Error("lock should be held inside WithLock")
		}
		s.Append(models.Message{Role: models.RoleUser, Content: "hi"})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.locks.IsLocked(session.ID) {
		t.Error("lock should be released after WithLock")
	}
	if session.LastActivity.Before(before) {
		t.Error("LastActivity should advance")
	}

	if err := store.WithLock(ctx, "missing", "test", func(*models.Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStoreWithLockPropagatesError(t *testing.T) {
	store := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	session, _ := store.Create(ctx)
	boom := errors.New("boom")

	if err := store.WithLock(ctx, session.ID, "test", func(*models.Session) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
}

func TestStoreSweepRemovesIdleSessions(t *testing.T) {
	store := newTestStore(t, StoreConfig{TTL: time.Hour, SweepInterval: time.Hour})
	ctx := context.Background()

	stale, _ := store.Create(ctx)
	fresh, _ := store.Create(ctx)

	stale.LastActivity = time.Now().Add(-2 * time.Hour)

	store.sweep()

	if _, err := store.Get(ctx, stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session should be swept, got %v", err)
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}

func TestStoreSweepSkipsLockedSessions(t *testing.T) {
	store := newTestStore(t, StoreConfig{TTL: time.Hour, SweepInterval: time.Hour})
	ctx := context.Background()

	session, _ := store.Create(ctx)
	session.LastActivity = time.Now().Add(-2 * time.Hour)

	release, ok := store.locks.TryAcquire(session.ID, "run")
	if !ok {
		t.Fatal("lock should be free")
	}
	defer release()

	store.sweep()

	if _, err := store.Get(ctx, session.ID); err != nil {
		t.Errorf("locked session should survive the sweep: %v", err)
	}
}

func TestStoreEvictsAtCapacity(t *testing.T) {
	store := newTestStore(t, StoreConfig{MaxSessions: 2, SweepInterval: time.Hour})
	ctx := context.Background()

	oldest, _ := store.Create(ctx)
	oldest.LastActivity = time.Now().Add(-time.Minute)
	store.Create(ctx)

	third, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
	if _, err := store.Get(ctx, oldest.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("least recently active session should be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, third.ID); err != nil {
		t.Errorf("new session should exist: %v", err)
	}
}
