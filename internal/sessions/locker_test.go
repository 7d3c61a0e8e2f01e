package sessions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockManagerAcquireRelease(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !mgr.IsLocked("s1") {
		t.Error("session should be locked")
	}
	holder, _, locked := mgr.Holder("s1")
	if !locked || holder != "worker-a" {
		t.Errorf("holder = %q, locked = %v", holder, locked)
	}

	release()

	if mgr.IsLocked("s1") {
		t.Error("session should be unlocked after release")
	}
}

func TestLockManagerTryAcquireContention(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, ok := mgr.TryAcquire("s1", "worker-a")
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}

	if _, ok := mgr.TryAcquire("s1", "worker-b"); ok {
		t.Error("second TryAcquire should fail while held")
	}

	// Independent sessions don't contend.
	release2, ok := mgr.TryAcquire("s2", "worker-b")
	if !ok {
		t.Error("different session should be acquirable")
	}
	release2()

	release()

	release3, ok := mgr.TryAcquire("s1", "worker-b")
	if !ok {
		t.Error("TryAcquire should succeed after release")
	}
	release3()
}

func TestLockManagerAcquireTimeout(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	_, err = mgr.Acquire(context.Background(), "s1", "worker-b", 50*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}

func TestLockManagerAcquireWaitsForRelease(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	release2, err := mgr.Acquire(context.Background(), "s1", "worker-b", time.Second)
	if err != nil {
		t.Fatalf("waiter should acquire after release: %v", err)
	}
	release2()
}

func TestLockManagerSurvivesAbandonedWaiters(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One waiter times out, another is canceled while the lock is held.
	if _, err := mgr.Acquire(context.Background(), "s1", "worker-b", 20*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mgr.Acquire(ctx, "s1", "worker-c", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The lock is still consistent: release frees it for the next holder.
	release()
	release2, err := mgr.Acquire(context.Background(), "s1", "worker-d", time.Second)
	if err != nil {
		t.Fatalf("acquire after abandoned waiters: %v", err)
	}
	release2()
}

func TestLockManagerDoubleReleaseIsNoOp(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
	release()

	release2, ok := mgr.TryAcquire("s1", "worker-b")
	if !ok {
		t.Fatal("lock should be free after release")
	}
	// A stale release from the first holder must not free worker-b's lock.
	release()
	if !mgr.IsLocked("s1") {
		t.Error("stale release freed another holder's lock")
	}
	release2()
}

func TestLockManagerContextCancel(t *testing.T) {
	mgr := NewLockManager(time.Second)
	defer mgr.Close()

	release, err := mgr.Acquire(context.Background(), "s1", "worker-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = mgr.Acquire(ctx, "s1", "worker-b", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
