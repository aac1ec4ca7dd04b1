package redis

import (
	"context"
	"testing"
	"time"
)

func TestLock_AcquireRelease(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	alice := NewLock(client)
	bob := NewLock(client)
	if alice.OwnerID() == bob.OwnerID() {
		t.Fatalf("expected unique owner IDs, got %s twice", alice.OwnerID())
	}

	ok, err := alice.Acquire(ctx, "daily:p1:2024-03-05", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true", ok, err)
	}
	ok, err = bob.Acquire(ctx, "daily:p1:2024-03-05", 10*time.Second)
	if err != nil || ok {
		t.Fatalf("second Acquire() = %v, %v; want false", ok, err)
	}

	// releasing someone else's lock leaves it in place
	if err := bob.Release(ctx, "daily:p1:2024-03-05"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got, _ := mr.Get(lockPrefix + "daily:p1:2024-03-05"); got != alice.OwnerID() {
		t.Errorf("lock owner = %q, want %q", got, alice.OwnerID())
	}

	if err := alice.Release(ctx, "daily:p1:2024-03-05"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	ok, err = bob.Acquire(ctx, "daily:p1:2024-03-05", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("Acquire() after release = %v, %v; want true", ok, err)
	}
}

func TestLock_Expires(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	alice := NewLock(client)
	bob := NewLock(client)
	if ok, _ := alice.Acquire(ctx, "x", 5*time.Second); !ok {
		t.Fatal("expected to acquire lock")
	}
	mr.FastForward(6 * time.Second)

	if ok, _ := bob.Acquire(ctx, "x", 5*time.Second); !ok {
		t.Error("expected expired lock to be free")
	}
}

func TestLock_ReleaseUnheld(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	if err := NewLock(client).Release(context.Background(), "never-taken"); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestLock_BackendDown(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	if _, err := NewLock(client).Acquire(context.Background(), "x", time.Second); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}
