package msgstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		data := []byte(`{"id":"msg-001"}`)

		if err := store.Put(ctx, "msg-001", data); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Get(ctx, "msg-001")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != string(data) {
			t.Errorf("Get = %q, want %q", got, data)
		}
	})

	t.Run("PutRefusesOverwrite", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.Put(ctx, "msg-dup", []byte("first")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := store.Put(ctx, "msg-dup", []byte("second")); !errors.Is(err, ErrExists) {
			t.Fatalf("second Put: got err=%v, want ErrExists", err)
		}
		got, err := store.Get(ctx, "msg-dup")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "first" {
			t.Errorf("Get = %q, want %q", got, "first")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get non-existent: got err=%v, want ErrNotFound", err)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		store := newStore(t)
		for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
			if err := store.Put(context.Background(), key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Put(%q): got err=%v, want ErrInvalidKey", key, err)
			}
		}
	})

	t.Run("Keys", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := []string{"msg-a", "msg-b", "msg-c"}
		for _, k := range want {
			if err := store.Put(ctx, k, []byte(k)); err != nil {
				t.Fatalf("Put(%s): %v", k, err)
			}
		}
		got, err := store.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		sort.Strings(got)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("Keys = %v, want %v", got, want)
		}
	})

	t.Run("DeleteReportsRemoval", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.Put(ctx, "msg-del", []byte("to be deleted")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		removed, err := store.Delete(ctx, "msg-del")
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if !removed {
			t.Error("first Delete: removed = false, want true")
		}
		if _, err := store.Get(ctx, "msg-del"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after Delete: got err=%v, want ErrNotFound", err)
		}

		removed, err = store.Delete(ctx, "msg-del")
		if err != nil {
			t.Fatalf("second Delete: %v", err)
		}
		if removed {
			t.Error("second Delete: removed = true, want false")
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		store := newStore(t)
		removed, err := store.Delete(context.Background(), "never-existed")
		if err != nil {
			t.Errorf("Delete non-existent: got err=%v, want nil", err)
		}
		if removed {
			t.Error("Delete non-existent: removed = true, want false")
		}
	})

	t.Run("ConcurrentDeleteSingleWinner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Put(ctx, "msg-race", []byte("race")); err != nil {
			t.Fatalf("Put: %v", err)
		}

		const n = 8
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				removed, err := store.Delete(ctx, "msg-race")
				if err != nil {
					t.Errorf("concurrent Delete: %v", err)
					return
				}
				if removed {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Errorf("winners = %d, want 1", got)
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		if err := store.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck: %v", err)
		}
	})
}
