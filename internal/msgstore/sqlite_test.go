package msgstore

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "queue.db"), "email_queue")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStore_KeysInInsertionOrder(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	want := []string{"msg-c", "msg-a", "msg-b"}
	for _, k := range want {
		if err := store.Put(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	got, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys = %v, want %v", got, want)
		}
	}
}

func TestSQLiteStore_RejectsBadTableName(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "q.db"), "drop table;")
	if err == nil {
		t.Fatal("NewSQLiteStore with bad table name: want error")
	}
}
