package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "mealboard-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("LoadSnapshot on empty store returns nil", func(t *testing.T) {
		data, err := store.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if data != nil {
			t.Errorf("Expected nil snapshot, got %q", data)
		}
	})

	t.Run("SaveSnapshot then LoadSnapshot", func(t *testing.T) {
		want := `{"groups":{},"currentGroupId":null,"currentUserId":null}`
		if err := store.SaveSnapshot(ctx, []byte(want)); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		got, err := store.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("Snapshot mismatch: got %q, want %q", got, want)
		}
	})

	t.Run("SaveSnapshot replaces the whole record", func(t *testing.T) {
		if err := store.SaveSnapshot(ctx, []byte(`{"a":1}`)); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		if err := store.SaveSnapshot(ctx, []byte(`{"b":2}`)); err != nil {
			t.Fatalf("second save failed: %v", err)
		}

		got, err := store.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if string(got) != `{"b":2}` {
			t.Errorf("Expected latest record, got %q", got)
		}
	})

	t.Run("Snapshot survives reopen", func(t *testing.T) {
		if err := store.SaveSnapshot(ctx, []byte(`{"kept":true}`)); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		reopened, err := New(dbPath)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		defer reopened.Close()

		got, err := reopened.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if string(got) != `{"kept":true}` {
			t.Errorf("Expected persisted record, got %q", got)
		}
	})
}
