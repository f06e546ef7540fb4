package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	key := "events/2024/01/02/a.jsonl.gz"
	if err := store.Put(ctx, key, strings.NewReader("hello world")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "events", "2024", "01", "02", "a.jsonl.gz")); err != nil {
		t.Errorf("blob not on disk: %v", err)
	}

	r, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != "hello world" {
		t.Errorf("Get = %q, %v", data, err)
	}

	if err := store.Put(ctx, "events/2024/01/01/b.jsonl.gz", strings.NewReader("other")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "reports/solve.json", strings.NewReader("{}")); err != nil {
		t.Fatal(err)
	}

	keys, err := store.List(ctx, "events/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"events/2024/01/01/b.jsonl.gz", key}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("List = %v, want %v", keys, want)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_EmptyAndInvalid(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	ctx := context.Background()

	keys, err := store.List(ctx, "")
	if err != nil || len(keys) != 0 {
		t.Errorf("List on missing root = %v, %v", keys, err)
	}

	for _, key := range []string{"", "/", `a\b`} {
		if err := store.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}

	// Keys cannot climb out of the root.
	if err := store.Put(ctx, "../../escape", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	keys, _ = store.List(ctx, "")
	if len(keys) != 1 || keys[0] != "escape" {
		t.Errorf("expected the key confined to the root, got %v", keys)
	}
}
