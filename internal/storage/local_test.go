package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(LocalConfig{
		Dir: filepath.Join(t.TempDir(), "uploads"),
		Clock: func() time.Time {
			return time.Date(2025, time.May, 2, 14, 3, 9, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSaveOpenRemove(t *testing.T) {
	store := newTestStore(t)

	key, err := store.Save("Surat Undangan.PDF", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if !strings.HasPrefix(key, "20250502_140309_") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}

	reader, err := store.Open(key)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	content, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || string(content) != "payload" {
		t.Fatalf("unexpected content %q (%v)", content, err)
	}

	if err := store.Remove(key); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.dir, key)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	if err := store.Remove(key); err != nil {
		t.Fatalf("removing a missing file should succeed, got %v", err)
	}
	if _, err := store.Open(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveProducesDistinctKeys(t *testing.T) {
	store := newTestStore(t)
	first, err := store.Save("a.txt", strings.NewReader("1"))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	second, err := store.Save("a.txt", strings.NewReader("2"))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if first == second {
		t.Fatalf("keys saved in the same second must differ")
	}
}

func TestKeysCannotEscapeDirectory(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"../secret", `..\secret`, "nested/file.txt", "", ".."} {
		if _, err := store.Open(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Open(%q): expected ErrInvalidKey, got %v", key, err)
		}
		if err := store.Remove(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Remove(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestNewLocalRequiresDirectory(t *testing.T) {
	if _, err := NewLocal(LocalConfig{}); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
