package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAtomicWriter_CommitReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewAtomicWriter(path)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("new")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("target = %q, want %q", got, "new")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries after commit, want only the target", len(entries))
	}
}

func TestAtomicWriter_AbortLeavesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewAtomicWriter(path)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("half-writ")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("target = %q, want untouched %q", got, "old")
	}
}

func TestAtomicWriter_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "store.json")

	w, err := NewAtomicWriter(path)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("target missing after commit: %v", err)
	}
}

func TestFileLock_SecondLockTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	first := NewFileLock(path)
	if err := first.Lock(time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer first.Unlock()

	second := NewFileLock(path)
	if err := second.Lock(50 * time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "store.json"))
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock() on an unheld lock: %v", err)
	}
}
