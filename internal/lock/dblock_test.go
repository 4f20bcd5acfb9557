package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "data", "runwatch.db")
	l, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	if l.Path() != dbPath+".lock" {
		t.Fatalf("Path() = %q", l.Path())
	}
	pid, ok := Holder(dbPath)
	if !ok || pid != os.Getpid() {
		t.Fatalf("Holder() = %d, %v; want %d", pid, ok, os.Getpid())
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "runwatch.db")
	first, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := Acquire(dbPath); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire error = %v, want ErrHeld", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := Acquire(dbPath)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquireRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestHolderMissingFile(t *testing.T) {
	t.Parallel()
	if _, ok := Holder(filepath.Join(t.TempDir(), "none.db")); ok {
		t.Fatal("expected no holder")
	}
}
