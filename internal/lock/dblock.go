// Package lock guards a SQLite database file against a second consumer
// process. PostgreSQL deployments rely on the consumer group instead.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("database is locked by another process")

// DBLock is an exclusive flock(2) on "<db path>.lock" holding the owner's PID.
// The lock lives as long as the file descriptor stays open.
type DBLock struct {
	path string
	f    *os.File
}

// PathFor returns the lock file used for the database at dbPath.
func PathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Acquire takes the lock for the database at dbPath without blocking.
func Acquire(dbPath string) (*DBLock, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	path := PathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			if pid, ok := Holder(dbPath); ok {
				return nil, fmt.Errorf("%w (pid %d)", ErrHeld, pid)
			}
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	l := &DBLock{path: path, f: f}
	if err := l.writePID(); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

func (l *DBLock) writePID() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	return l.f.Sync()
}

// Holder reads the PID recorded in the lock file for dbPath.
func Holder(dbPath string) (int, bool) {
	b, err := os.ReadFile(PathFor(dbPath))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *DBLock) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *DBLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
