//go:build !windows

package storage

import (
	"os"
	"syscall"
	"time"
)

// lockPollInterval is how often Lock re-tries a contended lock.
const lockPollInterval = 10 * time.Millisecond

// FileLock guards the store file against concurrent processes. The lock is
// an advisory flock(2) on a sibling ".lock" file; a second process opening
// the same store polls until the timeout and fails with ErrLockTimeout.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock prepares a lock for the store at path. Nothing is acquired
// until Lock is called; the lock file lives at path + ".lock".
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires the exclusive lock, polling until the timeout elapses.
func (l *FileLock) Lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}
	l.file = f

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
			return nil
		}
		time.Sleep(lockPollInterval)
	}

	l.file.Close()
	l.file = nil
	return ErrLockTimeout
}

// Unlock releases the lock and removes the lock file. Unlocking a lock
// that was never acquired is a no-op.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
	return nil
}
