package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process lock on a clone target.
type FileLock struct {
	fl   *flock.Flock
	path string
}

// New returns the lock for key at <tmp>/dbclone_<hash>.lock.
func New(key string) *FileLock {
	sum := sha256.Sum256([]byte(key))
	name := filepath.Join(os.TempDir(), "dbclone_"+hex.EncodeToString(sum[:8])+".lock")
	return &FileLock{fl: flock.New(name), path: name}
}

// TryLock attempts non-blocking lock.
func (l *FileLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Acquire retries TryLock until it succeeds or wait elapses. wait=0 tries once.
// It reports (false, nil) when wait elapses and ctx.Err() when ctx is done.
func (l *FileLock) Acquire(ctx context.Context, wait time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if wait <= 0 {
		return l.fl.TryLock()
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ok, err := l.fl.TryLockContext(waitCtx, 100*time.Millisecond)
	if err != nil && waitCtx.Err() != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return ok, err
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	_ = os.Remove(l.path)
	return nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }
