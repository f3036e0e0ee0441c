//go:build unix

package lock

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// LockDirectory attempts to acquire an exclusive, non-blocking advisory lock
// on the given directory using a lock file.
//
// On Unix systems, this uses flock(2) to place an exclusive lock on a file
// named "LOCK" inside the directory. If the lock cannot be acquired, the
// directory is assumed to be in use by another duskdb instance.
//
// The returned file handle must remain open for the duration of the lock.
func LockDirectory(path string) (*os.File, error) {
	lockFilePath := filepath.Join(path, "LOCK")

	f, err := os.OpenFile(lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrap(ErrLocked, path)
	}

	return f, nil
}

// UnlockDirectory releases a directory lock acquired via LockDirectory.
//
// On Unix systems, this releases the advisory flock and closes the file.
func UnlockDirectory(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
