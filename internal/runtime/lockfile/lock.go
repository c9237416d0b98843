// Package lockfile implements the cross-process locking primitive the
// core treats as an external runtime collaborator (spec.md §1): a
// non-blocking advisory exclusive or shared flock on a file, exposed to
// the rest of the library through runtime.FileLocker.
package lockfile

import "errors"

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lockfile: busy, held by another process")

// IsBusy reports whether err indicates the lock is held elsewhere.
func IsBusy(err error) bool {
	return errors.Is(err, ErrLockBusy)
}

// Lock represents a held advisory lock on a file. Close releases it.
type Lock struct {
	file *lockedFile
}

// Close releases the lock and closes the underlying file handle.
func (l *Lock) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
