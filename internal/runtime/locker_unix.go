//go:build unix

package runtime

import (
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/runtime/lockfile"
)

// FileLocker adapts internal/runtime/lockfile to the Locker contract.
type FileLocker struct{}

var _ Locker = FileLocker{}

func (FileLocker) TryLock(name string) (Unlocker, error) {
	lk, err := lockfile.AcquireExclusive(name)
	if err != nil {
		if lockfile.IsBusy(err) {
			return nil, errs.ErrForbidden
		}
		return nil, err
	}
	return fileUnlocker{lk}, nil
}

type fileUnlocker struct {
	lk *lockfile.Lock
}

func (u fileUnlocker) Unlock() error { return u.lk.Close() }
