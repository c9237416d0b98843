//go:build unix

package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/flockgroup/flock/internal/runtime/debug"
)

type lockedFile struct {
	f *os.File
}

func (l *lockedFile) Close() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}

// AcquireExclusive opens (creating if needed) path and takes a
// non-blocking exclusive flock. Returns ErrLockBusy if another process
// already holds it.
func AcquireExclusive(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			if debug.Enabled() {
				fmt.Fprintf(os.Stderr, "lockfile: exclusive lock busy on %s\n", path)
			}
			return nil, ErrLockBusy
		}
		return nil, err
	}
	if debug.Enabled() {
		fmt.Fprintf(os.Stderr, "lockfile: acquired exclusive lock on %s\n", path)
	}
	return &Lock{file: &lockedFile{f: f}}, nil
}

// AcquireShared opens (creating if needed) path and takes a
// non-blocking shared flock, for readers that only need to observe
// whether an exclusive writer is active.
func AcquireShared(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			if debug.Enabled() {
				fmt.Fprintf(os.Stderr, "lockfile: shared lock busy on %s\n", path)
			}
			return nil, ErrLockBusy
		}
		return nil, err
	}
	if debug.Enabled() {
		fmt.Fprintf(os.Stderr, "lockfile: acquired shared lock on %s\n", path)
	}
	return &Lock{file: &lockedFile{f: f}}, nil
}

// Held reports whether an exclusive lock on path is currently held by
// some process, without blocking and without disturbing that lock: it
// probes by attempting (and immediately releasing) a non-blocking
// exclusive lock of its own.
func Held(path string) bool {
	lk, err := AcquireExclusive(path)
	if err != nil {
		return IsBusy(err)
	}
	_ = lk.Close()
	return false
}
