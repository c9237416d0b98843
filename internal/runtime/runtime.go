// Package runtime defines the contracts spec.md §1 and §5 name as
// external collaborators — transport, a cooperative task pool, and
// cross-process locking — plus concrete implementations of each, so
// the library is exercisable end-to-end. Timers have no contract here;
// the SWIM backend uses time.Timer directly.
//
// The production Transports are unix-domain and TCP sockets, grounded
// directly in the teacher's own RPC layer
// (steveyegge-beads/internal/rpc/server.go, client.go); the
// newline-delimited JSON framing on top of them lives in
// internal/rpcwire. The TaskPool is golang.org/x/sync/errgroup-based
// (a teacher dependency). See DESIGN.md.
package runtime

import (
	"context"
	"io"
	"time"
)

// Conn is a bidirectional byte stream to one peer.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() string
}

// Listener accepts inbound connections on one bound address.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}

// Transport is the runtime collaborator the core treats as opaque
// (spec.md §1): address resolution plus connection establishment.
type Transport interface {
	// Listen binds addr and returns a Listener. addr's syntax is
	// transport-specific; the core never inspects it.
	Listen(ctx context.Context, addr string) (Listener, error)

	// Dial opens a Conn to addr, failing if it can't connect within
	// timeout.
	Dial(ctx context.Context, addr string, timeout time.Duration) (Conn, error)
}

// TaskPool is the cooperative task pool spec.md §5 names: RPC
// handlers and timer callbacks run as tasks on it.
type TaskPool interface {
	// Go schedules fn to run; it may run synchronously if the pool is
	// saturated and configured to apply backpressure, or concurrently
	// otherwise. The returned error is non-nil only if the pool refused
	// the work (errs.ErrTasking), e.g. during shutdown.
	Go(fn func()) error

	// Close stops accepting new work and waits for in-flight tasks.
	Close()
}

// Locker is the cross-process locking primitive spec.md §1 names,
// used to serialize concurrent rewrites of the on-disk group file.
type Locker interface {
	// TryLock attempts a non-blocking exclusive lock on name, returning
	// (nil, errs.ErrForbidden)-shaped errors the caller can retry on a
	// timer rather than block the view lock across a suspension point.
	TryLock(name string) (Unlocker, error)
}

// Unlocker releases a lock acquired via Locker.TryLock.
type Unlocker interface {
	Unlock() error
}
