// Package errs defines the error taxonomy shared by every component of
// flock (spec.md §7). Each sentinel is wrapped with context via
// fmt.Errorf("...: %w", ErrX) at the call site; callers compare with
// errors.Is.
package errs

import "errors"

var (
	// ErrAllocation reports that a memory/slice growth operation failed.
	// Rare in Go, kept for parity with the taxonomy; codec and rpcwire
	// surface it when JSON marshalling fails.
	ErrAllocation = errors.New("flock: allocation failure")

	// ErrInvalidArgs reports a caller-supplied argument that violates a
	// documented precondition (e.g. a duplicate (address, provider_id)
	// passed to View.AddMember).
	ErrInvalidArgs = errors.New("flock: invalid arguments")

	// ErrInvalidProvider reports a handshake against an endpoint that
	// did not answer the identity probe with "flock".
	ErrInvalidProvider = errors.New("flock: invalid provider identity")

	// ErrInvalidGroup reports a malformed or inconsistent group view.
	ErrInvalidGroup = errors.New("flock: invalid group")

	// ErrInvalidBackend reports an unknown or misconfigured backend type.
	ErrInvalidBackend = errors.New("flock: invalid backend")

	// ErrInvalidConfig reports a structural JSON config violation.
	ErrInvalidConfig = errors.New("flock: invalid config")

	// ErrTransport reports an RPC/transport-layer failure surfaced to
	// the caller (as opposed to SWIM probe failures, which are not
	// errors — they drive the state machine).
	ErrTransport = errors.New("flock: transport error")

	// ErrTasking reports a cooperative task pool failure (e.g. the pool
	// is shutting down and rejected new work).
	ErrTasking = errors.New("flock: tasking error")

	// ErrMPI is reserved for the (out of scope) MPI bootstrap layer.
	ErrMPI = errors.New("flock: mpi error")

	// ErrUnsupported is returned by a backend that does not implement
	// an optional operation (e.g. Static's metadata mutators).
	ErrUnsupported = errors.New("flock: unsupported operation")

	// ErrForbidden reports an operation rejected by policy (e.g.
	// runtime.FileLocker.TryLock on a lock another process holds).
	ErrForbidden = errors.New("flock: forbidden")

	// ErrNoMember reports a lookup that found no matching member.
	ErrNoMember = errors.New("flock: no such member")

	// ErrNoMetadata reports a lookup that found no matching metadata key.
	ErrNoMetadata = errors.New("flock: no such metadata")

	// ErrNotAMember reports an operation requiring self-membership when
	// the calling process is not (yet, or no longer) a view member.
	ErrNotAMember = errors.New("flock: not a member")

	// ErrRankUsed reports an attempt to add a member at an already
	// occupied rank.
	ErrRankUsed = errors.New("flock: rank already in use")

	// ErrOther is the catch-all for failures with no more specific code.
	ErrOther = errors.New("flock: error")
)
