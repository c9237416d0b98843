// Package handle implements the client-side group handle of
// spec.md §4.8: a refcounted, atomically-swapped cache of a remote
// provider's view, constructed from an endpoint, a serialized string,
// or a file.
//
// The "from endpoint" path is grounded directly on the teacher's
// internal/rpc/client.go TryConnectWithTimeout: dial with a bounded
// timeout, then immediately verify the peer is who it claims to be
// (there, a health check; here, the identity probe of spec.md §6)
// before handing back a usable handle.
package handle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flockgroup/flock/internal/codec"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/rpcwire"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

// ModeFlags are the handle-creation mode bits of spec.md §6.
type ModeFlags uint32

const (
	InitUpdate ModeFlags = 0x1 // refresh on open
	Subscribe  ModeFlags = 0x2 // reserved for subscription bootstrap
)

// Handle is a refcounted client-side cache of one group's view.
type Handle struct {
	transport runtime.Transport
	endpoint  string
	dialTO    time.Duration

	mu   sync.Mutex
	v    *view.View
	refs int32
}

// FromEndpoint dials addr, verifies the peer answers the identity
// probe with "flock" (rejecting anything else with ErrInvalidProvider,
// mirroring TryConnectWithTimeout's health-check gate), then either
// issues an immediate GET-VIEW (mode&InitUpdate) or seeds the cache
// with a single-member entry for the contact (addr, providerID).
func FromEndpoint(ctx context.Context, t runtime.Transport, addr string, providerID uint16, dialTimeout time.Duration, mode ModeFlags) (*Handle, error) {
	if dialTimeout <= 0 {
		dialTimeout = 200 * time.Millisecond
	}
	caller, err := rpcwire.Dial(ctx, t, addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	defer caller.Close()

	var identity string
	if err := caller.Call(rpcwire.OpIdentity, nil, &identity); err != nil {
		return nil, fmt.Errorf("%w: identity probe failed: %v", errs.ErrInvalidProvider, err)
	}
	if identity != rpcwire.Identity {
		return nil, fmt.Errorf("%w: got %q", errs.ErrInvalidProvider, identity)
	}

	h := &Handle{transport: t, endpoint: addr, dialTO: dialTimeout, refs: 1}

	if mode&InitUpdate != 0 {
		v, err := fetchView(caller, 0)
		if err != nil {
			return nil, err
		}
		h.v = v
		return h, nil
	}

	v := view.New()
	if _, err := v.AddMember(0, providerID, addr); err != nil {
		return nil, err
	}
	h.v = v
	return h, nil
}

// FromString parses a serialized group view directly, with no
// backing connection — refresh-by-digest is unavailable on a handle
// built this way.
func FromString(s string) (*Handle, error) {
	decoded, err := codec.FromString(s)
	if err != nil {
		return nil, err
	}
	return &Handle{v: decoded.View, refs: 1}, nil
}

// FromFile reads path then parses it as FromString does.
func FromFile(path string) (*Handle, error) {
	decoded, err := codec.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Handle{v: decoded.View, refs: 1}, nil
}

type getViewRequest struct {
	KnownDigest uint64 `json:"known_digest"`
}

type getViewResponse struct {
	NoChange bool   `json:"no_change"`
	ViewJSON string `json:"view_json,omitempty"`
}

func fetchView(caller *rpcwire.Caller, knownDigest uint64) (*view.View, error) {
	var resp getViewResponse
	if err := caller.Call(rpcwire.OpGetView, getViewRequest{KnownDigest: knownDigest}, &resp); err != nil {
		return nil, err
	}
	if resp.NoChange {
		return nil, nil
	}
	decoded, err := codec.FromString(resp.ViewJSON)
	if err != nil {
		return nil, err
	}
	return decoded.View, nil
}

// Refresh issues a GET-VIEW carrying the handle's current digest and,
// if the provider reports a change, atomically swaps in the new view
// under the view lock (spec.md §4.8, §8: readers see either the old
// complete view or the new, never a partial one).
func (h *Handle) Refresh(ctx context.Context) error {
	if h.transport == nil {
		return fmt.Errorf("%w: handle has no backing endpoint", errs.ErrUnsupported)
	}
	caller, err := rpcwire.Dial(ctx, h.transport, h.endpoint, h.dialTO)
	if err != nil {
		return err
	}
	defer caller.Close()

	h.mu.Lock()
	knownDigest := h.v.Digest()
	h.mu.Unlock()

	newView, err := fetchView(caller, knownDigest)
	if err != nil {
		return err
	}
	if newView == nil {
		return nil // no_change
	}

	h.mu.Lock()
	h.v = newView
	h.mu.Unlock()
	return nil
}

// AddRef increments the handle's reference count.
func (h *Handle) AddRef() { atomic.AddInt32(&h.refs, 1) }

// Release decrements the reference count, returning true if it
// reached zero (the caller should then drop its last reference).
func (h *Handle) Release() bool {
	return atomic.AddInt32(&h.refs, -1) == 0
}

// Size returns last.rank + 1, or 0 for an empty view.
func (h *Handle) Size() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.Size()
}

// LiveCount returns the member sequence length.
func (h *Handle) LiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.LiveCount()
}

// MemberAt returns the member at sequence index i, or nil if out of range.
func (h *Handle) MemberAt(i int) *view.Member {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.MemberAt(i)
}

// Iterate visits members in rank order until fn returns false.
func (h *Handle) Iterate(fn func(*view.Member) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.v.Iterate(fn)
}

// FindRank returns the member holding rank, or nil.
func (h *Handle) FindRank(rank uint64) *view.Member {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.FindRank(rank)
}

// MetadataIterate visits metadata entries in key order until fn
// returns false.
func (h *Handle) MetadataIterate(fn func(key, value string) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.v.MetadataIterate(fn)
}

// MetadataAccess returns the value for key, or ErrNoMetadata if absent.
func (h *Handle) MetadataAccess(key string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	val, ok := h.v.FindMetadata(key)
	if !ok {
		return "", errs.ErrNoMetadata
	}
	return val, nil
}

// Digest returns the handle's currently cached view digest.
func (h *Handle) Digest() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.v.Digest()
}

// SetMetadata is a stub: a handle is a read-only cache of a remote
// provider's view (spec.md §4.8), so it has no path to push a
// metadata change back to the backend that owns it.
func (h *Handle) SetMetadata(key, value string) error {
	return errs.ErrUnsupported
}
