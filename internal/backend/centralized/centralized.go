// Package centralized implements spec.md §4.6: a single authoritative
// primary (the view's first member, position 0, at init) with every other process
// holding only a handle pointing back at it. Mutators return
// errs.ErrUnsupported — membership changes happen externally, through
// the primary's own backend.
package centralized

import (
	"context"
	"sync"
	"time"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/handle"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

const Name = "centralized"

func init() {
	backend.Register(Name, func() backend.Backend { return &Backend{} })
}

// Deps bundles the runtime collaborators this backend needs from a
// non-primary process to reach the primary; static/centralized's own
// InitArgs bundle has no Transport field (see DESIGN.md), so these
// are supplied via NewWithTransport instead of Init.
type Deps struct {
	Transport   runtime.Transport
	DialTimeout time.Duration
}

// Backend is either the primary (holding the authoritative view) or a
// non-primary (holding a *handle.Handle to the primary).
type Backend struct {
	deps Deps

	mu        sync.Mutex
	isPrimary bool
	v         *view.View // primary's authoritative view
	h         *handle.Handle // non-primary's handle to the primary
}

var _ backend.Backend = (*Backend)(nil)

// NewWithTransport constructs a centralized backend that can dial out
// as a non-primary. Backends constructed via the plain factory (no
// transport) can only ever be the primary.
func NewWithTransport(deps Deps) *Backend {
	return &Backend{deps: deps}
}

func (b *Backend) Init(ctx context.Context, args backend.InitArgs) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if args.InitialView == nil {
		return errs.ErrInvalidArgs
	}
	primary := args.InitialView.MemberAt(0)
	if primary == nil {
		return errs.ErrInvalidArgs
	}

	if primary.Address == args.SelfAddress && primary.ProviderID == args.ProviderID {
		b.isPrimary = true
		b.v = args.InitialView
		return nil
	}

	if b.deps.Transport == nil {
		return errs.ErrInvalidArgs
	}
	h, err := handle.FromEndpoint(ctx, b.deps.Transport, primary.Address, primary.ProviderID, b.deps.DialTimeout, handle.InitUpdate)
	if err != nil {
		return err
	}
	b.h = h
	return nil
}

func (b *Backend) Destroy(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isPrimary && b.v != nil {
		b.v.Clear()
	}
	b.v = nil
	b.h = nil
	return nil
}

func (b *Backend) GetConfig(visitor func([]byte)) error {
	visitor([]byte(`{}`))
	return nil
}

func (b *Backend) GetView(visitor func(*view.View)) error {
	b.mu.Lock()
	if b.isPrimary {
		defer b.mu.Unlock()
		visitor(b.v)
		return nil
	}
	h := b.h
	b.mu.Unlock()

	if h == nil {
		return errs.ErrNotAMember
	}
	local := view.New()
	h.Iterate(func(m *view.Member) bool {
		_, _ = local.AddMember(m.Rank, m.ProviderID, m.Address)
		return true
	})
	h.MetadataIterate(func(k, val string) bool {
		local.AddMetadata(k, val)
		return true
	})
	visitor(local)
	return nil
}

func (b *Backend) AddMetadata(string, string) error { return errs.ErrUnsupported }
func (b *Backend) RemoveMetadata(string) error       { return errs.ErrUnsupported }
