// Package static implements spec.md §4.5: an initial view frozen for
// the lifetime of the group. No background activity; mutators return
// errs.ErrUnsupported.
package static

import (
	"context"
	"sync"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/view"
)

const Name = "static"

func init() {
	backend.Register(Name, func() backend.Backend { return &Backend{} })
}

// Backend holds the view moved in at Init for the lifetime of the group.
type Backend struct {
	mu sync.Mutex
	v  *view.View
}

var _ backend.Backend = (*Backend)(nil)

func (b *Backend) Init(_ context.Context, args backend.InitArgs) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if args.InitialView == nil {
		return errs.ErrInvalidArgs
	}
	b.v = args.InitialView
	return nil
}

func (b *Backend) Destroy(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.v != nil {
		b.v.Clear()
	}
	return nil
}

func (b *Backend) GetConfig(visitor func([]byte)) error {
	visitor([]byte(`{}`))
	return nil
}

func (b *Backend) GetView(visitor func(*view.View)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	visitor(b.v)
	return nil
}

func (b *Backend) AddMetadata(string, string) error { return errs.ErrUnsupported }
func (b *Backend) RemoveMetadata(string) error       { return errs.ErrUnsupported }
