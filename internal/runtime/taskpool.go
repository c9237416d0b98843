package runtime

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flockgroup/flock/internal/errs"
)

// ErrgroupPool is a bounded cooperative task pool backed by
// golang.org/x/sync/errgroup, grounded on the teacher's dependency on
// golang.org/x/sync (used there for concurrent fan-out); here it runs
// rpcwire.Serve's per-connection handlers and the SWIM backend's
// protocol loop and JOIN announce.
type ErrgroupPool struct {
	mu      sync.Mutex
	closed  bool
	limit   int
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewErrgroupPool returns a pool that runs at most concurrency tasks
// at a time. concurrency<=0 means unbounded.
func NewErrgroupPool(concurrency int) *ErrgroupPool {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	return &ErrgroupPool{limit: concurrency, group: g, ctx: ctx, cancel: cancel}
}

var _ TaskPool = (*ErrgroupPool)(nil)

func (p *ErrgroupPool) Go(fn func()) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: pool closed", errs.ErrTasking)
	}
	p.group.Go(func() error {
		fn()
		return nil
	})
	return nil
}

func (p *ErrgroupPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	_ = p.group.Wait()
	p.cancel()
}
