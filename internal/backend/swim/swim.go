// Package swim implements the active failure-detection backend of
// spec.md §4.7: SWIM-style ping/indirect-ping/suspicion with
// incarnation-based refutation, with membership gossip piggybacked on
// its PING/PING-REQ traffic.
//
// Grounded on the teacher's internal/rpc client/server framing for the
// RPC surface (see internal/rpcwire) and on
// internal/labelmutex/policy.go's "snapshot under lock, act unlocked,
// reconcile under lock" pattern for the per-period probe cycle — see
// DESIGN.md.
package swim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/gossip"
	"github.com/flockgroup/flock/internal/logging"
	"github.com/flockgroup/flock/internal/metrics"
	"github.com/flockgroup/flock/internal/rpcwire"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

// Name is the registration name of spec.md §4.7.
const Name = "swim"

func init() {
	backend.Register(Name, func() backend.Backend { return &Backend{} })
}

// Deps bundles the runtime collaborators backend.InitArgs deliberately
// omits (see internal/backend's doc comment): the transport dial-out
// PING/PING-REQ need, the pool the per-period tick loop runs on, and
// the dispatcher SWIM layers its RPCs onto alongside the Provider's
// own GET-VIEW/identity registrations.
type Deps struct {
	Transport  runtime.Transport
	Pool       runtime.TaskPool
	Dispatcher *rpcwire.Dispatcher
	DialTimeout time.Duration
	Metrics    *metrics.Registry
}

// Backend is the SWIM membership backend.
type Backend struct {
	deps Deps
	cfg  Config

	selfAddress string
	selfPID     uint16

	selfIncarnation atomic.Uint64

	mu         sync.Mutex
	v          *view.View
	states     map[memberKey]*memberState
	gossipBuf  *gossip.Buffer
	probeOrder []int
	probeIdx   int

	onMemberUpdate   backend.MemberUpdateFunc
	onMetadataUpdate backend.MetadataUpdateFunc

	log *logging.Logger

	shuttingDown atomic.Bool
	stopCh       chan struct{}
	stopOnce     sync.Once
	doneCh       chan struct{}
}

// NewWithDeps constructs a Backend that dials out and registers its
// RPCs through deps. A zero-value Backend (as the factory registry
// produces) is only useful for GetConfig-style introspection; Init
// requires deps.Transport/Pool to actually run the protocol loop.
func NewWithDeps(deps Deps) *Backend {
	return &Backend{deps: deps, log: logging.For("swim")}
}

func (b *Backend) Init(ctx context.Context, args backend.InitArgs) error {
	cfg, err := ParseConfig(args.ConfigJSON)
	if err != nil {
		return err
	}
	if args.InitialView == nil {
		return fmt.Errorf("%w: initial view required", errs.ErrInvalidArgs)
	}
	if b.log == nil {
		b.log = logging.For("swim")
	}

	b.mu.Lock()
	b.cfg = cfg
	b.selfAddress = args.SelfAddress
	b.selfPID = args.ProviderID
	b.v = args.InitialView
	b.onMemberUpdate = args.OnMemberUpdate
	b.onMetadataUpdate = args.OnMetadataUpdate
	b.states = make(map[memberKey]*memberState)
	b.v.Iterate(func(m *view.Member) bool {
		b.states[memberKey{address: m.Address, providerID: m.ProviderID}] = &memberState{status: Alive}
		return true
	})
	b.gossipBuf = gossip.New(b.v.LiveCount())
	b.rebuildProbeOrderLocked()
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})

	// spec.md §4.7.1: publish the backend's identity and live config
	// as synthetic, GetConfig-independent metadata entries.
	b.v.AddMetadata("__type__", Name)
	b.v.AddMetadata("__config__", string(cfg.JSON()))

	var joinEntry *gossip.Entry
	if args.Join {
		if b.v.FindMember(b.selfAddress, b.selfPID) == nil {
			rank := b.v.Size()
			b.v.AddMember(rank, b.selfPID, b.selfAddress)
			b.states[memberKey{address: b.selfAddress, providerID: b.selfPID}] = &memberState{status: Alive}
			b.rebuildProbeOrderLocked()
			b.gossipBuf.SetGroupSize(b.v.LiveCount())
		}
		e := gossip.Entry{Type: gossip.Join, Address: b.selfAddress, ProviderID: b.selfPID, Incarnation: 0}
		b.gossipBuf.Insert(e)
		joinEntry = &e
	}
	b.mu.Unlock()

	b.registerRPCs()

	if joinEntry != nil && b.deps.Transport != nil && b.deps.Pool != nil {
		entry := *joinEntry
		b.deps.Pool.Go(func() { b.announce(context.Background(), entry) })
	}

	if b.deps.Pool != nil {
		b.deps.Pool.Go(func() { b.run() })
	}

	return nil
}

func (b *Backend) Destroy(ctx context.Context) error {
	b.shuttingDown.Store(true)

	b.mu.Lock()
	var leaveEntry *gossip.Entry
	if b.v != nil {
		if m := b.v.FindMember(b.selfAddress, b.selfPID); m != nil {
			e := gossip.Entry{Type: gossip.Leave, Address: b.selfAddress, ProviderID: b.selfPID, Incarnation: b.selfIncarnation.Load()}
			b.gossipBuf.Insert(e)
			leaveEntry = &e
		}
	}
	b.mu.Unlock()

	if leaveEntry != nil && b.deps.Transport != nil {
		b.announce(ctx, *leaveEntry)
	}

	b.stopOnce.Do(func() {
		if b.stopCh != nil {
			close(b.stopCh)
		}
	})

	if b.doneCh != nil && b.deps.Pool != nil {
		select {
		case <-b.doneCh:
		case <-time.After(time.Second):
		}
	}
	return nil
}

func (b *Backend) GetConfig(visitor func(configJSON []byte)) error {
	b.mu.Lock()
	cfg := b.cfg
	b.mu.Unlock()
	visitor(cfg.JSON())
	return nil
}

func (b *Backend) GetView(visitor func(v *view.View)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.v == nil {
		return errs.ErrNotAMember
	}
	visitor(b.v)
	return nil
}

func (b *Backend) AddMetadata(key, value string) error {
	b.mu.Lock()
	v := b.v
	b.mu.Unlock()
	if v == nil {
		return errs.ErrNotAMember
	}
	v.AddMetadata(key, value)
	if b.onMetadataUpdate != nil {
		b.onMetadataUpdate(key, value)
	}
	return nil
}

func (b *Backend) RemoveMetadata(key string) error {
	b.mu.Lock()
	v := b.v
	b.mu.Unlock()
	if v == nil {
		return errs.ErrNotAMember
	}
	if !v.RemoveMetadata(key) {
		return errs.ErrNoMetadata
	}
	if b.onMetadataUpdate != nil {
		b.onMetadataUpdate(key, "")
	}
	return nil
}

func (b *Backend) notifyMemberLocked(kind backend.MemberUpdateKind, address string, providerID uint16) {
	if b.onMemberUpdate == nil {
		return
	}
	cb := b.onMemberUpdate
	go cb(kind, address, providerID)
}

func (b *Backend) rebuildProbeOrderLocked() {
	n := b.v.LiveCount()
	b.probeOrder = shuffledIndices(n)
	b.probeIdx = 0
	if m := b.deps.Metrics; m != nil {
		m.GroupSize.Set(float64(b.v.Size()))
		m.LiveCount.Set(float64(n))
	}
}
