// Package provider implements the server-side RPC endpoint of
// spec.md §4.8: it owns a Backend, answers GET-VIEW and identity
// probes, relays membership changes to registered callbacks, and
// optionally rewrites the group file when it owns position 0 of the
// view.
//
// Grounded directly on the teacher's internal/rpc/server.go Server:
// listener held under a RWMutex, shutdownChan + sync.Once Stop,
// WaitReady()/readyChan signaling, and the accept loop dispatching one
// goroutine per connection through a bounded pool.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/codec"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/logging"
	"github.com/flockgroup/flock/internal/metrics"
	"github.com/flockgroup/flock/internal/rpcwire"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/telemetry"
	"github.com/flockgroup/flock/internal/view"
)

// MemberCallback and MetadataCallback mirror spec.md §6's
// member_update/metadata_update signatures, keyed by an opaque
// uuid.UUID registration context rather than a raw pointer.
type MemberCallback func(ctx uuid.UUID, kind backend.MemberUpdateKind, address string, providerID uint16)
type MetadataCallback func(ctx uuid.UUID, key, value string)

type registration struct {
	member   MemberCallback
	metadata MetadataCallback
}

// GroupFileConfig controls whether/where the provider persists the
// group file on membership change, following spec.md §4.8's "if
// configured and if this provider owns position 0 of the view" rule.
type GroupFileConfig struct {
	Path    string
	Enabled bool
}

// Config bundles the construction-time parameters of a Provider.
type Config struct {
	SelfAddress string
	ProviderID  uint16
	Backend     backend.Backend
	Transport   runtime.Transport
	Pool        runtime.TaskPool
	ListenAddr  string
	GroupFile   GroupFileConfig
	Metrics     *metrics.Registry
}

// Provider is the server-side endpoint for one group.
type Provider struct {
	selfAddress string
	selfPID     uint16
	be          backend.Backend
	transport   runtime.Transport
	pool        runtime.TaskPool
	listenAddr  string
	groupFile   GroupFileConfig
	metricsReg  *metrics.Registry
	log         *logging.Logger

	dispatcher *rpcwire.Dispatcher

	mu        sync.RWMutex
	listener  runtime.Listener
	shutdown  bool
	stopOnce  sync.Once
	readyChan chan struct{}

	cbMu  sync.RWMutex
	cbs   map[uuid.UUID]registration
}

// New constructs a Provider bound to cfg.Backend, registering GET-VIEW
// and identity on its dispatcher. The backend itself is not yet
// Init'd; call Init after New, then Start to begin serving.
func New(cfg Config) *Provider {
	p := &Provider{
		selfAddress: cfg.SelfAddress,
		selfPID:     cfg.ProviderID,
		be:          cfg.Backend,
		transport:   cfg.Transport,
		pool:        cfg.Pool,
		listenAddr:  cfg.ListenAddr,
		groupFile:   cfg.GroupFile,
		metricsReg:  cfg.Metrics,
		log:         logging.For("provider"),
		dispatcher:  rpcwire.NewDispatcher(),
		readyChan:   make(chan struct{}),
		cbs:         make(map[uuid.UUID]registration),
	}
	p.dispatcher.Register(rpcwire.OpIdentity, p.handleIdentity)
	p.dispatcher.Register(rpcwire.OpGetView, p.handleGetView)
	return p
}

// Dispatcher exposes the registration table so a backend (e.g. SWIM)
// can layer its own RPCs (PING/PING-REQ/ANNOUNCE) onto the same
// listener.
func (p *Provider) Dispatcher() *rpcwire.Dispatcher { return p.dispatcher }

// Init initializes the backend, wiring its membership/metadata
// callbacks to this provider's dispatch-to-registrants logic.
func (p *Provider) Init(ctx context.Context, join bool, initial *view.View, configJSON []byte) error {
	return p.be.Init(ctx, backend.InitArgs{
		SelfAddress: p.selfAddress,
		ProviderID:  p.selfPID,
		ConfigJSON:  configJSON,
		InitialView: initial,
		Join:        join,
		OnMemberUpdate: func(kind backend.MemberUpdateKind, address string, providerID uint16) {
			p.onMemberUpdate(kind, address, providerID)
		},
		OnMetadataUpdate: func(key, value string) {
			p.onMetadataUpdate(key, value)
		},
	})
}

// Start binds the listen address and serves until ctx is canceled or
// Stop is called.
func (p *Provider) Start(ctx context.Context) error {
	ln, err := p.transport.Listen(ctx, p.listenAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()
	close(p.readyChan)

	err = rpcwire.Serve(ctx, ln, p.pool, p.dispatcher, 0)
	p.mu.RLock()
	shuttingDown := p.shutdown
	p.mu.RUnlock()
	if shuttingDown {
		return nil
	}
	return err
}

// WaitReady returns a channel closed once the listener is bound.
func (p *Provider) WaitReady() <-chan struct{} { return p.readyChan }

// Stop tears down the listener and destroys the backend, announcing
// departure per the backend's own Destroy semantics.
func (p *Provider) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		ln := p.listener
		p.listener = nil
		p.mu.Unlock()

		if ln != nil {
			if closeErr := ln.Close(); closeErr != nil {
				err = closeErr
			}
		}
		if destroyErr := p.be.Destroy(ctx); destroyErr != nil && err == nil {
			err = destroyErr
		}
	})
	return err
}

// RegisterCallbacks installs member/metadata callbacks under ctx,
// replacing any prior registration under the same ctx in place
// (spec.md §4.8).
func (p *Provider) RegisterCallbacks(ctx uuid.UUID, member MemberCallback, metadata MetadataCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.cbs[ctx] = registration{member: member, metadata: metadata}
}

// UnregisterCallbacks removes the registration under ctx, if any.
func (p *Provider) UnregisterCallbacks(ctx uuid.UUID) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	delete(p.cbs, ctx)
}

func (p *Provider) onMemberUpdate(kind backend.MemberUpdateKind, address string, providerID uint16) {
	p.cbMu.RLock()
	for ctx, reg := range p.cbs {
		if reg.member != nil {
			reg.member(ctx, kind, address, providerID)
		}
	}
	p.cbMu.RUnlock()

	if p.metricsReg != nil {
		p.metricsReg.DigestRecomputes.Inc()
	}
	p.persistGroupFileIfOwner()
}

func (p *Provider) onMetadataUpdate(key, value string) {
	p.cbMu.RLock()
	for ctx, reg := range p.cbs {
		if reg.metadata != nil {
			reg.metadata(ctx, key, value)
		}
	}
	p.cbMu.RUnlock()
}

// persistGroupFileIfOwner rewrites the configured group file
// atomically, but only when this provider's address/provider_id is
// the view's member at position 0 — spec.md §4.8's ownership rule.
func (p *Provider) persistGroupFileIfOwner() {
	if !p.groupFile.Enabled || p.groupFile.Path == "" {
		return
	}
	var owns bool
	var v *view.View
	if err := p.be.GetView(func(got *view.View) {
		v = got
		first := got.MemberAt(0)
		owns = first != nil && first.Address == p.selfAddress && first.ProviderID == p.selfPID
	}); err != nil {
		p.log.Warnf("get_view failed while checking group-file ownership: %v", err)
		return
	}
	if !owns || v == nil {
		return
	}
	if err := codec.WriteFile(p.groupFile.Path, v, "", 0); err != nil {
		p.log.Errorf("failed to persist group file %s: %v", p.groupFile.Path, err)
	}
}

func (p *Provider) handleIdentity(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(rpcwire.Identity)
}

// getViewRequest/getViewResponse are the GET-VIEW wire DTOs (spec.md
// §4.7.6): the client's cached digest in, either a no_change flag or
// the complete view out.
type getViewRequest struct {
	KnownDigest uint64 `json:"known_digest"`
}

type getViewResponse struct {
	NoChange bool   `json:"no_change"`
	ViewJSON string `json:"view_json,omitempty"`
}

func (p *Provider) handleGetView(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req getViewRequest
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgs, err)
		}
	}

	spanCtx, span := telemetry.StartRPCSpan(ctx, rpcwire.OpGetView, p.selfAddress)
	defer func() { telemetry.EndRPCSpan(span, nil) }()
	_ = spanCtx

	var resp getViewResponse
	var marshalErr error
	err := p.be.GetView(func(v *view.View) {
		if v.Digest() == req.KnownDigest {
			resp.NoChange = true
			return
		}
		resp.ViewJSON, marshalErr = codec.ToString(v, "", 0)
	})
	if err != nil {
		return nil, err
	}
	if marshalErr != nil {
		return nil, marshalErr
	}
	if p.metricsReg != nil {
		p.metricsReg.RPCRequestsTotal.WithLabelValues(rpcwire.OpGetView, "ok").Inc()
	}
	return json.Marshal(resp)
}
