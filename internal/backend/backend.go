// Package backend defines the five-operation membership backend
// contract (spec.md §4.4) and a process-wide factory registry
// (spec.md §9: "a global registry of at most 64 named backend
// factories"). static, centralized, and swim each register themselves
// under their spec-mandated name via init().
//
// The registry shape is grounded on the teacher's single
// lazily-initialized, lock-protected map pattern used for adapter
// registration (mirrored across the pack, e.g. orbas1-Synnergy's
// module/service registries) — see DESIGN.md.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/view"
)

// MemberUpdateKind is one of the three callback kinds of spec.md §6.
type MemberUpdateKind int

const (
	MemberJoined MemberUpdateKind = iota
	MemberLeft
	MemberDied
)

// MemberUpdateFunc is invoked on membership change.
type MemberUpdateFunc func(kind MemberUpdateKind, address string, providerID uint16)

// MetadataUpdateFunc is invoked when a metadata key changes.
type MetadataUpdateFunc func(key, value string)

// InitArgs bundles the init-time arguments of spec.md §4.4. It carries
// no Transport or TaskPool: backends that need those runtime
// collaborators (see internal/runtime) take them at construction.
type InitArgs struct {
	SelfAddress  string
	ProviderID   uint16
	ConfigJSON   []byte
	InitialView  *view.View // moved in: callers must not reuse it afterward
	Join         bool

	OnMemberUpdate   MemberUpdateFunc
	OnMetadataUpdate MetadataUpdateFunc
}

// Backend is the five-operation contract every membership
// implementation satisfies (spec.md §4.4).
type Backend interface {
	// Init constructs the backend's private context from args.
	Init(ctx context.Context, args InitArgs) error

	// Destroy releases all resources, announcing departure if the
	// backend's protocol calls for it.
	Destroy(ctx context.Context) error

	// GetConfig invokes visitor with the backend's current JSON
	// configuration while holding its config lock.
	GetConfig(visitor func(configJSON []byte)) error

	// GetView invokes visitor with a borrow of the backend's view
	// while holding its lock. visitor must not retain v past the call.
	GetView(visitor func(v *view.View)) error

	// AddMetadata / RemoveMetadata are optional; backends that don't
	// support mutation return errs.ErrUnsupported.
	AddMetadata(key, value string) error
	RemoveMetadata(key string) error
}

// Factory constructs a new, uninitialized Backend instance.
type Factory func() Backend

const maxFactories = 64

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory, maxFactories)
)

// Register adds factory under name. It panics on a duplicate name or
// once the 64-entry cap is reached, consistent with this being a
// process-wide, init()-time registration point rather than a runtime
// one.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("backend: factory %q already registered", name))
	}
	if len(factories) >= maxFactories {
		panic(fmt.Sprintf("backend: factory registry full (max %d)", maxFactories))
	}
	factories[name] = factory
}

// Lookup returns the factory registered under name, if any.
func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// New constructs a fresh backend instance for the named type, or
// errs.ErrInvalidBackend if name isn't registered.
func New(name string) (Backend, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidBackend, name)
	}
	return f(), nil
}
