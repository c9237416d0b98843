package swim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/provider"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

func fastConfig() []byte {
	cfg := Config{
		ProtocolPeriod:   30 * time.Millisecond,
		PingTimeout:      15 * time.Millisecond,
		PingReqTimeout:   15 * time.Millisecond,
		PingReqMembers:   2,
		SuspicionTimeout: 60 * time.Millisecond,
	}
	return cfg.JSON()
}

type node struct {
	provider *provider.Provider
	backend  *Backend
}

func startNode(t *testing.T, transport *runtime.InMemTransport, pool runtime.TaskPool, addr string, pid uint16, v *view.View, join bool) *node {
	t.Helper()
	be := NewWithDeps(Deps{Transport: transport, Pool: pool, DialTimeout: 50 * time.Millisecond})

	p := provider.New(provider.Config{
		SelfAddress: addr, ProviderID: pid, Backend: be, Transport: transport, Pool: pool, ListenAddr: addr,
	})
	// SWIM layers PING/PING-REQ/ANNOUNCE onto the same table the
	// provider already registered GET-VIEW/identity on.
	be.deps.Dispatcher = p.Dispatcher()

	require.NoError(t, p.Init(context.Background(), join, v, fastConfig()))
	go p.Start(context.Background())
	<-p.WaitReady()
	return &node{provider: p, backend: be}
}

func TestRegisteredUnderName(t *testing.T) {
	f, ok := backend.Lookup(Name)
	require.True(t, ok)
	require.NotNil(t, f())
}

func TestInitPublishesTypeAndConfigMetadata(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "node-a")
	require.NoError(t, err)

	b := &Backend{}
	require.NoError(t, b.Init(context.Background(), backend.InitArgs{
		SelfAddress: "node-a", ProviderID: 1, InitialView: v,
	}))
	defer b.Destroy(context.Background())

	typ, ok := v.FindMetadata("__type__")
	require.True(t, ok)
	require.Equal(t, Name, typ)

	cfgJSON, ok := v.FindMetadata("__config__")
	require.True(t, ok)
	require.JSONEq(t, string(DefaultConfig().JSON()), cfgJSON)
}

func TestTwoNodeJoinSeesEachOther(t *testing.T) {
	transport := runtime.NewInMemTransport()
	pool := runtime.NewErrgroupPool(8)
	defer pool.Close()

	v := view.New()
	_, err := v.AddMember(0, 1, "node-a")
	require.NoError(t, err)

	a := startNode(t, transport, pool, "node-a", 1, v, false)
	defer a.provider.Stop(context.Background())

	v2 := view.New()
	_, err = v2.AddMember(0, 1, "node-a")
	require.NoError(t, err)
	b := startNode(t, transport, pool, "node-b", 2, v2, true)
	defer b.provider.Stop(context.Background())

	require.Eventually(t, func() bool {
		var size uint64
		a.backend.GetView(func(v *view.View) { size = v.Size() })
		return size == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSuspicionConfirmsDeadMember(t *testing.T) {
	transport := runtime.NewInMemTransport()
	pool := runtime.NewErrgroupPool(8)
	defer pool.Close()

	transport.Drop = func(_, to string) bool { return to == "node-c" }

	v := view.New()
	_, err := v.AddMember(0, 1, "node-a")
	require.NoError(t, err)
	_, err = v.AddMember(1, 3, "node-c")
	require.NoError(t, err)

	a := startNode(t, transport, pool, "node-a", 1, v, false)
	defer a.provider.Stop(context.Background())

	require.Eventually(t, func() bool {
		var size int
		a.backend.GetView(func(v *view.View) { size = v.LiveCount() })
		return size == 1
	}, 3*time.Second, 10*time.Millisecond)
}
