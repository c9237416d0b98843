package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/backend"
	_ "github.com/flockgroup/flock/internal/backend/static"
	"github.com/flockgroup/flock/internal/handle"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

func startTestProvider(t *testing.T, addr string) (*Provider, *runtime.InMemTransport) {
	t.Helper()
	v := view.New()
	_, err := v.AddMember(0, 1, addr)
	require.NoError(t, err)

	be, err := backend.New("static")
	require.NoError(t, err)

	transport := runtime.NewInMemTransport()
	pool := runtime.NewErrgroupPool(4)

	p := New(Config{
		SelfAddress: addr,
		ProviderID:  1,
		Backend:     be,
		Transport:   transport,
		Pool:        pool,
		ListenAddr:  addr,
	})
	require.NoError(t, p.Init(context.Background(), false, v, nil))

	go p.Start(context.Background())
	select {
	case <-p.WaitReady():
	case <-time.After(time.Second):
		t.Fatal("provider did not become ready")
	}
	t.Cleanup(func() {
		p.Stop(context.Background())
		pool.Close()
	})
	return p, transport
}

func TestHandleFromEndpointSeedsViaIdentity(t *testing.T) {
	_, transport := startTestProvider(t, "provider-1")

	h, err := handle.FromEndpoint(context.Background(), transport, "provider-1", 2, time.Second, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.Size())
}

func TestHandleFromEndpointInitUpdateFetchesFullView(t *testing.T) {
	_, transport := startTestProvider(t, "provider-2")

	h, err := handle.FromEndpoint(context.Background(), transport, "provider-2", 2, time.Second, handle.InitUpdate)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.Size())
	m := h.MemberAt(0)
	require.NotNil(t, m)
	require.Equal(t, "provider-2", m.Address)
}

func TestRefreshReturnsNoChangeWhenDigestMatches(t *testing.T) {
	_, transport := startTestProvider(t, "provider-3")

	h, err := handle.FromEndpoint(context.Background(), transport, "provider-3", 2, time.Second, handle.InitUpdate)
	require.NoError(t, err)
	before := h.Digest()

	require.NoError(t, h.Refresh(context.Background()))
	require.Equal(t, before, h.Digest())
}

func TestIdentityRejectsNonFlockPeer(t *testing.T) {
	transport := runtime.NewInMemTransport()
	ln, err := transport.Listen(context.Background(), "not-flock")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		_ = n
		conn.Write([]byte(`{"success":true,"data":"not-flock"}` + "\n"))
	}()

	_, err = handle.FromEndpoint(context.Background(), transport, "not-flock", 2, time.Second, 0)
	require.Error(t, err)
}
