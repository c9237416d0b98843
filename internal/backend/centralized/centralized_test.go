package centralized

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/provider"
	"github.com/flockgroup/flock/internal/runtime"
	"github.com/flockgroup/flock/internal/view"
)

func TestRegisteredUnderName(t *testing.T) {
	f, ok := backend.Lookup(Name)
	require.True(t, ok)
	require.NotNil(t, f())
}

func TestInitAsPrimary(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "primary:7000")
	require.NoError(t, err)

	b := &Backend{}
	require.NoError(t, b.Init(context.Background(), backend.InitArgs{
		SelfAddress: "primary:7000", ProviderID: 1, InitialView: v,
	}))

	var seen *view.View
	require.NoError(t, b.GetView(func(got *view.View) { seen = got }))
	require.Same(t, v, seen)
}

func TestNonPrimaryWithoutTransportRejected(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "primary:7000")
	require.NoError(t, err)

	b := &Backend{}
	err = b.Init(context.Background(), backend.InitArgs{
		SelfAddress: "other:7001", ProviderID: 2, InitialView: v,
	})
	require.ErrorIs(t, err, errs.ErrInvalidArgs)
}

func TestNonPrimaryFetchesViaHandle(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "primary-addr")
	require.NoError(t, err)

	primaryBE, err := backend.New("static")
	require.NoError(t, err)

	transport := runtime.NewInMemTransport()
	pool := runtime.NewErrgroupPool(4)
	defer pool.Close()

	p := provider.New(provider.Config{
		SelfAddress: "primary-addr", ProviderID: 1,
		Backend: primaryBE, Transport: transport, Pool: pool, ListenAddr: "primary-addr",
	})
	require.NoError(t, p.Init(context.Background(), false, v, nil))
	go p.Start(context.Background())
	<-p.WaitReady()
	defer p.Stop(context.Background())

	nonPrimary := NewWithTransport(Deps{Transport: transport, DialTimeout: time.Second})
	require.NoError(t, nonPrimary.Init(context.Background(), backend.InitArgs{
		SelfAddress: "other-addr", ProviderID: 2, InitialView: v,
	}))

	var seen *view.View
	require.NoError(t, nonPrimary.GetView(func(got *view.View) { seen = got }))
	require.EqualValues(t, 1, seen.Size())
}
