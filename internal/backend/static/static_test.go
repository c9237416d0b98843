package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/view"
)

func TestRegisteredUnderName(t *testing.T) {
	f, ok := backend.Lookup(Name)
	require.True(t, ok)
	require.NotNil(t, f())
}

func TestInitRequiresInitialView(t *testing.T) {
	b := &Backend{}
	err := b.Init(context.Background(), backend.InitArgs{})
	require.ErrorIs(t, err, errs.ErrInvalidArgs)
}

func TestGetViewReturnsInitialView(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "10.0.0.1:7000")
	require.NoError(t, err)

	b := &Backend{}
	require.NoError(t, b.Init(context.Background(), backend.InitArgs{InitialView: v}))

	var seen *view.View
	require.NoError(t, b.GetView(func(got *view.View) { seen = got }))
	require.Same(t, v, seen)
}

func TestMutatorsUnsupported(t *testing.T) {
	b := &Backend{}
	require.NoError(t, b.Init(context.Background(), backend.InitArgs{InitialView: view.New()}))

	require.ErrorIs(t, b.AddMetadata("k", "v"), errs.ErrUnsupported)
	require.ErrorIs(t, b.RemoveMetadata("k"), errs.ErrUnsupported)
}

func TestDestroyClearsView(t *testing.T) {
	v := view.New()
	_, err := v.AddMember(0, 1, "10.0.0.1:7000")
	require.NoError(t, err)

	b := &Backend{}
	require.NoError(t, b.Init(context.Background(), backend.InitArgs{InitialView: v}))
	require.NoError(t, b.Destroy(context.Background()))
	require.EqualValues(t, 0, v.Size())
}
