package backend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopBackend struct{ Backend }

func TestRegisterAndLookup(t *testing.T) {
	name := "test-backend-register-and-lookup"
	Register(name, func() Backend { return noopBackend{} })

	f, ok := Lookup(name)
	require.True(t, ok)
	require.NotNil(t, f())

	_, ok = Lookup("does-not-exist")
	require.False(t, ok)
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	name := "test-backend-duplicate"
	Register(name, func() Backend { return noopBackend{} })
	require.Panics(t, func() {
		Register(name, func() Backend { return noopBackend{} })
	})
}

func TestNewUnknownBackendReturnsError(t *testing.T) {
	_, err := New("no-such-backend-type")
	require.Error(t, err)
}

func TestNewConstructsRegisteredBackend(t *testing.T) {
	name := "test-backend-new"
	Register(name, func() Backend { return noopBackend{} })
	be, err := New(name)
	require.NoError(t, err)
	require.NotNil(t, be)
}
