package codec

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/view"
)

func buildView(t *testing.T) *view.View {
	t.Helper()
	v := view.New()
	_, err := v.AddMember(0, 1, "10.0.0.1:7000")
	require.NoError(t, err)
	_, err = v.AddMember(1, 2, "10.0.0.2:7000")
	require.NoError(t, err)
	v.AddMetadata("region", "us-west")
	return v
}

func TestRoundTrip(t *testing.T) {
	v := buildView(t)
	s, err := ToString(v, "tcp", 42)
	require.NoError(t, err)

	decoded, err := FromString(s)
	require.NoError(t, err)
	require.Equal(t, "tcp", decoded.Transport)
	require.EqualValues(t, 42, decoded.Credentials)
	require.Equal(t, v.Digest(), decoded.View.Digest())
	require.Equal(t, v.LiveCount(), decoded.View.LiveCount())

	val, ok := decoded.View.FindMetadata("region")
	require.True(t, ok)
	require.Equal(t, "us-west", val)
}

func TestFromStringRejectsEmptyMembers(t *testing.T) {
	_, err := FromString(`{"transport":"tcp","members":[]}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestFromStringRejectsMissingMembers(t *testing.T) {
	_, err := FromString(`{"transport":"tcp"}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestFromStringRejectsBadProviderID(t *testing.T) {
	_, err := FromString(`{"members":[{"address":"a","provider_id":99999}]}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = FromString(`{"members":[{"address":"a","provider_id":-1}]}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestFromStringRejectsMissingAddress(t *testing.T) {
	_, err := FromString(`{"members":[{"provider_id":1}]}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestFromStringRejectsNonObjectMetadata(t *testing.T) {
	_, err := FromString(`{"members":[{"address":"a","provider_id":1}],"metadata":["x"]}`)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestWriteReadFileAtomic(t *testing.T) {
	v := buildView(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "group.json")

	require.NoError(t, WriteFile(path, v, "tcp", 1))
	decoded, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, v.Digest(), decoded.View.Digest())

	// overwrite leaves no .swp residue behind
	require.NoError(t, WriteFile(path, v, "tcp", 2))
	_, statErr := ReadFile(path + ".swp")
	require.Error(t, statErr)
}
