package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/errs"
)

func TestAddFindRemoveMember(t *testing.T) {
	v := New()
	m, err := v.AddMember(0, 1, "10.0.0.1:7000")
	require.NoError(t, err)
	require.NotNil(t, m)

	found := v.FindMember("10.0.0.1:7000", 1)
	require.Same(t, m, found)

	require.True(t, v.RemoveMember(m))
	require.Nil(t, v.FindMember("10.0.0.1:7000", 1))
}

func TestAddMemberRejectsDuplicateRankAndIdentity(t *testing.T) {
	v := New()
	_, err := v.AddMember(0, 1, "a")
	require.NoError(t, err)

	_, err = v.AddMember(0, 2, "b")
	require.ErrorIs(t, err, errs.ErrRankUsed)

	_, err = v.AddMember(1, 1, "a")
	require.ErrorIs(t, err, errs.ErrInvalidArgs)
}

func TestMembersStayRankOrdered(t *testing.T) {
	v := New()
	ranks := []uint64{5, 1, 3, 0, 4, 2}
	for i, r := range ranks {
		_, err := v.AddMember(r, uint16(i), "addr")
		require.NoError(t, err)
	}
	var last int64 = -1
	v.Iterate(func(m *Member) bool {
		require.Greater(t, int64(m.Rank), last)
		last = int64(m.Rank)
		return true
	})
}

func TestDigestIsXORofEntryHashesAndZeroAfterClear(t *testing.T) {
	v := New()
	m1, _ := v.AddMember(0, 1, "a")
	m2, _ := v.AddMember(1, 2, "b")
	v.AddMetadata("k1", "v1")
	v.AddMetadata("k2", "v2")

	expect := memberHash("a", 0, 1) ^ memberHash("b", 1, 2) ^
		metadataHash("k1", "v1") ^ metadataHash("k2", "v2")
	require.Equal(t, expect, v.Digest())

	v.RemoveMember(m1)
	v.RemoveMember(m2)
	v.RemoveMetadata("k1")
	v.RemoveMetadata("k2")
	require.Zero(t, v.Digest())
}

func TestAddRemoveRoundTripIsZeroDigestFromEmpty(t *testing.T) {
	v := New()
	m, _ := v.AddMember(0, 9, "x")
	v.RemoveMember(m)
	require.Zero(t, v.Digest())
}

func TestMetadataReplaceUpdatesDigest(t *testing.T) {
	v := New()
	v.AddMetadata("k", "v1")
	d1 := v.Digest()
	v.AddMetadata("k", "v2")
	d2 := v.Digest()
	require.NotEqual(t, d1, d2)

	want := metadataHash("k", "v2")
	require.Equal(t, want, d2)
}

func TestMetadataKeyValueOrderMatters(t *testing.T) {
	require.NotEqual(t, metadataHash("a", "b"), metadataHash("b", "a"))
}

func TestSizeVsLiveCount(t *testing.T) {
	v := New()
	require.EqualValues(t, 0, v.Size())
	require.Equal(t, 0, v.LiveCount())

	v.AddMember(0, 0, "a")
	v.AddMember(5, 0, "b")
	require.EqualValues(t, 6, v.Size())
	require.Equal(t, 2, v.LiveCount())
}

func TestMoveIntoEmptiesSource(t *testing.T) {
	src := New()
	src.AddMember(0, 0, "a")
	src.AddMetadata("k", "v")
	dgst := src.Digest()

	dst := New()
	src.MoveInto(dst)

	require.Zero(t, src.Digest())
	require.Equal(t, 0, src.LiveCount())
	require.Equal(t, dgst, dst.Digest())
	require.Equal(t, 1, dst.LiveCount())
}

func TestReleaseHookInvokedOnRemove(t *testing.T) {
	v := New()
	m, _ := v.AddMember(0, 0, "a")
	released := false
	m.Extra = 42
	m.Release = func(extra any) {
		released = true
		require.Equal(t, 42, extra)
	}
	v.RemoveMember(m)
	require.True(t, released)
}
