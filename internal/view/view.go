// Package view implements the group view: a concurrent, ordered
// container of members and metadata with a rolling 64-bit content
// digest (spec.md §3, §4.1).
//
// A View is created empty via New, mutated only through its exported
// methods (direct field writes would break the digest invariant), and
// either Cleared or MoveInto'd before its owner is discarded.
package view

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/flockgroup/flock/internal/errs"
)

// Member is a (rank, provider_id, address) tuple identifying one
// participating endpoint. Extra carries backend-private state that is
// never serialized (the SWIM backend keeps its per-member state in its
// own map instead); Release, if set, is invoked with Extra when the
// member is removed.
type Member struct {
	Rank       uint64
	ProviderID uint16
	Address    string

	Extra   any
	Release func(any)
}

// key identifies a member independent of rank, for duplicate checks.
type memberKey struct {
	address    string
	providerID uint16
}

// View is the concurrent ordered container described by spec.md §3.
// Members are kept sorted ascending by Rank (unique); metadata is kept
// sorted ascending by Key (unique). digest is maintained incrementally
// as the XOR of per-entry hashes so that any content-equivalent view
// has an identical digest.
type View struct {
	mu       sync.Mutex
	members  []*Member
	metadata []metadataEntry
	digest   uint64
}

type metadataEntry struct {
	Key   string
	Value string
}

// New returns an empty view.
func New() *View {
	return &View{}
}

// Lock acquires the view's mutex. Every other exported method acquires
// the same (non-reentrant) mutex itself, so calling one of them while
// Lock is held deadlocks; Lock/Unlock only exclude other users of the
// view for a span of code that makes no further View calls.
func (v *View) Lock() { v.mu.Lock() }

// Unlock releases the view's mutex.
func (v *View) Unlock() { v.mu.Unlock() }

// Digest returns the current content digest.
func (v *View) Digest() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.digest
}

// Size is the group size as reported to clients: last member's rank+1,
// or 0 when empty. This is NOT the live member count (spec.md §4.1).
func (v *View) Size() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.members) == 0 {
		return 0
	}
	return v.members[len(v.members)-1].Rank + 1
}

// LiveCount is the number of live members in the sequence.
func (v *View) LiveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.members)
}

func memberHash(addr string, rank uint64, providerID uint16) uint64 {
	h := djb2(addr)
	h ^= foldUint64(rank)
	h ^= foldUint64(uint64(providerID))
	return h
}

func metadataHash(key, value string) uint64 {
	return djb2(key) ^ bits.RotateLeft64(djb2(value), 3)
}

// djb2 is Bernstein's hash, the ·33-rolled mix spec.md §3 names.
func djb2(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

// foldUint64 is the "byte-folded" mix spec.md §3 calls for: it takes a
// small integer (a rank or a provider_id) and spreads its bits across
// the full 64-bit width via a splitmix64-style finalizer, so that
// rank/provider_id don't simply cancel each other under XOR the way
// the raw integers would for adjacent values.
func foldUint64(n uint64) uint64 {
	n ^= n >> 30
	n *= 0xbf58476d1ce4e5b9
	n ^= n >> 27
	n *= 0x94d049bb133111eb
	n ^= n >> 31
	return n
}

// AddMember inserts addr/providerID in rank order, rejecting a
// duplicate (addr, providerID) pair or a duplicate rank.
func (v *View) AddMember(rank uint64, providerID uint16, addr string) (*Member, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, m := range v.members {
		if m.Rank == rank {
			return nil, fmt.Errorf("rank %d: %w", rank, errs.ErrRankUsed)
		}
		if m.Address == addr && m.ProviderID == providerID {
			return nil, fmt.Errorf("member %s/%d: %w", addr, providerID, errs.ErrInvalidArgs)
		}
	}

	idx := sort.Search(len(v.members), func(i int) bool {
		return v.members[i].Rank >= rank
	})
	m := &Member{Rank: rank, ProviderID: providerID, Address: addr}
	v.members = append(v.members, nil)
	copy(v.members[idx+1:], v.members[idx:])
	v.members[idx] = m
	v.digest ^= memberHash(addr, rank, providerID)
	return m, nil
}

// RemoveMember removes the exact member reference, invoking its
// release action (if any) and updating the digest. Returns false if
// ref is not present.
func (v *View) RemoveMember(ref *Member) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := -1
	for i, m := range v.members {
		if m == ref {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	m := v.members[idx]
	copy(v.members[idx:], v.members[idx+1:])
	v.members[len(v.members)-1] = nil
	v.members = v.members[:len(v.members)-1]
	v.digest ^= memberHash(m.Address, m.Rank, m.ProviderID)
	if m.Release != nil {
		m.Release(m.Extra)
	}
	return true
}

// FindMember returns the member with the given (addr, providerID), or
// nil if absent. Linear scan: membership order is by rank, not
// address, so an address lookup cannot binary-search the primary
// slice; callers on a hot path should maintain their own index instead.
func (v *View) FindMember(addr string, providerID uint16) *Member {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.findMemberLocked(addr, providerID)
}

func (v *View) findMemberLocked(addr string, providerID uint16) *Member {
	for _, m := range v.members {
		if m.Address == addr && m.ProviderID == providerID {
			return m
		}
	}
	return nil
}

// FindRank returns the member at the given rank via binary search, or
// nil if no member holds that rank.
func (v *View) FindRank(rank uint64) *Member {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := sort.Search(len(v.members), func(i int) bool {
		return v.members[i].Rank >= rank
	})
	if idx < len(v.members) && v.members[idx].Rank == rank {
		return v.members[idx]
	}
	return nil
}

// MemberAt returns the member at positional index, or nil if out of
// bounds.
func (v *View) MemberAt(index int) *Member {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index >= len(v.members) {
		return nil
	}
	return v.members[index]
}

// Iterate calls fn for every member in rank order while holding the
// view lock; fn must not re-enter the view.
func (v *View) Iterate(fn func(*Member) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.members {
		if !fn(m) {
			return
		}
	}
}

// Snapshot returns a lock-free-to-read copy of current member
// identities (address/providerID/rank only — not the *Member
// pointers), for the "snapshot-under-lock, act-unlocked" pattern
// (spec.md §5).
func (v *View) Snapshot() []Member {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Member, len(v.members))
	for i, m := range v.members {
		out[i] = Member{Rank: m.Rank, ProviderID: m.ProviderID, Address: m.Address}
	}
	return out
}

// AddMetadata inserts key/value sorted by key, or replaces the value
// of an existing key. Returns true if a new entry was inserted.
func (v *View) AddMetadata(key, value string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := sort.Search(len(v.metadata), func(i int) bool {
		return v.metadata[i].Key >= key
	})
	if idx < len(v.metadata) && v.metadata[idx].Key == key {
		old := v.metadata[idx]
		v.digest ^= metadataHash(old.Key, old.Value)
		v.metadata[idx].Value = value
		v.digest ^= metadataHash(key, value)
		return false
	}
	v.metadata = append(v.metadata, metadataEntry{})
	copy(v.metadata[idx+1:], v.metadata[idx:])
	v.metadata[idx] = metadataEntry{Key: key, Value: value}
	v.digest ^= metadataHash(key, value)
	return true
}

// RemoveMetadata removes key, returning false if it was absent.
func (v *View) RemoveMetadata(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := sort.Search(len(v.metadata), func(i int) bool {
		return v.metadata[i].Key >= key
	})
	if idx >= len(v.metadata) || v.metadata[idx].Key != key {
		return false
	}
	e := v.metadata[idx]
	copy(v.metadata[idx:], v.metadata[idx+1:])
	v.metadata = v.metadata[:len(v.metadata)-1]
	v.digest ^= metadataHash(e.Key, e.Value)
	return true
}

// FindMetadata returns the value for key and true, or ("", false).
func (v *View) FindMetadata(key string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx := sort.Search(len(v.metadata), func(i int) bool {
		return v.metadata[i].Key >= key
	})
	if idx < len(v.metadata) && v.metadata[idx].Key == key {
		return v.metadata[idx].Value, true
	}
	return "", false
}

// MetadataIterate calls fn for every (key, value) pair in key order
// while holding the view lock.
func (v *View) MetadataIterate(fn func(key, value string) bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.metadata {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// Clear empties the view; digest becomes zero.
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.members {
		if m.Release != nil {
			m.Release(m.Extra)
		}
	}
	v.members = nil
	v.metadata = nil
	v.digest = 0
}

// MoveInto transfers all content to dst (assumed empty) and empties
// the source, leaving it with digest zero.
func (v *View) MoveInto(dst *View) {
	if v == dst {
		return
	}
	v.mu.Lock()
	dst.mu.Lock()
	dst.members = v.members
	dst.metadata = v.metadata
	dst.digest = v.digest
	v.members = nil
	v.metadata = nil
	v.digest = 0
	dst.mu.Unlock()
	v.mu.Unlock()
}
