// Package gossip implements the bounded gossip buffer of spec.md §4.3:
// at most one entry per (address, provider_id), each with a
// transmission-count ceiling recomputed from the current group size.
//
// DESIGN NOTES (spec.md §9) calls for "a singly-linked list with
// front-insertion... any container with O(1) insert, linear scan, and
// position-stable iteration during gather is acceptable." We use
// stdlib container/list: no pack example ships a bespoke list at this
// scale, and container/list is the idiomatic Go answer (see
// DESIGN.md).
package gossip

import (
	"container/list"
	"math"
	"sync"
)

// EventType is one of the five gossip entry kinds.
type EventType int

const (
	Alive EventType = iota
	Suspect
	Confirm
	Join
	Leave
)

func (t EventType) String() string {
	switch t {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	case Confirm:
		return "CONFIRM"
	case Join:
		return "JOIN"
	case Leave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// priority orders ALIVE < SUSPECT < CONFIRM for tie-break at equal
// incarnation (spec.md §4.3). JOIN/LEAVE never participate in this
// comparison — they are standalone and never replaced by it.
func (t EventType) priority() int {
	switch t {
	case Alive:
		return 0
	case Suspect:
		return 1
	case Confirm:
		return 2
	default:
		return -1
	}
}

// Entry is one buffered gossip event.
type Entry struct {
	Type        EventType
	Address     string
	ProviderID  uint16
	Incarnation uint64

	transmissionCount int
}

// TransmissionCount exposes the current send count, mainly for tests.
func (e Entry) TransmissionCount() int { return e.transmissionCount }

type memberKey struct {
	address    string
	providerID uint16
}

// Buffer is the bounded, mutex-guarded set of pending gossip events.
type Buffer struct {
	mu               sync.Mutex
	order            *list.List // *list.Element holds *Entry, oldest-inserted first
	byMember         map[memberKey][]*list.Element
	maxTransmissions int
}

// New returns an empty buffer sized for a group of size n (n<1 is
// treated as 1, per spec.md §4.3).
func New(n int) *Buffer {
	b := &Buffer{
		order:    list.New(),
		byMember: make(map[memberKey][]*list.Element),
	}
	b.maxTransmissions = maxTransmissionsFor(n)
	return b
}

func maxTransmissionsFor(n int) int {
	if n < 1 {
		n = 1
	}
	return int(math.Ceil(3 * math.Log2(float64(n))))
}

// SetGroupSize recomputes max_transmissions for existing and future
// entries.
func (b *Buffer) SetGroupSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxTransmissions = maxTransmissionsFor(n)
}

// Insert merges e into the buffer following spec.md §4.3's rules.
// JOIN and LEAVE entries are always appended as new, independent
// entries (they coexist with any ALIVE/SUSPECT/CONFIRM entry for the
// same member and are never replaced by this comparison).
func (b *Buffer) Insert(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := memberKey{address: e.Address, providerID: e.ProviderID}

	if e.Type == Join || e.Type == Leave {
		el := b.order.PushBack(&e)
		b.byMember[key] = append(b.byMember[key], el)
		return
	}

	for _, el := range b.byMember[key] {
		existing := el.Value.(*Entry)
		if existing.Type == Join || existing.Type == Leave {
			continue
		}
		if e.Incarnation > existing.Incarnation ||
			(e.Incarnation == existing.Incarnation && e.Type.priority() > existing.Type.priority()) {
			e.transmissionCount = 0
			*existing = e
		}
		return
	}

	el := b.order.PushBack(&e)
	b.byMember[key] = append(b.byMember[key], el)
}

// Gather returns up to max entries whose transmission count hasn't
// exhausted max_transmissions, in insertion order, incrementing each
// returned entry's counter. Entries are not removed.
func (b *Buffer) Gather(max int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, max)
	for el := b.order.Front(); el != nil && len(out) < max; el = el.Next() {
		e := el.Value.(*Entry)
		if e.transmissionCount >= b.maxTransmissions {
			continue
		}
		e.transmissionCount++
		out = append(out, *e)
	}
	return out
}

// Cleanup removes entries whose transmission count has reached
// max_transmissions.
func (b *Buffer) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var next *list.Element
	for el := b.order.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*Entry)
		if e.transmissionCount >= b.maxTransmissions {
			b.order.Remove(el)
			key := memberKey{address: e.Address, providerID: e.ProviderID}
			b.byMember[key] = removeElement(b.byMember[key], el)
			if len(b.byMember[key]) == 0 {
				delete(b.byMember, key)
			}
		}
	}
}

func removeElement(els []*list.Element, target *list.Element) []*list.Element {
	out := els[:0]
	for _, el := range els {
		if el != target {
			out = append(out, el)
		}
	}
	return out
}

// Len reports the number of buffered entries, mainly for metrics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// MaxTransmissions reports the current ceiling, mainly for tests.
func (b *Buffer) MaxTransmissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxTransmissions
}
