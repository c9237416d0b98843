package swim

import (
	"time"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/gossip"
)

// applyGossipLocked applies each entry against b.states/b.v following
// spec.md §4.7.4's rules, re-broadcasting anything that changes local
// state. Callers must hold b.mu.
func (b *Backend) applyGossipLocked(entries []gossip.Entry) {
	for _, e := range entries {
		b.applyOneLocked(e)
	}
}

func (b *Backend) applyOneLocked(e gossip.Entry) {
	key := memberKey{address: e.Address, providerID: e.ProviderID}
	isSelf := e.Address == b.selfAddress && e.ProviderID == b.selfPID

	switch e.Type {
	case gossip.Join:
		if b.v.FindMember(e.Address, e.ProviderID) != nil {
			return
		}
		rank := b.nextRankLocked()
		b.v.AddMember(rank, e.ProviderID, e.Address)
		b.states[key] = &memberState{status: Alive, incarnation: e.Incarnation}
		b.gossipBuf.Insert(e)
		b.rebuildProbeOrderLocked()
		b.gossipBuf.SetGroupSize(b.v.LiveCount())
		b.notifyMemberLocked(backend.MemberJoined, e.Address, e.ProviderID)

	case gossip.Leave:
		if isSelf {
			return
		}
		if _, ok := b.states[key]; ok {
			b.gossipBuf.Insert(e)
		}
		b.removeMemberLocked(key, backend.MemberLeft)

	case gossip.Alive:
		if isSelf {
			// spec.md §4.7.4: a self-referencing ALIVE is not a
			// refutation trigger (only SUSPECT is) — ignore.
			return
		}
		st, ok := b.states[key]
		if !ok {
			return
		}
		if e.Incarnation > st.incarnation || (e.Incarnation == st.incarnation && st.status != Alive) {
			wasSuspected := st.status == Suspected
			st.status = Alive
			st.incarnation = e.Incarnation
			b.gossipBuf.Insert(e)
			if wasSuspected {
				if m := b.deps.Metrics; m != nil {
					m.SuspicionsCleared.Inc()
				}
			}
		}

	case gossip.Suspect:
		if isSelf {
			if e.Incarnation >= b.selfIncarnation.Load() {
				b.selfIncarnation.Store(e.Incarnation + 1)
				b.gossipBuf.Insert(gossip.Entry{Type: gossip.Alive, Address: b.selfAddress, ProviderID: b.selfPID, Incarnation: e.Incarnation + 1})
			}
			return
		}
		st, ok := b.states[key]
		if !ok {
			return
		}
		if e.Incarnation < st.incarnation {
			return
		}
		if st.status == Alive || e.Incarnation > st.incarnation {
			st.status = Suspected
			st.incarnation = e.Incarnation
			st.suspicionStart = time.Now()
			b.gossipBuf.Insert(e)
		}

	case gossip.Confirm:
		if isSelf {
			// spec.md §4.7.4: only SUSPECT referencing self triggers
			// refutation — a self-referencing CONFIRM is ignored.
			return
		}
		if _, ok := b.states[key]; !ok {
			return
		}
		b.gossipBuf.Insert(e)
		b.removeMemberLocked(key, backend.MemberDied)
		if m := b.deps.Metrics; m != nil {
			m.MembersConfirmedDead.Inc()
		}
	}
}

func (b *Backend) nextRankLocked() uint64 {
	return b.v.Size()
}

func (b *Backend) removeMemberLocked(key memberKey, kind backend.MemberUpdateKind) {
	m := b.v.FindMember(key.address, key.providerID)
	if m == nil {
		delete(b.states, key)
		return
	}
	b.v.RemoveMember(m)
	delete(b.states, key)
	b.rebuildProbeOrderLocked()
	b.gossipBuf.SetGroupSize(b.v.LiveCount())
	b.notifyMemberLocked(kind, key.address, key.providerID)
}
