package swim

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/flockgroup/flock/internal/backend"
	"github.com/flockgroup/flock/internal/gossip"
	"github.com/flockgroup/flock/internal/rpcwire"
	"github.com/flockgroup/flock/internal/view"
)

// run is the long-lived per-instance goroutine driving the protocol
// period of spec.md §4.7.3: one tick per b.cfg.ProtocolPeriod until
// Destroy closes b.stopCh.
func (b *Backend) run() {
	defer close(b.doneCh)

	b.mu.Lock()
	period := b.cfg.ProtocolPeriod
	b.mu.Unlock()

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-timer.C:
			b.tick()
			b.mu.Lock()
			period = b.cfg.ProtocolPeriod
			b.mu.Unlock()
			timer.Reset(period)
		}
	}
}

// tick runs one protocol period's seven steps (spec.md §4.7.3):
// suspicion sweep, gossip cleanup, probe target selection, direct
// ping, indirect probing on timeout, suspect transition on total
// failure, and advancing the round-robin probe cursor.
func (b *Backend) tick() {
	b.sweepSuspicions()
	b.gossipBuf.Cleanup()

	target, targetPID, ok := b.selectProbeTarget()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.pingTimeout())
	responded, _ := b.directPing(ctx, target, targetPID)
	cancel()
	if responded {
		return
	}

	if b.indirectPing(target, targetPID) {
		return
	}

	b.markSuspectedLocked(target, targetPID)
}

func (b *Backend) pingTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.PingTimeout
}

// sweepSuspicions promotes any member whose suspicion window has
// elapsed to CONFIRMED_DEAD (spec.md §4.7.2).
func (b *Backend) sweepSuspicions() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for key, st := range b.states {
		if st.status != Suspected {
			continue
		}
		if now.Sub(st.suspicionStart) < b.cfg.SuspicionTimeout {
			continue
		}
		e := gossip.Entry{Type: gossip.Confirm, Address: key.address, ProviderID: key.providerID, Incarnation: st.incarnation}
		b.gossipBuf.Insert(e)
		b.removeMemberLocked(key, backend.MemberDied)
		if m := b.deps.Metrics; m != nil {
			m.MembersConfirmedDead.Inc()
		}
	}
}

// selectProbeTarget advances the round-robin cursor (spec.md §4.7.3)
// to the next live, non-self, non-dead member.
func (b *Backend) selectProbeTarget() (addr string, providerID uint16, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.v.LiveCount()
	if n <= 1 {
		return "", 0, false
	}
	if len(b.probeOrder) != n {
		b.rebuildProbeOrderLocked()
	}

	for i := 0; i < n; i++ {
		if b.probeIdx >= len(b.probeOrder) {
			b.rebuildProbeOrderLocked()
		}
		idx := b.probeOrder[b.probeIdx]
		b.probeIdx++
		if b.probeIdx >= len(b.probeOrder) {
			b.rebuildProbeOrderLocked()
		}
		m := b.v.MemberAt(idx)
		if m == nil {
			continue
		}
		if m.Address == b.selfAddress && m.ProviderID == b.selfPID {
			continue
		}
		st, exists := b.states[memberKey{address: m.Address, providerID: m.ProviderID}]
		if !exists || st.status == ConfirmedDead {
			continue
		}
		return m.Address, m.ProviderID, true
	}
	return "", 0, false
}

// directPing issues a PING RPC to (addr, providerID), returning
// whether it responded within the configured timeout and its reported
// incarnation.
func (b *Backend) directPing(ctx context.Context, addr string, providerID uint16) (bool, uint64) {
	if b.deps.Transport == nil {
		return false, 0
	}

	b.mu.Lock()
	gossipOut := b.gossipBuf.Gather(8)
	selfInc := b.selfIncarnation.Load()
	b.mu.Unlock()

	if m := b.deps.Metrics; m != nil {
		m.ProbesSent.Inc()
		m.GossipEntriesSent.Add(float64(len(gossipOut)))
	}

	dialCtx, cancel := context.WithTimeout(ctx, b.dialTimeout())
	defer cancel()
	caller, err := rpcwire.Dial(dialCtx, b.deps.Transport, addr, b.dialTimeout())
	if err != nil {
		if m := b.deps.Metrics; m != nil {
			m.ProbesTimedOut.Inc()
		}
		return false, 0
	}
	defer caller.Close()

	var resp pingResponse
	err = caller.Call(rpcwire.OpPing, pingRequest{
		SenderAddr: b.selfAddress, SenderProviderID: b.selfPID,
		SenderIncarnation: selfInc, Gossip: toWire(gossipOut),
	}, &resp)
	if err != nil {
		if m := b.deps.Metrics; m != nil {
			m.ProbesTimedOut.Inc()
		}
		return false, 0
	}

	b.mu.Lock()
	b.applyGossipLocked(fromWire(resp.Gossip))
	b.applyOneLocked(gossip.Entry{Type: gossip.Alive, Address: addr, ProviderID: providerID, Incarnation: resp.ResponderIncarnation})
	b.mu.Unlock()

	return true, resp.ResponderIncarnation
}

func (b *Backend) dialTimeout() time.Duration {
	if b.deps.DialTimeout > 0 {
		return b.deps.DialTimeout
	}
	return b.pingTimeout()
}

// indirectPing asks up to cfg.PingReqMembers other members to probe
// target on our behalf (spec.md §4.7.3's PING-REQ fallback), returning
// true if any reports success within PingReqTimeout.
func (b *Backend) indirectPing(target string, targetPID uint16) bool {
	if b.deps.Transport == nil {
		return false
	}

	helpers := b.chooseIndirectHelpers(target, targetPID)
	if len(helpers) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PingReqTimeout)
	defer cancel()

	var g errgroup.Group
	results := make(chan bool, len(helpers))
	for _, h := range helpers {
		h := h
		g.Go(func() error {
			results <- b.pingReqVia(ctx, h, target, targetPID)
			return nil
		})
	}
	go func() { g.Wait(); close(results) }()

	for ok := range results {
		if ok {
			return true
		}
	}
	return false
}

func (b *Backend) chooseIndirectHelpers(target string, targetPID uint16) []view.Member {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := b.v.Snapshot()
	var candidates []view.Member
	for _, m := range snap {
		if m.Address == b.selfAddress && m.ProviderID == b.selfPID {
			continue
		}
		if m.Address == target && m.ProviderID == targetPID {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) > b.cfg.PingReqMembers {
		candidates = candidates[:b.cfg.PingReqMembers]
	}
	return candidates
}

func (b *Backend) pingReqVia(ctx context.Context, helper view.Member, target string, targetPID uint16) bool {
	if m := b.deps.Metrics; m != nil {
		m.IndirectProbes.Inc()
	}

	var resp pingReqResponse
	op := func() error {
		caller, err := rpcwire.Dial(ctx, b.deps.Transport, helper.Address, b.dialTimeout())
		if err != nil {
			return err
		}
		defer caller.Close()

		b.mu.Lock()
		gossipOut := b.gossipBuf.Gather(8)
		selfInc := b.selfIncarnation.Load()
		b.mu.Unlock()

		if m := b.deps.Metrics; m != nil {
			m.GossipEntriesSent.Add(float64(len(gossipOut)))
		}

		return caller.Call(rpcwire.OpPingReq, pingReqRequest{
			TargetAddr: target, TargetProviderID: targetPID,
			SenderIncarnation: selfInc, Gossip: toWire(gossipOut),
		}, &resp)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return false
	}

	b.mu.Lock()
	b.applyGossipLocked(fromWire(resp.Gossip))
	if resp.TargetResponded {
		b.applyOneLocked(gossip.Entry{Type: gossip.Alive, Address: target, ProviderID: targetPID, Incarnation: resp.TargetIncarnation})
	}
	b.mu.Unlock()

	return resp.TargetResponded
}

// markSuspectedLocked transitions target to SUSPECTED after both
// direct and indirect probes fail (spec.md §4.7.2/§4.7.3), gossiping a
// SUSPECT that carries the member's cached incarnation unchanged.
func (b *Backend) markSuspectedLocked(target string, targetPID uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := memberKey{address: target, providerID: targetPID}
	st, ok := b.states[key]
	if !ok || st.status != Alive {
		return
	}
	st.status = Suspected
	st.suspicionStart = time.Now()
	b.gossipBuf.Insert(gossip.Entry{Type: gossip.Suspect, Address: target, ProviderID: targetPID, Incarnation: st.incarnation})
	if m := b.deps.Metrics; m != nil {
		m.SuspicionsRaised.Inc()
	}
}

// announce sends entry to up to ceil(3*log2(n)) random current
// members via ANNOUNCE (spec.md §4.7.5), used for JOIN at init and
// LEAVE at Destroy — the two standalone events the gossip buffer never
// folds into an ALIVE/SUSPECT/CONFIRM comparison.
func (b *Backend) announce(ctx context.Context, entry gossip.Entry) {
	b.mu.Lock()
	snap := b.v.Snapshot()
	n := announceFanout(b.v.LiveCount())
	b.mu.Unlock()

	targets := pickRandomMembers(snap, b.selfAddress, b.selfPID, n)

	var g errgroup.Group
	for _, m := range targets {
		m := m
		g.Go(func() error {
			b.announceOne(ctx, m, entry)
			return nil
		})
	}
	g.Wait()
}

func (b *Backend) announceOne(ctx context.Context, m view.Member, entry gossip.Entry) {
	caller, err := rpcwire.Dial(ctx, b.deps.Transport, m.Address, b.dialTimeout())
	if err != nil {
		return
	}
	defer caller.Close()
	_ = caller.Call(rpcwire.OpAnnounce, announceRequest{
		Type: int(entry.Type), Addr: entry.Address, ProviderID: entry.ProviderID, Incarnation: entry.Incarnation,
	}, &announceResponse{})
}

// announceFanout is ceil(3*log2(n)), the same ceiling gossip.Buffer
// uses for transmission counts (spec.md §4.3, §4.7.5).
func announceFanout(n int) int {
	if n < 1 {
		n = 1
	}
	return int(math.Ceil(3 * math.Log2(float64(n))))
}

func pickRandomMembers(members []view.Member, selfAddr string, selfPID uint16, n int) []view.Member {
	var pool []view.Member
	for _, m := range members {
		if m.Address == selfAddr && m.ProviderID == selfPID {
			continue
		}
		pool = append(pool, m)
	}
	order := shuffledIndices(len(pool))
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]view.Member, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pool[order[i]])
	}
	return out
}
