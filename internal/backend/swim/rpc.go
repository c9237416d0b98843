package swim

import (
	"context"
	"encoding/json"

	"github.com/flockgroup/flock/internal/gossip"
	"github.com/flockgroup/flock/internal/rpcwire"
)

// wireEntry mirrors gossip.Entry's exported fields for the wire;
// transmissionCount is receiver-local and never crosses the wire.
type wireEntry struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	ProviderID  uint16 `json:"provider_id"`
	Incarnation uint64 `json:"incarnation"`
}

func toWire(entries []gossip.Entry) []wireEntry {
	out := make([]wireEntry, len(entries))
	for i, e := range entries {
		out[i] = wireEntry{Type: int(e.Type), Address: e.Address, ProviderID: e.ProviderID, Incarnation: e.Incarnation}
	}
	return out
}

func fromWire(entries []wireEntry) []gossip.Entry {
	out := make([]gossip.Entry, len(entries))
	for i, e := range entries {
		out[i] = gossip.Entry{Type: gossip.EventType(e.Type), Address: e.Address, ProviderID: e.ProviderID, Incarnation: e.Incarnation}
	}
	return out
}

// pingRequest/pingResponse are the PING wire DTOs (spec.md §4.7.6).
// SenderAddr/SenderProviderID are an (expansion, grounding only) addition:
// the literal table lists only "sender incarnation", but a responder
// reached over an anonymous socket connection has no other way to
// learn which member is refuting its own suspicion — see DESIGN.md.
type pingRequest struct {
	SenderAddr        string      `json:"sender_addr"`
	SenderProviderID  uint16      `json:"sender_provider_id"`
	SenderIncarnation uint64      `json:"sender_incarnation"`
	Gossip            []wireEntry `json:"gossip"`
}

type pingResponse struct {
	ResponderIncarnation uint64      `json:"responder_incarnation"`
	Gossip               []wireEntry `json:"gossip"`
}

type pingReqRequest struct {
	TargetAddr        string      `json:"target_addr"`
	TargetProviderID  uint16      `json:"target_provider_id"`
	SenderIncarnation uint64      `json:"sender_incarnation"`
	Gossip            []wireEntry `json:"gossip"`
}

type pingReqResponse struct {
	TargetResponded   bool        `json:"target_responded"`
	TargetIncarnation uint64      `json:"target_incarnation"`
	Gossip            []wireEntry `json:"gossip"`
}

type announceRequest struct {
	Type        int         `json:"type"` // gossip.Join or gossip.Leave
	Addr        string      `json:"addr"`
	ProviderID  uint16      `json:"provider_id"`
	Incarnation uint64      `json:"incarnation"`
	Gossip      []wireEntry `json:"gossip"`
}

type announceResponse struct{}

func (b *Backend) registerRPCs() {
	d := b.deps.Dispatcher
	if d == nil {
		return
	}
	d.Register(rpcwire.OpPing, b.handlePing)
	d.Register(rpcwire.OpPingReq, b.handlePingReq)
	d.Register(rpcwire.OpAnnounce, b.handleAnnounce)
}

func (b *Backend) handlePing(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req pingRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.applyGossipLocked(fromWire(req.Gossip))
	b.applyGossipLocked([]gossip.Entry{{
		Type: gossip.Alive, Address: req.SenderAddr, ProviderID: req.SenderProviderID, Incarnation: req.SenderIncarnation,
	}})
	out := b.gossipBuf.Gather(8)
	incarnation := b.selfIncarnation.Load()
	b.mu.Unlock()

	if m := b.deps.Metrics; m != nil {
		m.GossipEntriesSent.Add(float64(len(out)))
	}

	return json.Marshal(pingResponse{ResponderIncarnation: incarnation, Gossip: toWire(out)})
}

func (b *Backend) handlePingReq(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req pingReqRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.applyGossipLocked(fromWire(req.Gossip))
	b.mu.Unlock()

	responded, targetIncarnation := b.directPing(ctx, req.TargetAddr, req.TargetProviderID)

	b.mu.Lock()
	out := b.gossipBuf.Gather(8)
	b.mu.Unlock()

	if m := b.deps.Metrics; m != nil {
		m.GossipEntriesSent.Add(float64(len(out)))
	}

	return json.Marshal(pingReqResponse{TargetResponded: responded, TargetIncarnation: targetIncarnation, Gossip: toWire(out)})
}

func (b *Backend) handleAnnounce(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req announceRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.applyGossipLocked(fromWire(req.Gossip))
	b.applyGossipLocked([]gossip.Entry{{
		Type: gossip.EventType(req.Type), Address: req.Addr, ProviderID: req.ProviderID, Incarnation: req.Incarnation,
	}})
	b.mu.Unlock()

	return json.Marshal(announceResponse{})
}
