// Package metrics instruments probe, suspicion, gossip, and RPC
// activity with github.com/prometheus/client_golang (a pack
// dependency, grounded on
// orbas1-Synnergy/synnergy-network/core/system_health_logging.go's
// HealthLogger, which keeps a private prometheus.Registry and a set
// of named gauges/counters alongside its logger).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is a per-provider collection of counters and gauges. A new
// one is created per Provider instance rather than using the global
// default registry, so multiple groups in one process never collide
// on metric names.
type Registry struct {
	reg *prometheus.Registry

	GroupSize       prometheus.Gauge
	LiveCount       prometheus.Gauge
	ProbesSent      prometheus.Counter
	ProbesTimedOut  prometheus.Counter
	IndirectProbes  prometheus.Counter
	SuspicionsRaised prometheus.Counter
	SuspicionsCleared prometheus.Counter
	MembersConfirmedDead prometheus.Counter
	GossipEntriesSent   prometheus.Counter
	RPCRequestsTotal    *prometheus.CounterVec
	RPCDuration         *prometheus.HistogramVec
	DigestRecomputes    prometheus.Counter
}

// New builds a Registry with every metric registered under the given
// namespace (typically the provider's group name), so two groups in
// one process don't collide.
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		GroupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "group_size", Help: "Group size: last member's rank + 1.",
		}),
		LiveCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "live_count", Help: "Number of members in the view.",
		}),
		ProbesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_sent_total", Help: "Direct PING probes sent.",
		}),
		ProbesTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_timed_out_total", Help: "Direct PING probes that timed out.",
		}),
		IndirectProbes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "indirect_probes_total", Help: "PING-REQ relays issued.",
		}),
		SuspicionsRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "suspicions_raised_total", Help: "Members moved to suspected state.",
		}),
		SuspicionsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "suspicions_cleared_total", Help: "Suspicions refuted before timeout.",
		}),
		MembersConfirmedDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "members_confirmed_dead_total", Help: "Members removed as dead, by local suspicion timeout or gossiped CONFIRM.",
		}),
		GossipEntriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gossip_entries_sent_total", Help: "Gossip entries piggybacked onto outbound RPCs.",
		}),
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rpc_requests_total", Help: "RPC calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rpc_duration_seconds", Help: "RPC round-trip latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		DigestRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "digest_recomputes_total", Help: "View digest recomputations.",
		}),
	}
	reg.MustRegister(
		r.GroupSize, r.LiveCount, r.ProbesSent, r.ProbesTimedOut, r.IndirectProbes,
		r.SuspicionsRaised, r.SuspicionsCleared, r.MembersConfirmedDead,
		r.GossipEntriesSent, r.RPCRequestsTotal, r.RPCDuration, r.DigestRecomputes,
	)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
