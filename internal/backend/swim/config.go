package swim

import (
	"encoding/json"
	"time"

	"github.com/flockgroup/flock/internal/errs"
)

// Config is the recognized option table of spec.md §4.7.1, published
// back through GetConfig verbatim plus the synthetic metadata entries
// __config__/__type__.
type Config struct {
	ProtocolPeriod  time.Duration
	PingTimeout     time.Duration
	PingReqTimeout  time.Duration
	PingReqMembers  int
	SuspicionTimeout time.Duration
}

// DefaultConfig returns spec.md §4.7.1's documented defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolPeriod:   1000 * time.Millisecond,
		PingTimeout:      200 * time.Millisecond,
		PingReqTimeout:   500 * time.Millisecond,
		PingReqMembers:   3,
		SuspicionTimeout: 5000 * time.Millisecond,
	}
}

type wireConfig struct {
	ProtocolPeriodMs  *int64 `json:"protocol_period_ms,omitempty"`
	PingTimeoutMs     *int64 `json:"ping_timeout_ms,omitempty"`
	PingReqTimeoutMs  *int64 `json:"ping_req_timeout_ms,omitempty"`
	PingReqMembers    *int   `json:"ping_req_members,omitempty"`
	SuspicionTimeoutMs *int64 `json:"suspicion_timeout_ms,omitempty"`
}

// ParseConfig overlays configJSON (any subset of recognized keys) onto
// DefaultConfig. An empty/nil configJSON yields the defaults.
func ParseConfig(configJSON []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(configJSON) == 0 {
		return cfg, nil
	}
	var w wireConfig
	if err := json.Unmarshal(configJSON, &w); err != nil {
		return Config{}, errs.ErrInvalidConfig
	}
	if w.ProtocolPeriodMs != nil {
		cfg.ProtocolPeriod = time.Duration(*w.ProtocolPeriodMs) * time.Millisecond
	}
	if w.PingTimeoutMs != nil {
		cfg.PingTimeout = time.Duration(*w.PingTimeoutMs) * time.Millisecond
	}
	if w.PingReqTimeoutMs != nil {
		cfg.PingReqTimeout = time.Duration(*w.PingReqTimeoutMs) * time.Millisecond
	}
	if w.PingReqMembers != nil {
		cfg.PingReqMembers = *w.PingReqMembers
	}
	if w.SuspicionTimeoutMs != nil {
		cfg.SuspicionTimeout = time.Duration(*w.SuspicionTimeoutMs) * time.Millisecond
	}
	return cfg, nil
}

// JSON renders cfg back to the wire shape GetConfig publishes.
func (cfg Config) JSON() []byte {
	w := wireConfig{
		ProtocolPeriodMs:   ms(cfg.ProtocolPeriod),
		PingTimeoutMs:      ms(cfg.PingTimeout),
		PingReqTimeoutMs:   ms(cfg.PingReqTimeout),
		PingReqMembers:     &cfg.PingReqMembers,
		SuspicionTimeoutMs: ms(cfg.SuspicionTimeout),
	}
	b, _ := json.Marshal(w)
	return b
}

func ms(d time.Duration) *int64 {
	v := int64(d / time.Millisecond)
	return &v
}
