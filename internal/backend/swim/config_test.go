package swim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/errs"
)

func TestDefaultConfigMatchesSpecTable(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Second, cfg.ProtocolPeriod)
	require.Equal(t, 200*time.Millisecond, cfg.PingTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.PingReqTimeout)
	require.Equal(t, 3, cfg.PingReqMembers)
	require.Equal(t, 5*time.Second, cfg.SuspicionTimeout)
}

func TestParseConfigOverlaysPartialOverride(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"ping_timeout_ms": 50}`))
	require.NoError(t, err)
	require.Equal(t, 50*time.Millisecond, cfg.PingTimeout)
	require.Equal(t, time.Second, cfg.ProtocolPeriod)
}

func TestParseConfigEmptyYieldsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigRejectsMalformedJSON(t *testing.T) {
	_, err := ParseConfig([]byte(`not json`))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestJSONRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingReqMembers = 5
	got, err := ParseConfig(cfg.JSON())
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
