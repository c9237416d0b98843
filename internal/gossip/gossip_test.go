package gossip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGatherRespectsMaxTransmissions(t *testing.T) {
	b := New(4) // ceil(3*log2(4)) = 6
	require.Equal(t, 6, b.MaxTransmissions())

	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})

	count := 0
	for i := 0; i < 10; i++ {
		out := b.Gather(10)
		count += len(out)
	}
	require.Equal(t, 6, count)

	// further gathers return nothing once exhausted
	require.Empty(t, b.Gather(10))
}

func TestReplacementResetsCounterOnHigherIncarnation(t *testing.T) {
	b := New(1 << 20) // huge group => very high ceiling, so counters won't exhaust mid-test
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})
	for i := 0; i < 3; i++ {
		b.Gather(10)
	}
	// bump transmission count to 3, then replace with higher incarnation
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 2})
	out := b.Gather(10)
	require.Len(t, out, 1)
	require.EqualValues(t, 2, out[0].Incarnation)
	require.Equal(t, 1, out[0].TransmissionCount())
}

func TestPriorityAtEqualIncarnation(t *testing.T) {
	b := New(8)
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})
	b.Insert(Entry{Type: Suspect, Address: "a", ProviderID: 1, Incarnation: 1})
	out := b.Gather(10)
	require.Len(t, out, 1)
	require.Equal(t, Suspect, out[0].Type)

	// SUSPECT does not get downgraded back to ALIVE at equal incarnation
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})
	out = b.Gather(10)
	require.Len(t, out, 1)
	require.Equal(t, Suspect, out[0].Type)
}

func TestJoinAndLeaveAreStandaloneAnnouncements(t *testing.T) {
	b := New(8)
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})
	b.Insert(Entry{Type: Join, Address: "a", ProviderID: 1, Incarnation: 1})

	out := b.Gather(10)
	require.Len(t, out, 2)
}

func TestCleanupRemovesExhaustedEntries(t *testing.T) {
	b := New(2) // ceil(3*log2(2)) = 3
	b.Insert(Entry{Type: Alive, Address: "a", ProviderID: 1, Incarnation: 1})
	for i := 0; i < 3; i++ {
		b.Gather(10)
	}
	require.Equal(t, 1, b.Len())
	b.Cleanup()
	require.Equal(t, 0, b.Len())
}

func TestSetGroupSizeRecomputesCeiling(t *testing.T) {
	b := New(1)
	require.Equal(t, 0, b.MaxTransmissions()) // ceil(3*log2(1)) = 0
	b.SetGroupSize(8)
	require.Equal(t, 9, b.MaxTransmissions())
}
