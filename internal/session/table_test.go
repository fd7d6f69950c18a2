package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func addr(s string) net.Addr {
	a, _ := net.ResolveUDPAddr("udp", s)
	return a
}

func TestOnInitAllocatesStablePlayerID(t *testing.T) {
	tab := NewTable(0)
	s1, err := tab.OnInit(addr("10.0.0.1:1"))
	require.NoError(t, err)
	require.Equal(t, "1", s1.PlayerID)
	require.Equal(t, PendingAssignAck, s1.State)

	s2, err := tab.OnInit(addr("10.0.0.2:1"))
	require.NoError(t, err)
	require.Equal(t, "2", s2.PlayerID)
}

func TestReInitDoesNotReallocateID(t *testing.T) {
	tab := NewTable(0)
	s1, _ := tab.OnInit(addr("10.0.0.1:1"))
	s2, _ := tab.OnInit(addr("10.0.0.1:1"))
	require.Same(t, s1, s2)
	require.Equal(t, "1", s2.PlayerID)
}

func TestAssignIDAckTransitionsToActive(t *testing.T) {
	tab := NewTable(0)
	tab.OnInit(addr("10.0.0.1:1"))
	tab.OnAssignIDAck(addr("10.0.0.1:1"))

	s, ok := tab.Get(addr("10.0.0.1:1"))
	require.True(t, ok)
	require.Equal(t, Active, s.State)
	require.Equal(t, int64(-1), s.LastAcked)
	require.Len(t, tab.Active(), 1)
}

func TestActiveNeverRegresses(t *testing.T) {
	tab := NewTable(0)
	tab.OnInit(addr("10.0.0.1:1"))
	tab.OnAssignIDAck(addr("10.0.0.1:1"))
	tab.OnSnapshotAck(addr("10.0.0.1:1"), 5)
	// A duplicate ack must not reset last_acked back to -1.
	tab.OnAssignIDAck(addr("10.0.0.1:1"))
	s, _ := tab.Get(addr("10.0.0.1:1"))
	require.Equal(t, Active, s.State)
	require.Equal(t, int64(5), s.LastAcked)
}

func TestCapacityRefusesNewEndpointButAllowsReInit(t *testing.T) {
	tab := NewTable(1)
	_, err := tab.OnInit(addr("10.0.0.1:1"))
	require.NoError(t, err)

	_, err = tab.OnInit(addr("10.0.0.2:1"))
	require.Error(t, err)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)

	// The existing endpoint can still re-INIT even while at capacity.
	_, err = tab.OnInit(addr("10.0.0.1:1"))
	require.NoError(t, err)
}

func TestSnapshotAckIsCumulativeMax(t *testing.T) {
	tab := NewTable(0)
	tab.OnInit(addr("10.0.0.1:1"))
	tab.OnAssignIDAck(addr("10.0.0.1:1"))

	tab.OnSnapshotAck(addr("10.0.0.1:1"), 10)
	tab.OnSnapshotAck(addr("10.0.0.1:1"), 3) // stale, must not regress
	s, _ := tab.Get(addr("10.0.0.1:1"))
	require.Equal(t, int64(10), s.LastAcked)
}

func TestMinAckedAcrossActiveSessions(t *testing.T) {
	tab := NewTable(0)
	tab.OnInit(addr("10.0.0.1:1"))
	tab.OnInit(addr("10.0.0.2:1"))
	tab.OnAssignIDAck(addr("10.0.0.1:1"))
	tab.OnAssignIDAck(addr("10.0.0.2:1"))
	tab.OnSnapshotAck(addr("10.0.0.1:1"), 10)
	tab.OnSnapshotAck(addr("10.0.0.2:1"), 4)

	min, ok := tab.MinAcked()
	require.True(t, ok)
	require.Equal(t, int64(4), min)
}

func TestMinAckedFalseWithNoActiveSessions(t *testing.T) {
	tab := NewTable(0)
	_, ok := tab.MinAcked()
	require.False(t, ok)
}
