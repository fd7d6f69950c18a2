package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridclash/mlsp/internal/config"
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/protocol"
)

func testConfig(gridSize int) *config.Config {
	cfg := config.Default()
	cfg.GridSize = gridSize
	cfg.BroadcastPeriodMS = 5
	cfg.ReliableRetransmitMS = 5
	cfg.BaselineAdvanceCheckMS = 5
	cfg.MaxPacketBytes = 1200
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, netw *fakeNetwork, addr string) (*Server, *fakeTransport) {
	t.Helper()
	tr := netw.socket(addr)
	s := New(cfg, tr, logging.New("test-server", logging.LevelError), metrics.NewServer())
	return s, tr
}

// recvUntil reads packets off tr until one decodes to msgType or the
// deadline elapses, discarding anything else (e.g. interleaved
// SNAPSHOT traffic while waiting for an ASSIGN_ID).
func recvUntil(t *testing.T, tr *fakeTransport, msgType protocol.MessageType, timeout time.Duration) (protocol.Header, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 8192)
	for time.Now().Before(deadline) {
		tr.SetReadDeadline(deadline)
		n, _, err := tr.ReadFrom(buf)
		if err != nil {
			break
		}
		hdr, payload, ok := protocol.Decode(buf[:n])
		if !ok {
			continue
		}
		if hdr.Type == msgType {
			return hdr, payload
		}
	}
	require.FailNowf(t, "did not receive message", "wanted type %s within %s", msgType, timeout)
	return protocol.Header{}, nil
}

func sendJSON(t *testing.T, tr *fakeTransport, to *fakeTransport, msgType protocol.MessageType, snapshotID uint32, v interface{}) {
	t.Helper()
	buf, err := protocol.EncodeJSON(msgType, snapshotID, 1, uint64(time.Now().UnixMilli()), v, 1200)
	require.NoError(t, err)
	_, err = tr.WriteTo(buf, to.addr)
	require.NoError(t, err)
}

// joinAndActivate drives the INIT/ASSIGN_ID/ASSIGN_ID_ACK handshake for
// one simulated client and returns its assigned player id.
func joinAndActivate(t *testing.T, cliTr, srvTr *fakeTransport) string {
	t.Helper()
	sendJSON(t, cliTr, srvTr, protocol.MsgInit, 0, protocol.InitPayload{})
	_, payload := recvUntil(t, cliTr, protocol.MsgAssignID, time.Second)
	var assign protocol.AssignIDPayload
	require.NoError(t, json.Unmarshal(payload, &assign))
	sendJSON(t, cliTr, srvTr, protocol.MsgAssignIDAck, 0, protocol.AssignIDAckPayload{})
	return assign.ID
}

func sendAcquire(t *testing.T, cliTr, srvTr *fakeTransport, playerID string, row, col int, ts int64) {
	t.Helper()
	sendJSON(t, cliTr, srvTr, protocol.MsgAcquireReq, 0, protocol.AcquireReqPayload{
		ID: playerID, Cell: [2]int{row, col}, Timestamp: ts,
	})
}

func TestTwoPlayerEmptyGridEndsInGameOverWithLowestIDTieBreak(t *testing.T) {
	netw := newFakeNetwork()
	srv, srvTr := newTestServer(t, testConfig(2), netw, "127.0.0.1:21001")
	cli1 := netw.socket("127.0.0.1:21002")
	cli2 := netw.socket("127.0.0.1:21003")

	srv.Start()
	defer srv.Stop()

	p1 := joinAndActivate(t, cli1, srvTr)
	p2 := joinAndActivate(t, cli2, srvTr)
	require.Equal(t, "1", p1)
	require.Equal(t, "2", p2)

	// Each player claims two non-overlapping cells of the 2x2 grid.
	sendAcquire(t, cli1, srvTr, p1, 0, 0, 100)
	sendAcquire(t, cli1, srvTr, p1, 0, 1, 100)
	sendAcquire(t, cli2, srvTr, p2, 1, 0, 100)
	sendAcquire(t, cli2, srvTr, p2, 1, 1, 100)

	_, payload := recvUntil(t, cli1, protocol.MsgGameOver, 2*time.Second)
	var over protocol.GameOverPayload
	require.NoError(t, json.Unmarshal(payload, &over))
	require.Equal(t, "1", over.Winner)
	require.Equal(t, map[string]int{"1": 2, "2": 2}, over.Scoreboard)
}

func TestTieBreakByTimestampEarlierRequestWinsRegardlessOfArrivalOrder(t *testing.T) {
	netw := newFakeNetwork()
	srv, srvTr := newTestServer(t, testConfig(2), netw, "127.0.0.1:21011")
	cli1 := netw.socket("127.0.0.1:21012")
	cli2 := netw.socket("127.0.0.1:21013")

	srv.Start()
	defer srv.Stop()

	p1 := joinAndActivate(t, cli1, srvTr)
	p2 := joinAndActivate(t, cli2, srvTr)

	// Player 1's request arrives first but carries the later timestamp;
	// player 2's later-arriving request carries the earlier timestamp
	// and must win the cell.
	sendAcquire(t, cli1, srvTr, p1, 0, 0, 200)
	sendAcquire(t, cli2, srvTr, p2, 0, 0, 100)

	sendAcquire(t, cli1, srvTr, p1, 0, 1, 50)
	sendAcquire(t, cli2, srvTr, p2, 1, 0, 50)
	sendAcquire(t, cli1, srvTr, p1, 1, 1, 50)

	_, payload := recvUntil(t, cli1, protocol.MsgGameOver, 2*time.Second)
	var over protocol.GameOverPayload
	require.NoError(t, json.Unmarshal(payload, &over))
	require.Equal(t, 2, over.Scoreboard["1"])
	require.Equal(t, 2, over.Scoreboard["2"])
}

func TestLateJoinerReceivesFullSnapshotOfAlreadyClaimedCells(t *testing.T) {
	netw := newFakeNetwork()
	srv, srvTr := newTestServer(t, testConfig(3), netw, "127.0.0.1:21021")
	cli1 := netw.socket("127.0.0.1:21022")

	srv.Start()
	defer srv.Stop()

	p1 := joinAndActivate(t, cli1, srvTr)
	sendAcquire(t, cli1, srvTr, p1, 0, 0, 10)
	sendAcquire(t, cli1, srvTr, p1, 0, 1, 10)

	// Let the claims land and a delta go out before the second client joins.
	time.Sleep(50 * time.Millisecond)

	cli2 := netw.socket("127.0.0.1:21023")
	sendJSON(t, cli2, srvTr, protocol.MsgInit, 0, protocol.InitPayload{})
	_, payload := recvUntil(t, cli2, protocol.MsgSnapshot, time.Second)
	var snap protocol.SnapshotPayload
	require.NoError(t, json.Unmarshal(payload, &snap))
	require.True(t, snap.IsFull)
	require.GreaterOrEqual(t, len(snap.Grid), 2)
}

func TestSnapshotNackTriggersAnImmediateDelta(t *testing.T) {
	netw := newFakeNetwork()
	cfg := testConfig(3)
	cfg.BroadcastPeriodMS = 10_000 // effectively disable the periodic tick
	srv, srvTr := newTestServer(t, cfg, netw, "127.0.0.1:21031")
	cli1 := netw.socket("127.0.0.1:21032")

	srv.Start()
	defer srv.Stop()

	p1 := joinAndActivate(t, cli1, srvTr)

	// Drain the join-time full snapshot so the next SNAPSHOT observed
	// is the one the NACK provokes.
	_, payload := recvUntil(t, cli1, protocol.MsgSnapshot, time.Second)
	var full protocol.SnapshotPayload
	require.NoError(t, json.Unmarshal(payload, &full))
	require.True(t, full.IsFull)

	sendJSON(t, cli1, srvTr, protocol.MsgSnapshotAck, 0, protocol.SnapshotAckPayload{SnapshotID: 0})

	sendAcquire(t, cli1, srvTr, p1, 0, 0, 5)

	sendJSON(t, cli1, srvTr, protocol.MsgSnapshotNack, 0, protocol.SnapshotNackPayload{LastSnapshot: 0})

	_, payload = recvUntil(t, cli1, protocol.MsgSnapshot, time.Second)
	var snap protocol.SnapshotPayload
	require.NoError(t, json.Unmarshal(payload, &snap))
	require.False(t, snap.IsFull)
	require.Len(t, snap.Grid, 1)
}

func TestAssignIDIsResentUntilAcked(t *testing.T) {
	netw := newFakeNetwork()
	cfg := testConfig(2)
	cfg.AssignIDResendMS = 10
	srv, srvTr := newTestServer(t, cfg, netw, "127.0.0.1:21041")
	cli := netw.socket("127.0.0.1:21042")

	srv.Start()
	defer srv.Stop()

	sendJSON(t, cli, srvTr, protocol.MsgInit, 0, protocol.InitPayload{})
	_, p1 := recvUntil(t, cli, protocol.MsgAssignID, time.Second)

	// Without an ASSIGN_ID_ACK the server must keep resending the same
	// id on its own timer, not wait for another INIT.
	_, p2 := recvUntil(t, cli, protocol.MsgAssignID, time.Second)

	var a1, a2 protocol.AssignIDPayload
	require.NoError(t, json.Unmarshal(p1, &a1))
	require.NoError(t, json.Unmarshal(p2, &a2))
	require.Equal(t, a1.ID, a2.ID)
}

func TestEmptyDeltaTicksStillEmitSnapshotsWithContiguousIDs(t *testing.T) {
	netw := newFakeNetwork()
	srv, srvTr := newTestServer(t, testConfig(2), netw, "127.0.0.1:21051")
	cli := netw.socket("127.0.0.1:21052")

	srv.Start()
	defer srv.Stop()

	joinAndActivate(t, cli, srvTr)

	// With no mutations at all, the broadcaster must still emit empty
	// SNAPSHOTs whose ids step by exactly one.
	var prev protocol.Header
	seen := 0
	for seen < 3 {
		hdr, payload := recvUntil(t, cli, protocol.MsgSnapshot, time.Second)
		var snap protocol.SnapshotPayload
		require.NoError(t, json.Unmarshal(payload, &snap))
		if snap.IsFull {
			continue
		}
		require.Empty(t, snap.Grid)
		if seen > 0 {
			require.Equal(t, prev.SnapshotID+1, hdr.SnapshotID)
		}
		prev = hdr
		seen++
	}
}
