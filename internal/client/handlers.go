package client

import (
	"encoding/json"
	"time"

	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/protocol"
	"github.com/gridclash/mlsp/internal/state"
	"github.com/gridclash/mlsp/internal/wire"
)

// dispatch handles one decoded inbound packet. Called with c.mu held.
func (c *Client) dispatch(hdr protocol.Header, payload []byte) {
	switch hdr.Type {
	case protocol.MsgAssignID:
		var p protocol.AssignIDPayload
		if json.Unmarshal(payload, &p) == nil {
			c.handleAssignID(p)
		}
	case protocol.MsgSnapshot:
		var p protocol.SnapshotPayload
		if json.Unmarshal(payload, &p) == nil {
			c.handleSnapshot(hdr.SnapshotID, p)
		}
	case protocol.MsgAcquireEvent:
		var p protocol.AcquireEventPayload
		if json.Unmarshal(payload, &p) == nil {
			c.handleAcquireEvent(p)
		}
	case protocol.MsgGameOver:
		var p protocol.GameOverPayload
		if json.Unmarshal(payload, &p) == nil {
			c.handleGameOver(p)
		}
	}
}

func (c *Client) handleAssignID(p protocol.AssignIDPayload) {
	if c.playerID == "" {
		c.playerID = p.ID
	}
	c.send(protocol.MsgAssignIDAck, 0, protocol.AssignIDAckPayload{})
}

func (c *Client) handleSnapshot(snapshotID uint32, p protocol.SnapshotPayload) {
	if int64(snapshotID) <= c.latestApplied {
		return
	}

	total, index := p.Chunks()
	c.send(protocol.MsgSnapshotAck, snapshotID, protocol.SnapshotAckPayload{SnapshotID: snapshotID})

	merged := p.Grid
	isFull, serverTimeMS := p.IsFull, p.Timestamp
	if total > 1 {
		r, ok := c.reassemblies[snapshotID]
		if !ok {
			r = &reassembly{total: total, isFull: p.IsFull, serverTimeMS: p.Timestamp, chunks: make(map[int]map[string]protocol.WireCell)}
			c.reassemblies[snapshotID] = r
		}
		r.chunks[index] = p.Grid
		if !r.complete() {
			return
		}
		merged = r.merge()
		isFull, serverTimeMS = r.isFull, r.serverTimeMS
		delete(c.reassemblies, snapshotID)
	}

	c.latestApplied = int64(snapshotID)
	for id := range c.reassemblies {
		if int64(id) <= c.latestApplied {
			delete(c.reassemblies, id)
		}
	}
	now := time.Now()
	c.observeLatency(serverTimeMS, now)
	c.lastRecvAt = now
	if c.firstSnapshotAt.IsZero() {
		c.firstSnapshotAt = now
	}

	c.buffer = append(c.buffer, bufEntry{
		snapshotID: snapshotID,
		receivedAt: now,
		isFull:     isFull,
		cells:      wire.FromWireGrid(merged),
	})
	c.met.RenderBufferDepth.Set(float64(len(c.buffer)))
}

func (c *Client) observeLatency(serverTimeMS int64, recvAt time.Time) {
	latencyMS := float64(recvAt.UnixMilli() - serverTimeMS)
	c.met.SnapshotLatencyMS.Observe(latencyMS)
	if c.haveLatency {
		metrics.ObserveJitter(c.met.SnapshotJitterMS, c.prevLatencyMS, latencyMS)
	}
	c.prevLatencyMS = latencyMS
	c.haveLatency = true
}

func (c *Client) handleAcquireEvent(p protocol.AcquireEventPayload) {
	cell := state.Coord{Row: p.Cell[0], Col: p.Cell[1]}
	if c.grid.InBounds(cell) {
		current, _ := c.grid.Get(cell)
		c.grid.Set(cell, state.Cell{State: state.Acquired, Owner: p.Owner, Timestamp: current.Timestamp})
		c.sink.GridUpdated(c.grid)
	}
	c.send(protocol.MsgAcquireAck, 0, protocol.AcquireAckPayload{EventID: p.EventID})
}

func (c *Client) handleGameOver(p protocol.GameOverPayload) {
	c.flushBuffer()
	if !c.gameOver {
		c.gameOver = true
		c.sink.GameOver(p.Winner, p.Scoreboard)
	}
}

// flushBuffer applies every buffered entry immediately, regardless of
// how long it has aged: the stream is over, so there is no jitter
// left to absorb. Called with c.mu held.
func (c *Client) flushBuffer() {
	for _, entry := range c.buffer {
		c.apply(entry)
	}
	c.buffer = nil
	c.met.RenderBufferDepth.Set(0)
}

// drainReady applies every buffered entry whose render delay has
// elapsed, oldest first. Called with c.mu held.
func (c *Client) drainReady() {
	now := time.Now()
	i := 0
	for ; i < len(c.buffer); i++ {
		if now.Sub(c.buffer[i].receivedAt) < c.cfg.RenderDelay() {
			break
		}
		c.apply(c.buffer[i])
	}
	if i > 0 {
		c.buffer = c.buffer[i:]
	}
	c.met.RenderBufferDepth.Set(float64(len(c.buffer)))
}

// apply mutates the grid in place for one buffered snapshot entry. A
// full snapshot resets every cell to UNCLAIMED first (in place, never
// replacing the map, so any reference the render sink holds stays
// valid) and then applies the supplied cells.
func (c *Client) apply(entry bufEntry) {
	if entry.isFull {
		c.grid.ResetInPlace()
	}
	for coord, cell := range entry.cells {
		if c.grid.InBounds(coord) {
			c.grid.Set(coord, cell)
		}
	}
	c.sink.GridUpdated(c.grid)
}

// checkWatchdog emits SNAPSHOT_NACK if too long has passed since the
// last accepted snapshot and no NACK has been sent in the last
// broadcast period. Called with c.mu held.
func (c *Client) checkWatchdog() {
	if c.firstSnapshotAt.IsZero() || c.gameOver {
		return
	}
	now := time.Now()
	if now.Sub(c.lastRecvAt) <= c.cfg.NackTimeout() {
		return
	}
	if now.Sub(c.lastNackAt) <= c.cfg.BroadcastPeriod() {
		return
	}
	c.lastNackAt = now
	c.met.NackTotal.Inc()
	c.send(protocol.MsgSnapshotNack, 0, protocol.SnapshotNackPayload{LastSnapshot: uint32(c.latestApplied)})
}

func (c *Client) sendInitLocked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send(protocol.MsgInit, 0, protocol.InitPayload{})
}

// SubmitAcquire sends an ACQUIRE_REQ on behalf of a player action
// (driven by a UI or a test harness; this package has no input
// surface of its own).
func (c *Client) SubmitAcquire(row, col int, ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send(protocol.MsgAcquireReq, 0, protocol.AcquireReqPayload{
		ID: c.playerID, Cell: [2]int{row, col}, Timestamp: ts,
	})
}

// send encodes and transmits one packet to the server. Assumes c.mu is
// already held. Transport/encode failures are logged and suppressed,
// never retried inline. INIT is resent by its own loop, and each ack
// is sent again whenever the server resends what it acknowledges; a
// lost ACQUIRE_REQ is not resent.
func (c *Client) send(msgType protocol.MessageType, snapshotID uint32, v interface{}) {
	c.seq++
	buf, err := protocol.EncodeJSON(msgType, snapshotID, c.seq, uint64(time.Now().UnixMilli()), v, c.cfg.MaxPacketBytes)
	if err != nil {
		c.log.Error("oversize outbound packet", "type", msgType.String(), "err", err)
		return
	}
	if _, err := c.tr.WriteTo(buf, c.server); err != nil {
		c.log.Debug("send failed", "err", err)
		return
	}
	c.log.Debug("sent packet", "type", msgType.String(), "seq", c.seq)
}
