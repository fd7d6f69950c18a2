package client

import (
	"time"

	"github.com/gridclash/mlsp/internal/protocol"
)

// receiveLoop decodes and dispatches every inbound datagram from the
// server, polling with a short read deadline so it notices Halt
// promptly.
func (c *Client) receiveLoop() {
	buf := make([]byte, protocol.DefaultMaxPacketBytes*4)
	for {
		select {
		case <-c.group.HaltCh():
			return
		default:
		}

		c.tr.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := c.tr.ReadFrom(buf)
		if err != nil {
			continue
		}

		hdr, payload, ok := protocol.Decode(buf[:n])
		if !ok {
			c.met.DecodeDropsTotal.Inc()
			continue
		}

		c.mu.Lock()
		c.dispatch(hdr, payload)
		c.mu.Unlock()
	}
}

// renderDrainLoop pops the head of the render-delay buffer once it has
// aged past the configured render delay and applies it to the grid.
// This is a separate goroutine from the receiver but serializes on the
// same mutex, matching the "queue plus grid are each single-writer, or
// one coarse mutex" concurrency design.
func (c *Client) renderDrainLoop() {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.group.HaltCh():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.drainReady()
			c.mu.Unlock()
		}
	}
}

// watchdogLoop periodically checks whether a new snapshot has gone
// too long without arriving and, if so, emits SNAPSHOT_NACK.
func (c *Client) watchdogLoop() {
	ticker := time.NewTicker(c.cfg.NackTimeout() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.group.HaltCh():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.checkWatchdog()
			c.mu.Unlock()
		}
	}
}

// initResendLoop emits INIT on a fixed period until ASSIGN_ID is
// received, then exits.
func (c *Client) initResendLoop() {
	ticker := time.NewTicker(c.cfg.InitResend())
	defer ticker.Stop()

	c.sendInitLocked()
	for {
		select {
		case <-c.group.HaltCh():
			return
		case <-ticker.C:
			c.mu.Lock()
			assigned := c.playerID != ""
			c.mu.Unlock()
			if assigned {
				return
			}
			c.sendInitLocked()
		}
	}
}
