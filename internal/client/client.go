// Package client implements the client-side pipeline: join handshake,
// chunk reassembly, ordering filter, render-delay buffer, reliable
// event application, and the NACK watchdog.
package client

import (
	"net"
	"sync"
	"time"

	"github.com/gridclash/mlsp/internal/config"
	"github.com/gridclash/mlsp/internal/lifecycle"
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/protocol"
	"github.com/gridclash/mlsp/internal/render"
	"github.com/gridclash/mlsp/internal/state"
)

// Transport is the subset of net.PacketConn the client needs.
type Transport interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// reassembly tracks the in-flight chunks of one multi-datagram
// SNAPSHOT, keyed by the snapshot id every chunk shares.
type reassembly struct {
	total        int
	isFull       bool
	serverTimeMS int64
	chunks       map[int]map[string]protocol.WireCell
}

func (r *reassembly) complete() bool {
	return len(r.chunks) == r.total
}

func (r *reassembly) merge() map[string]protocol.WireCell {
	out := make(map[string]protocol.WireCell)
	for _, part := range r.chunks {
		for k, v := range part {
			out[k] = v
		}
	}
	return out
}

// bufEntry is one render-delay buffer entry awaiting its delay to
// elapse before being applied to the grid.
type bufEntry struct {
	snapshotID uint32
	receivedAt time.Time
	isFull     bool
	cells      map[state.Coord]state.Cell
}

// Client owns all client-side state. The grid and reassembly/buffer
// state are mutated only by the receiver and the render-delay drain
// worker, both serialized behind mu, per the single-coarse-mutex-or-
// single-writer concurrency design.
type Client struct {
	cfg    *config.Config
	server net.Addr
	tr     Transport
	log    *logging.Sink
	met    *metrics.Client
	sink   render.Sink

	group *lifecycle.Group

	mu              sync.Mutex
	grid            *state.Grid
	playerID        string
	latestApplied   int64 // -1 until the first SNAPSHOT is accepted
	reassemblies    map[uint32]*reassembly
	buffer          []bufEntry
	firstSnapshotAt time.Time
	lastRecvAt      time.Time
	lastNackAt      time.Time
	prevLatencyMS   float64
	haveLatency     bool
	gameOver        bool
	seq             uint32
}

// New constructs a Client bound to serverAddr. cfg.GridSize must match
// the server's configured grid dimension.
func New(cfg *config.Config, serverAddr net.Addr, tr Transport, log *logging.Sink, met *metrics.Client, sink render.Sink) *Client {
	return &Client{
		cfg:           cfg,
		server:        serverAddr,
		tr:            tr,
		log:           log,
		met:           met,
		sink:          sink,
		group:         lifecycle.NewGroup(),
		grid:          state.NewGrid(cfg.GridSize),
		latestApplied: -1,
		reassemblies:  make(map[uint32]*reassembly),
	}
}

// Start launches the four client loops.
func (c *Client) Start() {
	c.group.Go(c.receiveLoop)
	c.group.Go(c.renderDrainLoop)
	c.group.Go(c.watchdogLoop)
	c.group.Go(c.initResendLoop)
}

// Stop signals every loop to halt and waits for them to exit.
func (c *Client) Stop() {
	c.group.Halt()
	c.group.Wait()
}

// Finished reports whether the client has observed GAME_OVER and
// applied its final buffered snapshots. The process can terminate
// cleanly once this turns true.
func (c *Client) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameOver
}

// PlayerID returns the assigned player id, or "" if not yet assigned.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Grid returns the client's locally applied grid. Callers must not
// mutate it; it's shared with the render sink.
func (c *Client) Grid() *state.Grid {
	return c.grid
}
