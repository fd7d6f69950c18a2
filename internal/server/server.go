// Package server wires the session table, authoritative state engine,
// snapshot engine, and reliable event channel behind one coarse mutex
// and runs the four control loops (receiver, broadcaster, event
// retransmitter, baseline advancer) as goroutines tracked by an
// internal/lifecycle.Group.
package server

import (
	"net"
	"sync"
	"time"

	"github.com/gridclash/mlsp/internal/config"
	"github.com/gridclash/mlsp/internal/lifecycle"
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/reliable"
	"github.com/gridclash/mlsp/internal/session"
	"github.com/gridclash/mlsp/internal/snapshot"
	"github.com/gridclash/mlsp/internal/state"
)

// Transport is the subset of net.PacketConn the server needs, small
// enough to fake in tests without binding a real socket.
type Transport interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Server owns every piece of server-side state and the four loops that
// mutate it. All fields below mu are protected by mu for the duration
// of one atomic operation, per the single-coarse-mutex reference
// design.
type Server struct {
	cfg *config.Config
	tr  Transport
	log *logging.Sink
	met *metrics.Server

	group *lifecycle.Group

	mu         sync.Mutex
	sessions   *session.Table
	engine     *state.Engine
	snap       *snapshot.Engine
	events     *reliable.Table
	seq        uint32
	lastSentID uint32
	gameOver   bool
	winner     string
	scoreboard map[string]int
}

// Result reports the terminal outcome once the server has declared
// GAME_OVER, for the process's main() to log or exit on.
type Result struct {
	Winner     string
	Scoreboard map[string]int
}

// Outcome returns the terminal result and whether the game has ended.
func (s *Server) Outcome() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gameOver {
		return Result{}, false
	}
	return Result{Winner: s.winner, Scoreboard: s.scoreboard}, true
}

func New(cfg *config.Config, tr Transport, log *logging.Sink, met *metrics.Server) *Server {
	return &Server{
		cfg:      cfg,
		tr:       tr,
		log:      log,
		met:      met,
		group:    lifecycle.NewGroup(),
		sessions: session.NewTable(cfg.MaxClients),
		engine:   state.NewEngine(cfg.GridSize),
		snap:     snapshot.NewEngine(cfg.GridSize, cfg.MaxPacketBytes),
		events:   reliable.NewTable(),
	}
}

// Start launches the four control loops. Call Stop to shut them down.
func (s *Server) Start() {
	s.group.Go(s.receiveLoop)
	s.group.Go(s.broadcastLoop)
	s.group.Go(s.retransmitLoop)
	s.group.Go(s.baselineLoop)
}

// Stop signals every loop to halt and waits for them to exit.
func (s *Server) Stop() {
	s.group.Halt()
	s.group.Wait()
}
