package server

import (
	"encoding/json"
	"net"
	"time"

	"github.com/gridclash/mlsp/internal/protocol"
	"github.com/gridclash/mlsp/internal/reliable"
	"github.com/gridclash/mlsp/internal/session"
	"github.com/gridclash/mlsp/internal/state"
)

// dispatch handles one decoded inbound packet. Called with s.mu held.
func (s *Server) dispatch(hdr protocol.Header, payload []byte, addr net.Addr) {
	switch hdr.Type {
	case protocol.MsgInit:
		s.handleInit(addr)
	case protocol.MsgAssignIDAck:
		s.sessions.OnAssignIDAck(addr)
	case protocol.MsgAcquireReq:
		var p protocol.AcquireReqPayload
		if json.Unmarshal(payload, &p) == nil {
			s.handleAcquireReq(p)
		}
	case protocol.MsgSnapshotAck:
		var p protocol.SnapshotAckPayload
		if json.Unmarshal(payload, &p) == nil {
			s.sessions.OnSnapshotAck(addr, int64(p.SnapshotID))
		}
	case protocol.MsgSnapshotNack:
		var p protocol.SnapshotNackPayload
		if json.Unmarshal(payload, &p) == nil {
			s.handleSnapshotNack(addr)
		}
	case protocol.MsgAcquireAck:
		var p protocol.AcquireAckPayload
		if json.Unmarshal(payload, &p) == nil {
			s.handleAcquireAck(p, addr)
		}
	}
}

func (s *Server) handleInit(addr net.Addr) {
	_, existedBefore := s.sessions.Get(addr)

	sess, err := s.sessions.OnInit(addr)
	if err != nil {
		// *session.CapacityError: silently decline per the capacity policy.
		return
	}

	s.sendAssignID(sess)
	if !existedBefore {
		s.sendFullSnapshot(sess)
	}
}

func (s *Server) handleAcquireReq(p protocol.AcquireReqPayload) {
	if s.gameOver {
		return
	}
	cell := state.Coord{Row: p.Cell[0], Col: p.Cell[1]}
	accepted, event := s.engine.Apply(cell, p.ID, p.Timestamp)
	if !accepted {
		return
	}

	active := s.sessions.Active()
	recipients := make([]net.Addr, 0, len(active))
	for _, sess := range active {
		recipients = append(recipients, sess.Endpoint)
	}
	ev := s.events.Create(event.Cell, event.Owner, recipients)
	s.broadcastAcquireEvent(ev, recipients)
	s.met.PendingEvents.Set(float64(s.events.Len()))
}

func (s *Server) handleSnapshotNack(addr net.Addr) {
	sess, ok := s.sessions.Get(addr)
	if !ok || sess.State != session.Active {
		return
	}
	delta := s.snap.Delta(s.engine.Grid())
	if len(delta) == 0 {
		return
	}
	s.sendSnapshot(sess, delta, false, s.lastSentID)
}

func (s *Server) handleAcquireAck(p protocol.AcquireAckPayload, addr net.Addr) {
	s.events.Ack(p.EventID, addr)
	s.met.PendingEvents.Set(float64(s.events.Len()))
}

// tick computes and sends one broadcast period's delta to every ACTIVE
// session, then checks the terminal condition. Called with s.mu held.
// Returns true once GAME_OVER has been sent, signalling the broadcast
// loop to stop ticking.
//
// An empty delta still goes out as a SNAPSHOT with an empty grid map:
// the id space stays contiguous, client watchdogs keep seeing traffic,
// and a later NACK has a meaningful id to refer to.
func (s *Server) tick() (done bool) {
	if s.gameOver {
		return true
	}

	delta := s.snap.Delta(s.engine.Grid())
	id := s.snap.NextSnapshotID()
	s.lastSentID = id

	active := s.sessions.Active()
	for _, sess := range active {
		s.sendSnapshot(sess, delta, false, id)
	}
	s.met.SnapshotID.Set(float64(id))
	s.met.ActiveSessions.Set(float64(len(active)))

	if winner, scoreboard, ok := s.engine.Terminal(); ok {
		s.gameOver = true
		s.winner = winner
		s.scoreboard = scoreboard
		for _, sess := range active {
			s.sendGameOver(sess)
		}
		return true
	}
	return false
}

func (s *Server) broadcastAcquireEvent(ev *reliable.Event, recipients []net.Addr) {
	payload := protocol.AcquireEventPayload{
		Cell:    [2]int{ev.Cell.Row, ev.Cell.Col},
		Owner:   ev.Owner,
		EventID: ev.ID,
	}
	for _, addr := range recipients {
		s.send(addr, protocol.MsgAcquireEvent, s.lastSentID, payload)
	}
}

func (s *Server) sendAssignID(sess *session.Session) {
	sess.AssignSentAt = time.Now()
	s.send(sess.Endpoint, protocol.MsgAssignID, 0, protocol.AssignIDPayload{ID: sess.PlayerID})
}

func (s *Server) sendFullSnapshot(sess *session.Session) {
	cells := s.snap.FullSnapshotCells(s.engine.Grid())
	s.sendSnapshot(sess, cells, true, s.lastSentID)
}

func (s *Server) sendSnapshot(sess *session.Session, cells map[state.Coord]state.Cell, isFull bool, snapshotID uint32) {
	serverTimeMS := time.Now().UnixMilli()
	chunks := s.snap.BuildChunks(cells, isFull, serverTimeMS)
	for _, chunk := range chunks {
		s.send(sess.Endpoint, protocol.MsgSnapshot, snapshotID, chunk)
	}
}

func (s *Server) sendGameOver(sess *session.Session) {
	s.send(sess.Endpoint, protocol.MsgGameOver, s.lastSentID, protocol.GameOverPayload{
		Winner:     s.winner,
		Scoreboard: s.scoreboard,
	})
}

// send encodes and transmits one packet, dropping (and logging) an
// oversize-encode failure rather than retrying: an oversize outbound
// packet outside the chunking path is a programmer error, not a
// transient condition. Send failures on the transport itself are
// suppressed per-send; the reliable event channel covers for
// ACQUIRE_EVENT, and a lost SNAPSHOT is superseded by the next tick.
func (s *Server) send(addr net.Addr, msgType protocol.MessageType, snapshotID uint32, v interface{}) {
	s.seq++
	buf, err := protocol.EncodeJSON(msgType, snapshotID, s.seq, uint64(time.Now().UnixMilli()), v, s.cfg.MaxPacketBytes)
	if err != nil {
		s.log.Error("oversize outbound packet", "type", msgType.String(), "err", err)
		return
	}
	n, err := s.tr.WriteTo(buf, addr)
	if err != nil {
		s.log.Debug("send failed", "addr", addr.String(), "err", err)
		return
	}
	s.met.BytesSentTotal.Add(float64(n))
	if msgType != protocol.MsgSnapshot {
		s.log.Debug("sent packet", "type", msgType.String(), "addr", addr.String())
	}
}
