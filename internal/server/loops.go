package server

import (
	"time"

	"github.com/gridclash/mlsp/internal/protocol"
)

// receiveLoop demultiplexes inbound datagrams to their handler. It
// polls the transport with a short read deadline so it notices Halt
// promptly instead of blocking forever in ReadFrom.
func (s *Server) receiveLoop() {
	buf := make([]byte, protocol.DefaultMaxPacketBytes*4)
	for {
		select {
		case <-s.group.HaltCh():
			return
		default:
		}

		s.tr.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := s.tr.ReadFrom(buf)
		if err != nil {
			continue // timeout or transient error; loop re-checks HaltCh
		}

		hdr, payload, ok := protocol.Decode(buf[:n])
		if !ok {
			s.met.DecodeDropsTotal.Inc()
			continue
		}

		s.mu.Lock()
		s.dispatch(hdr, payload, addr)
		s.mu.Unlock()
	}
}

// broadcastLoop emits one SNAPSHOT (possibly chunked) per tick with
// tick-jitter correction: it sleeps period-elapsed so the average rate
// stays 1/period regardless of how long one tick's work took. It
// returns (stopping only itself, not the other loops) once the
// terminal condition is reached and the final delta has gone out.
func (s *Server) broadcastLoop() {
	period := s.cfg.BroadcastPeriod()
	for {
		start := time.Now()

		select {
		case <-s.group.HaltCh():
			return
		default:
		}

		s.mu.Lock()
		done := s.tick()
		s.mu.Unlock()
		s.met.BroadcastTick.Observe(time.Since(start).Seconds())

		if done {
			return
		}

		elapsed := time.Since(start)
		sleep := period - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-s.group.HaltCh():
			return
		case <-time.After(sleep):
		}
	}
}

// retransmitLoop periodically scans the reliable-event table and
// resends ACQUIRE_EVENT to every recipient still owed an ack. The same
// scan re-sends ASSIGN_ID to any session still pending its ack, paced
// by the configured assign-resend interval.
func (s *Server) retransmitLoop() {
	ticker := time.NewTicker(s.cfg.ReliableRetransmit())
	defer ticker.Stop()
	for {
		select {
		case <-s.group.HaltCh():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, sess := range s.sessions.Pending() {
				if time.Since(sess.AssignSentAt) >= s.cfg.AssignIDResend() {
					s.sendAssignID(sess)
				}
			}
			pending := s.events.Pending()
			if s.gameOver && len(pending) == 0 {
				s.mu.Unlock()
				return
			}
			for _, ev := range pending {
				s.broadcastAcquireEvent(ev.Event, ev.Unacked)
			}
			s.met.PendingEvents.Set(float64(s.events.Len()))
			s.mu.Unlock()
		}
	}
}

// baselineLoop periodically checks whether min_ack has caught up to
// the last emitted snapshot id and advances the baseline when safe.
func (s *Server) baselineLoop() {
	ticker := time.NewTicker(s.cfg.BaselineAdvanceCheck())
	defer ticker.Stop()
	for {
		select {
		case <-s.group.HaltCh():
			return
		case <-ticker.C:
			s.mu.Lock()
			minAcked, haveActive := s.sessions.MinAcked()
			if haveActive && s.snap.AdvanceIfSafe(minAcked, s.lastSentID) {
				s.snap.SetBaseline(s.engine.Grid())
			}
			gameOverDrained := s.gameOver
			s.mu.Unlock()
			if gameOverDrained {
				return
			}
		}
	}
}
