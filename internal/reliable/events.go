// Package reliable implements the per-event reliable broadcast channel
// layered over the best-effort snapshot stream: every ACQUIRE mutation
// gets a unique event id, is transmitted immediately to every currently
// active recipient, and is retransmitted to any recipient that hasn't
// acked yet until all of them have.
package reliable

import (
	"net"

	"github.com/gridclash/mlsp/internal/state"
)

// Event is a pending reliable ACQUIRE notification and its per-endpoint
// ack bitmap. IDs are a process-local monotonic counter: the wire
// schema carries event_id as a JSON integer, and a counter guarantees
// uniqueness for the lifetime of the server process.
type Event struct {
	ID      int64
	Cell    state.Coord
	Owner   string
	acks    map[string]bool
	members []net.Addr
}

// Table tracks every pending reliable event, keyed by event id. It is
// not safe for concurrent use by itself; callers hold the server's
// single coarse mutex for the duration of any operation.
type Table struct {
	events map[int64]*Event
	nextID int64
}

// NewTable returns an empty reliable-event table.
func NewTable() *Table {
	return &Table{events: make(map[int64]*Event)}
}

// Create registers a new event for cell/owner, seeding one false ack
// bit per entry in recipients (every currently ACTIVE session at the
// moment of acceptance). Returns the event so the caller can transmit
// it immediately.
func (t *Table) Create(cell state.Coord, owner string, recipients []net.Addr) *Event {
	t.nextID++
	ev := &Event{
		ID:      t.nextID,
		Cell:    cell,
		Owner:   owner,
		acks:    make(map[string]bool, len(recipients)),
		members: append([]net.Addr(nil), recipients...),
	}
	for _, r := range recipients {
		ev.acks[r.String()] = false
	}
	t.events[ev.ID] = ev
	return ev
}

// Ack records an ack from endpoint for eventID. If every recipient has
// now acked, the event is deleted from the table. Acking an unknown
// event id or an endpoint not among the recipients is a no-op, not an
// error, since duplicate/late acks are expected.
func (t *Table) Ack(eventID int64, endpoint net.Addr) {
	ev, ok := t.events[eventID]
	if !ok {
		return
	}
	key := endpoint.String()
	if _, isMember := ev.acks[key]; !isMember {
		return
	}
	ev.acks[key] = true

	for _, acked := range ev.acks {
		if !acked {
			return
		}
	}
	delete(t.events, eventID)
}

// Pending returns every event with at least one outstanding ack, along
// with the list of endpoints still owed a retransmission.
func (t *Table) Pending() []PendingEvent {
	out := make([]PendingEvent, 0, len(t.events))
	for _, ev := range t.events {
		unacked := make([]net.Addr, 0, len(ev.members))
		for _, m := range ev.members {
			if !ev.acks[m.String()] {
				unacked = append(unacked, m)
			}
		}
		if len(unacked) > 0 {
			out = append(out, PendingEvent{Event: ev, Unacked: unacked})
		}
	}
	return out
}

// Len reports how many events are still pending (for metrics).
func (t *Table) Len() int {
	return len(t.events)
}

// PendingEvent pairs an Event with the subset of recipients that still
// owe it an ack, for the retransmitter loop to act on.
type PendingEvent struct {
	*Event
	Unacked []net.Addr
}
