// Package session implements the server-side session table: endpoint
// identity, player id assignment, and the PENDING_ASSIGN_ACK -> ACTIVE
// handshake state machine.
package session

import (
	"fmt"
	"net"
	"time"
)

// State is a session's position in the join handshake.
type State int

const (
	PendingAssignAck State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "PENDING_ASSIGN_ACK"
}

// Session is one connected client's server-side bookkeeping.
// Outstanding reliable-event acks live in the reliable-event table,
// keyed by event, not here.
type Session struct {
	Endpoint  net.Addr
	PlayerID  string
	State     State
	LastAcked int64 // -1 until the first SNAPSHOT_ACK

	// AssignSentAt is stamped on every ASSIGN_ID transmission so the
	// server can pace its resends to a still-pending session.
	AssignSentAt time.Time
}

// CapacityError is returned when a new session can't be admitted
// because the table is already at its configured cap. Per the
// error-handling design this is never logged at error level; the
// caller silently declines to respond.
type CapacityError struct {
	Max int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("session: at capacity (%d)", e.Max)
}

// Table is the server's endpoint-keyed session store. It is not safe
// for concurrent use by itself; callers hold the server's single
// coarse mutex for the duration of any operation.
type Table struct {
	byEndpoint map[string]*Session
	nextID     int
	maxClients int
}

// NewTable returns an empty table. maxClients <= 0 means unbounded.
func NewTable(maxClients int) *Table {
	return &Table{
		byEndpoint: make(map[string]*Session),
		nextID:     1,
		maxClients: maxClients,
	}
}

// Get returns the session for endpoint, if any.
func (t *Table) Get(endpoint net.Addr) (*Session, bool) {
	s, ok := t.byEndpoint[endpoint.String()]
	return s, ok
}

// OnInit handles an INIT from endpoint: allocates a fresh session
// (and player id) if endpoint is new, or returns the existing session
// unchanged if it's already known; re-INIT must never reallocate an
// id. Returns CapacityError if a brand new endpoint can't be admitted.
func (t *Table) OnInit(endpoint net.Addr) (*Session, error) {
	if existing, ok := t.Get(endpoint); ok {
		return existing, nil
	}
	if t.maxClients > 0 && len(t.byEndpoint) >= t.maxClients {
		return nil, &CapacityError{Max: t.maxClients}
	}

	s := &Session{
		Endpoint:  endpoint,
		PlayerID:  fmt.Sprintf("%d", t.nextID),
		State:     PendingAssignAck,
		LastAcked: -1,
	}
	t.nextID++
	t.byEndpoint[endpoint.String()] = s
	return s, nil
}

// OnAssignIDAck transitions a pending session to ACTIVE. It is a no-op
// if the session is unknown or already ACTIVE (ACTIVE never regresses).
func (t *Table) OnAssignIDAck(endpoint net.Addr) {
	s, ok := t.Get(endpoint)
	if !ok || s.State == Active {
		return
	}
	s.State = Active
	s.LastAcked = -1
}

// Active returns every session currently in the ACTIVE state, in an
// unspecified order.
func (t *Table) Active() []*Session {
	out := make([]*Session, 0, len(t.byEndpoint))
	for _, s := range t.byEndpoint {
		if s.State == Active {
			out = append(out, s)
		}
	}
	return out
}

// Pending returns every session still waiting on ASSIGN_ID_ACK.
func (t *Table) Pending() []*Session {
	out := make([]*Session, 0)
	for _, s := range t.byEndpoint {
		if s.State == PendingAssignAck {
			out = append(out, s)
		}
	}
	return out
}

// OnSnapshotAck updates a session's cumulative watermark: last_acked
// becomes max(prior, acked).
func (t *Table) OnSnapshotAck(endpoint net.Addr, acked int64) {
	s, ok := t.Get(endpoint)
	if !ok {
		return
	}
	if acked > s.LastAcked {
		s.LastAcked = acked
	}
}

// MinAcked returns the minimum LastAcked across all ACTIVE sessions,
// and false if there are no active sessions (the baseline advancer
// must not advance with nobody to be safe with respect to).
func (t *Table) MinAcked() (int64, bool) {
	active := t.Active()
	if len(active) == 0 {
		return 0, false
	}
	min := active[0].LastAcked
	for _, s := range active[1:] {
		if s.LastAcked < min {
			min = s.LastAcked
		}
	}
	return min, true
}
