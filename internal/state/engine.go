package state

import (
	"sort"
	"strconv"
)

// AcquireEvent is the payload of a reliable event generated by a
// successful Apply. EventID is left for the caller (internal/reliable)
// to assign; this package only decides whether a mutation happened.
type AcquireEvent struct {
	Cell  Coord
	Owner string
}

// Engine wraps a Grid with the acquire rule and terminal-condition
// detection described by the protocol: once a cell is UNCLAIMED, any
// request claims it; once ACQUIRED, only a strictly earlier timestamp
// than the current owner's can still win. The rule alone makes
// retransmitted requests idempotent, with no separate dedup table,
// since (cell, ts, player) is what the state check inspects.
type Engine struct {
	grid *Grid
}

// NewEngine returns an Engine over a freshly created N x N grid.
func NewEngine(n int) *Engine {
	return &Engine{grid: NewGrid(n)}
}

// Grid returns the live authoritative grid. Callers must not mutate it
// directly; go through Apply.
func (e *Engine) Grid() *Grid {
	return e.grid
}

// Apply evaluates an ACQUIRE_REQ. It returns accepted=true and a
// non-nil event when the request wins the cell; out-of-range cells and
// losing requests are silently ignored, matching the error-handling
// design (no response is emitted on rejection).
func (e *Engine) Apply(cell Coord, player string, ts int64) (accepted bool, event *AcquireEvent) {
	if !e.grid.InBounds(cell) {
		return false, nil
	}

	current, _ := e.grid.Get(cell)
	if current.State == Unclaimed || ts < current.Timestamp {
		e.grid.Set(cell, Cell{State: Acquired, Owner: player, Timestamp: ts})
		return true, &AcquireEvent{Cell: cell, Owner: player}
	}
	return false, nil
}

// Terminal reports whether every cell is ACQUIRED and, if so, the
// winner and full scoreboard. Ties are broken by the lowest player id
// so the outcome is deterministic. Player ids travel as decimal
// strings on the wire; they're compared numerically so "10" does not
// sort ahead of "2".
func (e *Engine) Terminal() (winner string, scoreboard map[string]int, ok bool) {
	if !e.grid.Full() {
		return "", nil, false
	}

	counts := map[string]int{}
	e.grid.Each(func(_ Coord, cell Cell) {
		counts[cell.Owner]++
	})

	owners := make([]string, 0, len(counts))
	for owner := range counts {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return lessPlayerID(owners[i], owners[j])
	})

	best := owners[0]
	for _, owner := range owners[1:] {
		if counts[owner] > counts[best] {
			best = owner
		}
	}
	return best, counts, true
}

// lessPlayerID orders player ids numerically when both parse as
// integers, falling back to a lexicographic comparison for any
// non-numeric id the protocol never actually produces itself but a
// test or a misbehaving peer might.
func lessPlayerID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
