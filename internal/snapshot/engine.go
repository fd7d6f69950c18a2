// Package snapshot implements the delta/full snapshot engine: the
// server keeps an authoritative grid and a baseline grid that every
// active client has cumulatively acknowledged, computes per-tick deltas
// between them, and advances the baseline only once it's safe to.
package snapshot

import (
	"github.com/gridclash/mlsp/internal/state"
)

// Engine computes deltas against a baseline and tracks the
// monotonically increasing snapshot id.
type Engine struct {
	baseline       *state.Grid
	nextID         uint32
	maxPacketBytes int
}

// NewEngine returns an Engine whose baseline starts as an all-UNCLAIMED
// grid of the same dimension as authoritative.
func NewEngine(gridSize, maxPacketBytes int) *Engine {
	return &Engine{
		baseline:       state.NewGrid(gridSize),
		maxPacketBytes: maxPacketBytes,
	}
}

// NextSnapshotID returns the id to use for the next emitted snapshot
// and increments the internal counter. The id space is contiguous
// regardless of whether the delta it carries is empty, per the fixed
// "always increment" policy.
func (e *Engine) NextSnapshotID() uint32 {
	id := e.nextID
	e.nextID++
	return id
}

// Delta returns every cell that differs between authoritative and the
// current baseline.
func (e *Engine) Delta(authoritative *state.Grid) map[state.Coord]state.Cell {
	changed := make(map[state.Coord]state.Cell)
	authoritative.Each(func(c state.Coord, cell state.Cell) {
		base, _ := e.baseline.Get(c)
		if base != cell {
			changed[c] = cell
		}
	})
	return changed
}

// FullSnapshotCells returns every cell that differs from the grid's
// initial all-UNCLAIMED state. A just-joined client starts from an
// all-UNCLAIMED grid of its own, so omitting untouched cells from its
// full snapshot loses nothing and keeps the packet small.
func (e *Engine) FullSnapshotCells(authoritative *state.Grid) map[state.Coord]state.Cell {
	changed := make(map[state.Coord]state.Cell)
	authoritative.Each(func(c state.Coord, cell state.Cell) {
		if cell.State != state.Unclaimed {
			changed[c] = cell
		}
	})
	return changed
}

// AdvanceIfSafe reports whether the baseline may advance: min_ack (the
// minimum last_acked across ACTIVE sessions) must cover the most
// recently emitted snapshot id, so every active client has
// acknowledged every delta the baseline is about to absorb. A
// lastEmittedID of zero is indistinguishable from "nothing emitted
// yet" and is conservatively treated as unsafe.
func (e *Engine) AdvanceIfSafe(minAcked int64, lastEmittedID uint32) bool {
	if lastEmittedID == 0 {
		return false
	}
	return minAcked >= int64(lastEmittedID)
}

// SetBaseline replaces the baseline with a snapshot of authoritative.
// Split from AdvanceIfSafe so the caller can decide, under its own
// lock, exactly when to read the authoritative grid.
func (e *Engine) SetBaseline(authoritative *state.Grid) {
	e.baseline = authoritative.Clone()
}

// MaxPacketBytes returns the configured packet cap used for chunking.
func (e *Engine) MaxPacketBytes() int {
	return e.maxPacketBytes
}
