// Package wire converts between the authoritative state package's
// Coord/Cell types and the protocol package's on-the-wire
// string-keyed/JSON-tagged representations. Both the server's snapshot
// engine and the client's snapshot pipeline need this conversion, so it
// lives in one place instead of being duplicated on each side.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gridclash/mlsp/internal/protocol"
	"github.com/gridclash/mlsp/internal/state"
)

// Key formats a coordinate as the "r,c" string this protocol uses as a
// grid map key.
func Key(c state.Coord) string {
	return fmt.Sprintf("%d,%d", c.Row, c.Col)
}

// ParseKey parses a "r,c" grid map key back into a Coord.
func ParseKey(key string) (state.Coord, bool) {
	parts := strings.SplitN(key, ",", 2)
	if len(parts) != 2 {
		return state.Coord{}, false
	}
	r, err1 := strconv.Atoi(parts[0])
	c, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return state.Coord{}, false
	}
	return state.Coord{Row: r, Col: c}, true
}

// ToWireCell converts an authoritative Cell into its wire
// representation. Owner is nil on the wire exactly when the cell is
// UNCLAIMED, maintaining the protocol's documented invariant.
func ToWireCell(cell state.Cell) protocol.WireCell {
	w := protocol.WireCell{State: cell.State.String(), Timestamp: cell.Timestamp}
	if cell.State == state.Acquired {
		owner := cell.Owner
		w.Owner = &owner
	}
	return w
}

// FromWireCell converts a wire cell back into a Cell.
func FromWireCell(w protocol.WireCell) state.Cell {
	cell := state.Cell{Timestamp: w.Timestamp}
	if w.State == "ACQUIRED" {
		cell.State = state.Acquired
		if w.Owner != nil {
			cell.Owner = *w.Owner
		}
	} else {
		cell.State = state.Unclaimed
	}
	return cell
}

// ToWireGrid converts a Coord-keyed cell map into the "r,c"-keyed wire
// map a SnapshotPayload carries.
func ToWireGrid(cells map[state.Coord]state.Cell) map[string]protocol.WireCell {
	out := make(map[string]protocol.WireCell, len(cells))
	for coord, cell := range cells {
		out[Key(coord)] = ToWireCell(cell)
	}
	return out
}

// FromWireGrid converts a wire grid map back into a Coord-keyed cell
// map, skipping any key that doesn't parse as "r,c" (tolerated, not an
// error, per the forward-compatibility policy).
func FromWireGrid(wireGrid map[string]protocol.WireCell) map[state.Coord]state.Cell {
	out := make(map[state.Coord]state.Cell, len(wireGrid))
	for key, w := range wireGrid {
		coord, ok := ParseKey(key)
		if !ok {
			continue
		}
		out[coord] = FromWireCell(w)
	}
	return out
}
