package snapshot

import (
	"encoding/json"
	"sort"

	"github.com/gridclash/mlsp/internal/protocol"
	"github.com/gridclash/mlsp/internal/state"
	"github.com/gridclash/mlsp/internal/wire"
)

// entry is one cell keyed for stable, deterministic ordering while
// chunking. Map iteration order is not stable across runs, and
// chunk_index assignment must be reproducible for tests.
type entry struct {
	key  string
	cell protocol.WireCell
}

// BuildChunks partitions cells into one or more SnapshotPayloads, none
// of which (once wrapped in the fixed MLSP header) exceeds the
// engine's configured packet cap. If the whole map already fits, it
// returns a single chunk with TotalChunks=1, ChunkIndex=0. Otherwise it
// splits the key/value list binary-recursively (attempt half, and if
// either half still overflows, split again) until every part fits.
// A part holding a single cell is returned as is even when it does not
// fit; encoding that part then fails with an OversizeError.
// The returned parts are disjoint and their union is cells.
func (e *Engine) BuildChunks(cells map[state.Coord]state.Cell, isFull bool, serverTimeMS int64) []protocol.SnapshotPayload {
	entries := make([]entry, 0, len(cells))
	for coord, cell := range cells {
		entries = append(entries, entry{key: wire.Key(coord), cell: wire.ToWireCell(cell)})
	}
	// Deterministic order so chunk_index assignment is reproducible.
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	headroom := e.maxPacketBytes - protocol.HeaderSize
	if headroom < 0 {
		headroom = 0
	}

	parts := splitEntries(entries, isFull, serverTimeMS, headroom)

	payloads := make([]protocol.SnapshotPayload, len(parts))
	for i, part := range parts {
		grid := make(map[string]protocol.WireCell, len(part))
		for _, en := range part {
			grid[en.key] = en.cell
		}
		payloads[i] = protocol.SnapshotPayload{
			Grid:        grid,
			Timestamp:   serverTimeMS,
			IsFull:      isFull,
			TotalChunks: len(parts),
			ChunkIndex:  i,
		}
	}
	return payloads
}

func splitEntries(entries []entry, isFull bool, serverTimeMS int64, headroom int) [][]entry {
	if fits(entries, isFull, serverTimeMS, headroom) || len(entries) <= 1 {
		return [][]entry{entries}
	}
	mid := len(entries) / 2
	left := splitEntries(entries[:mid], isFull, serverTimeMS, headroom)
	right := splitEntries(entries[mid:], isFull, serverTimeMS, headroom)
	return append(left, right...)
}

func fits(entries []entry, isFull bool, serverTimeMS int64, headroom int) bool {
	grid := make(map[string]protocol.WireCell, len(entries))
	for _, en := range entries {
		grid[en.key] = en.cell
	}
	payload := protocol.SnapshotPayload{
		Grid:        grid,
		Timestamp:   serverTimeMS,
		IsFull:      isFull,
		TotalChunks: 999, // worst-case digit width for the estimate
		ChunkIndex:  999,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return true // can't do better than attempt it as one chunk
	}
	return len(buf) <= headroom
}
