package protocol

// The JSON schemas below are the closed set of payload shapes this
// protocol carries. Unknown fields are ignored by encoding/json's
// default Unmarshal behavior, which satisfies the forward-compatibility
// requirement without extra code.

// InitPayload bootstraps a session. Fields are ignored; presence alone
// matters.
type InitPayload struct{}

// AssignIDPayload carries the newly (or previously) assigned player id
// as its decimal-string form.
type AssignIDPayload struct {
	ID string `json:"id"`
}

// AssignIDAckPayload acknowledges receipt of an AssignIDPayload.
type AssignIDAckPayload struct{}

// AcquireReqPayload requests a cell claim.
type AcquireReqPayload struct {
	ID        string `json:"id"`
	Cell      [2]int `json:"cell"`
	Timestamp int64  `json:"timestamp"`
}

// AcquireEventPayload is the reliable broadcast of a successful claim.
type AcquireEventPayload struct {
	Cell    [2]int `json:"cell"`
	Owner   string `json:"owner"`
	EventID int64  `json:"event_id"`
}

// AcquireAckPayload acknowledges an AcquireEventPayload by its event id.
type AcquireAckPayload struct {
	EventID int64 `json:"event_id"`
}

// WireCell is a single cell's wire representation inside a snapshot's
// grid map.
type WireCell struct {
	State     string  `json:"state"`
	Owner     *string `json:"owner"`
	Timestamp int64   `json:"timestamp"`
}

// SnapshotPayload carries a full or delta batch of cell changes,
// possibly chunked across multiple datagrams sharing one snapshot id.
type SnapshotPayload struct {
	Grid        map[string]WireCell `json:"grid"`
	Timestamp   int64               `json:"timestamp"`
	IsFull      bool                `json:"is_full"`
	TotalChunks int                 `json:"total_chunks,omitempty"`
	ChunkIndex  int                 `json:"chunk_index,omitempty"`
}

// Chunks returns the (total, index) pair, defaulting an omitted
// total_chunks/chunk_index to the single-chunk case (1, 0) per the
// wire schema.
func (s SnapshotPayload) Chunks() (total, index int) {
	total = s.TotalChunks
	if total == 0 {
		total = 1
	}
	return total, s.ChunkIndex
}

// SnapshotAckPayload cumulatively acknowledges every snapshot with id
// at most SnapshotID.
type SnapshotAckPayload struct {
	SnapshotID uint32 `json:"snapshot_id"`
}

// SnapshotNackPayload advises the server that the client has not
// applied anything newer than LastSnapshot.
type SnapshotNackPayload struct {
	LastSnapshot uint32 `json:"last_snapshot"`
}

// GameOverPayload announces the terminal winner and final scoreboard.
type GameOverPayload struct {
	Winner     string         `json:"winner"`
	Scoreboard map[string]int `json:"scoreboard"`
}
