// Package render defines the interface the client pipeline pushes
// applied grid state into. The actual graphical surface is an external
// collaborator and out of scope; this package only carries the
// boundary plus a trivial logging implementation used to exercise and
// test the client pipeline without a GUI.
package render

import (
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/state"
)

// Sink receives grid updates and the terminal result from a client
// pipeline. Implementations must not block: the client's receiver and
// render-delay drain worker call these synchronously, with the
// client's lock held.
type Sink interface {
	GridUpdated(grid *state.Grid)
	GameOver(winner string, scoreboard map[string]int)
}

// LogSink is the stub Sink this repo ships: it logs every update
// through internal/logging instead of drawing anything, enough to
// drive and test the pipeline end-to-end.
type LogSink struct {
	log *logging.Sink
}

// NewLogSink wraps log as a Sink.
func NewLogSink(log *logging.Sink) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) GridUpdated(grid *state.Grid) {
	claimed := 0
	grid.Each(func(_ state.Coord, cell state.Cell) {
		if cell.State == state.Acquired {
			claimed++
		}
	})
	s.log.Debug("grid updated", "claimed", claimed, "size", grid.N)
}

func (s *LogSink) GameOver(winner string, scoreboard map[string]int) {
	s.log.Info("game over", "winner", winner, "scoreboard", scoreboard)
}
