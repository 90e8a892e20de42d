package replay

import "github.com/MarcoPoloResearchLab/connectfour/internal/board"

// Source names the input a reconstruction was built from.
type Source string

const (
	// SourceReplay means the board was rebuilt from move history.
	SourceReplay Source = "replay"
	// SourceSnapshot means the stored board text was decoded because no usable history exists.
	SourceSnapshot Source = "snapshot"
	// SourceEmpty means neither history nor snapshot held a board.
	SourceEmpty Source = "empty"
)

// Reconstruction is the board to display for a saved game plus how it was obtained.
type Reconstruction struct {
	Grid             board.Grid
	Source           Source
	Steps            []Step
	Skipped          []int
	SnapshotStatus   board.DecodeStatus
	SnapshotMismatch bool
	HistoryError     error
}

// Reconstruct picks the board for a saved game. Move history is authoritative whenever it
// holds at least one move and decodes; the snapshot is only decoded as a fallback. When both exist and
// disagree SnapshotMismatch is set and the replayed board is still returned.
func Reconstruct(historyText, snapshotText string) Reconstruction {
	snapshot, snapshotStatus := board.Decode(snapshotText)
	history, historyErr := DecodeHistory(historyText)

	if historyErr == nil && len(history) > 0 {
		result := Replay(history)
		return Reconstruction{
			Grid:             result.Final,
			Source:           SourceReplay,
			Steps:            result.Steps,
			Skipped:          result.Skipped,
			SnapshotStatus:   snapshotStatus,
			SnapshotMismatch: snapshotStatus == board.DecodeOK && snapshot != result.Final,
		}
	}

	reconstruction := Reconstruction{
		Grid:           snapshot,
		Source:         SourceSnapshot,
		SnapshotStatus: snapshotStatus,
		HistoryError:   historyErr,
	}
	if snapshotStatus != board.DecodeOK {
		reconstruction.Source = SourceEmpty
	}
	return reconstruction
}
