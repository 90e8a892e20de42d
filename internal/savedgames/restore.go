package savedgames

import (
	"context"

	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
	"github.com/MarcoPoloResearchLab/connectfour/internal/replay"
	"go.uber.org/zap"
)

// Restoration is everything a session needs to put a saved game back on screen.
type Restoration struct {
	Game           SavedGame
	Reconstruction replay.Reconstruction
	WinningLine    []board.Coordinate
}

// Restore loads one saved game and rebuilds its board. It returns nil when the game
// was never saved. Inconsistencies between history and snapshot are logged, not failed.
func (s *Service) Restore(ctx context.Context, playerID PlayerID, gameID GameID) (*Restoration, error) {
	game, err := s.Find(ctx, playerID, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, nil
	}

	reconstruction := game.Reconstruct()
	if reconstruction.HistoryError != nil {
		s.logWarn(opRestore, "move_history_unreadable", reconstruction.HistoryError, s.keyFields(playerID, gameID)...)
	}
	if reconstruction.SnapshotMismatch {
		s.logWarn(opRestore, "snapshot_mismatch", nil,
			append(s.keyFields(playerID, gameID), zap.Int("replayed_moves", len(reconstruction.Steps)))...)
	}

	return &Restoration{
		Game:           *game,
		Reconstruction: reconstruction,
		WinningLine:    board.FindWinningLine(reconstruction.Grid),
	}, nil
}
