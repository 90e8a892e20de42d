package savedgames

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
	"github.com/MarcoPoloResearchLab/connectfour/internal/replay"
)

var (
	// ErrInvalidPlayerID indicates that a player identifier is not a positive integer.
	ErrInvalidPlayerID = errors.New("savedgames: invalid player id")
	// ErrInvalidGameID indicates that a game identifier is not a positive integer.
	ErrInvalidGameID = errors.New("savedgames: invalid game id")
	// ErrInvalidGameStatus indicates that a status is not one of the known game statuses.
	ErrInvalidGameStatus = errors.New("savedgames: invalid game status")
	// ErrSaveConflict indicates that a concurrent writer won the race for the same player and game.
	ErrSaveConflict = errors.New("savedgames: save conflict")
)

// PlayerID represents a validated player identifier assigned by the game service.
type PlayerID int64

// NewPlayerID validates raw input and returns a PlayerID.
func NewPlayerID(value int64) (PlayerID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPlayerID, value)
	}
	return PlayerID(value), nil
}

// Int64 exposes the raw identifier.
func (id PlayerID) Int64() int64 {
	return int64(id)
}

// GameID represents a validated game identifier assigned by the remote session.
type GameID int64

// NewGameID validates raw input and returns a GameID.
func NewGameID(value int64) (GameID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGameID, value)
	}
	return GameID(value), nil
}

// Int64 exposes the raw identifier.
func (id GameID) Int64() int64 {
	return int64(id)
}

// GameStatus enumerates the lifecycle states recorded for a saved game.
type GameStatus string

const (
	// GameStatusInProgress marks a game that can still be resumed.
	GameStatusInProgress GameStatus = "InProgress"
	// GameStatusWon marks a game the local player won.
	GameStatusWon GameStatus = "Won"
	// GameStatusLost marks a game the local player lost.
	GameStatusLost GameStatus = "Lost"
	// GameStatusDraw marks a game that ended with a full board.
	GameStatusDraw GameStatus = "Draw"
)

var knownStatuses = []GameStatus{GameStatusInProgress, GameStatusWon, GameStatusLost, GameStatusDraw}

// ParseGameStatus matches raw input case-insensitively. Blank input means InProgress.
func ParseGameStatus(rawInput string) (GameStatus, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return GameStatusInProgress, nil
	}
	for _, status := range knownStatuses {
		if strings.EqualFold(trimmed, string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGameStatus, rawInput)
}

// Valid reports whether the status is one of the known values.
func (s GameStatus) Valid() bool {
	for _, status := range knownStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether the game has finished.
func (s GameStatus) Terminal() bool {
	return s == GameStatusWon || s == GameStatusLost || s == GameStatusDraw
}

// String returns the stored representation.
func (s GameStatus) String() string {
	return string(s)
}

// SavedGame is the durable record of one player's progress in one remote game.
type SavedGame struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PlayerID        int64      `gorm:"column:player_id;not null;uniqueIndex:idx_saved_games_player_game,priority:1;index:idx_saved_games_player_saved,priority:1" json:"player_id"`
	GameID          int64      `gorm:"column:game_id;not null;uniqueIndex:idx_saved_games_player_game,priority:2" json:"game_id"`
	BoardState      string     `gorm:"column:board_state;type:text;not null" json:"board_state"`
	IsPlayerTurn    bool       `gorm:"column:is_player_turn;not null;default:false" json:"is_player_turn"`
	SavedAt         time.Time  `gorm:"column:saved_at;not null;index:idx_saved_games_player_saved,priority:2" json:"saved_at"`
	GameStatus      GameStatus `gorm:"column:game_status;size:32;not null;default:'InProgress'" json:"game_status"`
	MoveHistoryJSON string     `gorm:"column:move_history_json;type:text;not null;default:''" json:"move_history_json"`
	Revision        string     `gorm:"column:revision;size:64;not null;default:''" json:"revision"`
	Version         int64      `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (SavedGame) TableName() string {
	return "saved_games"
}

// Grid decodes the stored board snapshot.
func (g SavedGame) Grid() (board.Grid, board.DecodeStatus) {
	return board.Decode(g.BoardState)
}

// HasPieces reports whether the stored snapshot holds at least one piece.
func (g SavedGame) HasPieces() bool {
	grid, _ := g.Grid()
	return !grid.IsEmpty()
}

// Moves decodes the stored move history. A record without history returns nil.
func (g SavedGame) Moves() (replay.History, error) {
	return replay.DecodeHistory(g.MoveHistoryJSON)
}

// Reconstruct rebuilds the board to display, preferring move history over the snapshot.
func (g SavedGame) Reconstruct() replay.Reconstruction {
	return replay.Reconstruct(g.MoveHistoryJSON, g.BoardState)
}

// SaveRequest carries everything the session knows after a turn.
type SaveRequest struct {
	PlayerID     PlayerID
	GameID       GameID
	Grid         board.Grid
	IsPlayerTurn bool
	Status       GameStatus
	// Moves is nil when the session did not record history.
	Moves replay.History
	// ExpectedRevision, when set, makes the save fail with ErrSaveConflict unless the
	// stored record still carries this revision.
	ExpectedRevision string
}
