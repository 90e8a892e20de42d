package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/connectfour/internal/board"
)

// ErrInvalidMoveHistory indicates that a move history cannot be decoded or contains impossible moves.
var ErrInvalidMoveHistory = errors.New("replay: invalid move history")

// Move records one column drop and who made it.
type Move struct {
	Column int
	Mover  board.Cell
}

// PlayerMove builds a move dropped by the local player.
func PlayerMove(column int) Move {
	return Move{Column: column, Mover: board.PlayerA}
}

// OpponentMove builds a move dropped by the remote opponent.
func OpponentMove(column int) Move {
	return Move{Column: column, Mover: board.PlayerB}
}

// IsPlayerMove reports whether the local player made the move.
func (m Move) IsPlayerMove() bool {
	return m.Mover == board.PlayerA
}

type moveRecord struct {
	Column       int  `json:"column"`
	IsPlayerMove bool `json:"isPlayerMove"`
}

// MarshalJSON encodes the move as {"column": n, "isPlayerMove": bool}.
func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal(moveRecord{Column: m.Column, IsPlayerMove: m.IsPlayerMove()})
}

// UnmarshalJSON decodes the {"column": n, "isPlayerMove": bool} form. Both keys are required.
func (m *Move) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return fmt.Errorf("%w: null move", ErrInvalidMoveHistory)
	}
	var record struct {
		Column       *int  `json:"column"`
		IsPlayerMove *bool `json:"isPlayerMove"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	if record.Column == nil {
		return fmt.Errorf("%w: move without column", ErrInvalidMoveHistory)
	}
	if record.IsPlayerMove == nil {
		return fmt.Errorf("%w: move without mover", ErrInvalidMoveHistory)
	}
	m.Column = *record.Column
	m.Mover = board.PlayerB
	if *record.IsPlayerMove {
		m.Mover = board.PlayerA
	}
	return nil
}

// History is the chronological list of moves of one game.
type History []Move

// Validate checks that every move targets a board column and names a player.
func (h History) Validate() error {
	for index, move := range h {
		if move.Column < 0 || move.Column >= board.Columns {
			return fmt.Errorf("%w: move %d targets column %d", ErrInvalidMoveHistory, index, move.Column)
		}
		if !move.Mover.Occupied() {
			return fmt.Errorf("%w: move %d has no mover", ErrInvalidMoveHistory, index)
		}
	}
	return nil
}

// EncodeHistory renders the history as a JSON array. A nil history encodes to "".
func EncodeHistory(history History) (string, error) {
	if history == nil {
		return "", nil
	}
	raw, err := json.Marshal([]Move(history))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMoveHistory, err)
	}
	return string(raw), nil
}

// DecodeHistory parses a JSON move array. Blank text means no history was recorded.
func DecodeHistory(text string) (History, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	var moves []Move
	if err := json.Unmarshal([]byte(trimmed), &moves); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMoveHistory, err)
	}
	return History(moves), nil
}
