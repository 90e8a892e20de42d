package replay

import "github.com/MarcoPoloResearchLab/connectfour/internal/board"

// Step is the board right after one applied move.
type Step struct {
	Index int
	Move  Move
	Row   int
	Grid  board.Grid
}

// Coordinate returns the position the move landed on.
func (s Step) Coordinate() board.Coordinate {
	return board.Coordinate{Row: s.Row, Column: s.Move.Column}
}

// Result is the outcome of replaying a history from an empty board.
type Result struct {
	Final   board.Grid
	Steps   []Step
	Skipped []int
}

// Replay rebuilds the board from an empty grid using gravity placement. Moves into a
// full column, an unknown column, or without a mover are skipped and their indexes
// reported in Skipped; every other move yields one Step in order.
func Replay(history History) Result {
	var grid board.Grid
	result := Result{Steps: make([]Step, 0, len(history))}

	for index, move := range history {
		if !move.Mover.Occupied() {
			result.Skipped = append(result.Skipped, index)
			continue
		}
		row, ok := grid.DropRow(move.Column)
		if !ok {
			result.Skipped = append(result.Skipped, index)
			continue
		}
		grid[row][move.Column] = move.Mover
		result.Steps = append(result.Steps, Step{
			Index: index,
			Move:  move,
			Row:   row,
			Grid:  grid,
		})
	}

	result.Final = grid
	return result
}
