package board

const (
	// Rows is the fixed number of rows on a connect-four board.
	Rows = 6
	// Columns is the fixed number of columns on a connect-four board.
	Columns = 7
	// LineLength is the number of aligned pieces that wins a game.
	LineLength = 4
)

// Cell enumerates the ownership of a single board position.
type Cell int

const (
	// Empty marks an unoccupied position.
	Empty Cell = 0
	// PlayerA marks a piece dropped by the local player.
	PlayerA Cell = 1
	// PlayerB marks a piece dropped by the remote opponent.
	PlayerB Cell = 2
)

// Valid reports whether the value is one of the known cell states.
func (c Cell) Valid() bool {
	return c == Empty || c == PlayerA || c == PlayerB
}

// Occupied reports whether a piece sits in the cell.
func (c Cell) Occupied() bool {
	return c == PlayerA || c == PlayerB
}

// Coordinate addresses a board position; row 0 is the top row.
type Coordinate struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Grid is the 6x7 board. It is a value type, so assignments copy the whole board.
type Grid [Rows][Columns]Cell

// Cell returns the value at the position, or Empty when the position is off the board.
func (g Grid) Cell(row, column int) Cell {
	if !InBounds(row, column) {
		return Empty
	}
	return g[row][column]
}

// PieceCount returns the number of occupied cells.
func (g Grid) PieceCount() int {
	count := 0
	for row := 0; row < Rows; row++ {
		for column := 0; column < Columns; column++ {
			if g[row][column].Occupied() {
				count++
			}
		}
	}
	return count
}

// IsEmpty reports whether no piece has been placed.
func (g Grid) IsEmpty() bool {
	return g.PieceCount() == 0
}

// IsFull reports whether every column is filled to the top.
func (g Grid) IsFull() bool {
	for column := 0; column < Columns; column++ {
		if g[0][column] == Empty {
			return false
		}
	}
	return true
}

// DropRow returns the row a piece dropped into the column would land on.
// ok is false when the column is full or out of range.
func (g Grid) DropRow(column int) (row int, ok bool) {
	if column < 0 || column >= Columns {
		return -1, false
	}
	for row = Rows - 1; row >= 0; row-- {
		if g[row][column] == Empty {
			return row, true
		}
	}
	return -1, false
}

// InBounds reports whether the position lies on the board.
func InBounds(row, column int) bool {
	return row >= 0 && row < Rows && column >= 0 && column < Columns
}
