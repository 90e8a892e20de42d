package board

type direction struct {
	rowStep    int
	columnStep int
}

// Scan order decides which line is reported when several exist.
var scanDirections = []direction{
	{rowStep: 0, columnStep: 1},  // horizontal
	{rowStep: 1, columnStep: 0},  // vertical
	{rowStep: 1, columnStep: 1},  // diagonal down-right
	{rowStep: 1, columnStep: -1}, // diagonal down-left
}

// FindWinningLine returns the coordinates of the first four-in-a-row found, scanning
// horizontal, vertical, down-right and down-left windows in that order. It returns nil
// when the board holds no line.
func FindWinningLine(grid Grid) []Coordinate {
	for _, dir := range scanDirections {
		if line := scanDirection(grid, dir); line != nil {
			return line
		}
	}
	return nil
}

func scanDirection(grid Grid, dir direction) []Coordinate {
	for row := 0; row < Rows; row++ {
		for column := 0; column < Columns; column++ {
			if line := windowAt(grid, row, column, dir); line != nil {
				return line
			}
		}
	}
	return nil
}

func windowAt(grid Grid, row, column int, dir direction) []Coordinate {
	lastRow := row + dir.rowStep*(LineLength-1)
	lastColumn := column + dir.columnStep*(LineLength-1)
	if !InBounds(row, column) || !InBounds(lastRow, lastColumn) {
		return nil
	}

	owner := grid[row][column]
	if !owner.Occupied() {
		return nil
	}
	for step := 1; step < LineLength; step++ {
		if grid[row+dir.rowStep*step][column+dir.columnStep*step] != owner {
			return nil
		}
	}

	line := make([]Coordinate, LineLength)
	for step := 0; step < LineLength; step++ {
		line[step] = Coordinate{Row: row + dir.rowStep*step, Column: column + dir.columnStep*step}
	}
	return line
}

// WinningOwner returns the owner of the first winning line, or Empty when there is none.
func WinningOwner(grid Grid) Cell {
	line := FindWinningLine(grid)
	if len(line) == 0 {
		return Empty
	}
	return grid[line[0].Row][line[0].Column]
}
