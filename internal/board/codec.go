package board

import (
	"strconv"
	"strings"
)

const (
	rowDelimiter    = ";"
	columnDelimiter = ","
)

// DecodeStatus reports how Decode arrived at its grid.
type DecodeStatus int

const (
	// DecodeOK means the text described a complete, well-formed board.
	DecodeOK DecodeStatus = iota
	// DecodeEmptyInput means the text was blank and an empty board was returned.
	DecodeEmptyInput
	// DecodeMalformed means the text could not be parsed and an empty board was returned.
	DecodeMalformed
)

// String returns a stable label used in logs and API payloads.
func (s DecodeStatus) String() string {
	switch s {
	case DecodeOK:
		return "ok"
	case DecodeEmptyInput:
		return "empty_input"
	case DecodeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Encode renders the grid as rows joined by ";" with cells joined by ",".
func Encode(grid Grid) string {
	var builder strings.Builder
	builder.Grow(Rows * Columns * 2)
	for row := 0; row < Rows; row++ {
		if row > 0 {
			builder.WriteString(rowDelimiter)
		}
		for column := 0; column < Columns; column++ {
			if column > 0 {
				builder.WriteString(columnDelimiter)
			}
			builder.WriteString(strconv.Itoa(int(grid[row][column])))
		}
	}
	return builder.String()
}

// Decode parses text produced by Encode. It never fails: blank or malformed input
// yields an all-Empty grid and the status says which case occurred.
func Decode(text string) (Grid, DecodeStatus) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Grid{}, DecodeEmptyInput
	}

	rows := strings.Split(trimmed, rowDelimiter)
	if len(rows) != Rows {
		return Grid{}, DecodeMalformed
	}

	var grid Grid
	for rowIndex, rawRow := range rows {
		cells := strings.Split(rawRow, columnDelimiter)
		if len(cells) != Columns {
			return Grid{}, DecodeMalformed
		}
		for columnIndex, rawCell := range cells {
			value, err := strconv.Atoi(strings.TrimSpace(rawCell))
			if err != nil {
				return Grid{}, DecodeMalformed
			}
			cell := Cell(value)
			if !cell.Valid() {
				return Grid{}, DecodeMalformed
			}
			grid[rowIndex][columnIndex] = cell
		}
	}
	return grid, DecodeOK
}

// ToRows converts the grid into the row-major slices exchanged with the game service.
func ToRows(grid Grid) [][]int {
	rows := make([][]int, Rows)
	for row := 0; row < Rows; row++ {
		rows[row] = make([]int, Columns)
		for column := 0; column < Columns; column++ {
			rows[row][column] = int(grid[row][column])
		}
	}
	return rows
}

// FromRows converts row-major slices into a grid. Extra rows and columns are dropped,
// missing cells and unknown values become Empty.
func FromRows(rows [][]int) Grid {
	var grid Grid
	for row := 0; row < Rows && row < len(rows); row++ {
		values := rows[row]
		for column := 0; column < Columns && column < len(values); column++ {
			cell := Cell(values[column])
			if !cell.Valid() {
				continue
			}
			grid[row][column] = cell
		}
	}
	return grid
}
