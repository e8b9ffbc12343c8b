// Package matrix scans a key matrix with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package matrix

import (
	"strings"

	"github.com/sweeney/keymatrix/internal/debounce"
)

// Scanner reads the raw state of every switch in the matrix.
type Scanner interface {
	// Rows returns the number of rows scanned.
	Rows() int

	// Cols returns the number of columns in use, at most debounce.MatrixCols.
	Cols() int

	// Scan fills raw (len Rows()) with the current switch states,
	// bit c of raw[r] set when the switch at row r, column c is closed.
	Scan(raw []debounce.Row) error

	// Close releases hardware resources.
	Close() error
}

// Default wiring (BCM numbering) for a 4x4 keypad.
var (
	DefaultRowPins = []int{5, 6, 13, 19}
	DefaultColPins = []int{12, 16, 20, 21}
)

// Differs reports whether raw and cooked disagree on any position.
func Differs(raw, cooked []debounce.Row) bool {
	for i := range raw {
		if raw[i] != cooked[i] {
			return true
		}
	}
	return false
}

// Format renders the first cols bits of a row, column 0 first, as '1'/'0'.
func Format(row debounce.Row, cols int) string {
	var b strings.Builder
	b.Grow(cols)
	for c := 0; c < cols; c++ {
		if row&(1<<c) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Position identifies one switch.
type Position struct {
	Row int
	Col int
}

// Pressed lists the set positions of m within the first cols columns, row-major.
func Pressed(m []debounce.Row, cols int) []Position {
	var out []Position
	for r, row := range m {
		if row == 0 {
			continue
		}
		for c := 0; c < cols; c++ {
			if row&(1<<c) != 0 {
				out = append(out, Position{Row: r, Col: c})
			}
		}
	}
	return out
}
