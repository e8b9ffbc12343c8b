package matrix

import (
	"errors"

	"github.com/sweeney/keymatrix/internal/debounce"
)

// FakeScanner is a test double that returns scripted matrix frames.
type FakeScanner struct {
	// Frames contains scripted raw matrices. Each call to Scan consumes
	// the next frame.
	Frames [][]debounce.Row

	// NumRows and NumCols are reported by Rows and Cols.
	NumRows int
	NumCols int

	// index tracks current position in Frames
	index int

	// Closed tracks if Close was called
	Closed bool

	// ScanError, if set, will be returned by Scan()
	ScanError error
}

// NewFakeScanner creates a FakeScanner with the given frames.
func NewFakeScanner(rows, cols int, frames [][]debounce.Row) *FakeScanner {
	return &FakeScanner{Frames: frames, NumRows: rows, NumCols: cols}
}

// Rows returns NumRows.
func (f *FakeScanner) Rows() int { return f.NumRows }

// Cols returns NumCols.
func (f *FakeScanner) Cols() int { return f.NumCols }

// Scan copies the next scripted frame into raw.
// If frames are exhausted, returns the last frame repeatedly.
func (f *FakeScanner) Scan(raw []debounce.Row) error {
	if f.ScanError != nil {
		return f.ScanError
	}

	if len(f.Frames) == 0 {
		return errors.New("no frames configured")
	}

	copy(raw, f.Frames[f.index])
	if f.index < len(f.Frames)-1 {
		f.index++
	}

	return nil
}

// Close marks the scanner as closed.
func (f *FakeScanner) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the scanner to the first frame.
func (f *FakeScanner) Reset() {
	f.index = 0
	f.Closed = false
}
