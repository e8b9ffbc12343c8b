//go:build !linux

package matrix

import (
	"errors"

	"github.com/sweeney/keymatrix/internal/debounce"
)

// RealScanner is not available on non-Linux platforms.
type RealScanner struct{}

// NewRealScanner returns an error on non-Linux platforms.
func NewRealScanner(chipName string, rowPins, colPins []int) (*RealScanner, error) {
	return nil, errors.New("matrix: not supported on this platform (requires Linux)")
}

// Rows is not implemented on non-Linux platforms.
func (s *RealScanner) Rows() int { return 0 }

// Cols is not implemented on non-Linux platforms.
func (s *RealScanner) Cols() int { return 0 }

// Scan is not implemented on non-Linux platforms.
func (s *RealScanner) Scan(raw []debounce.Row) error {
	return errors.New("matrix: not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *RealScanner) Close() error {
	return nil
}
