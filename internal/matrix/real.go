//go:build linux

package matrix

import (
	"fmt"
	"time"

	"github.com/sweeney/keymatrix/internal/debounce"
	"github.com/warthog618/go-gpiocdev"
)

// DefaultSettle is how long a row is held active before its columns are read.
const DefaultSettle = 20 * time.Microsecond

// RealScanner scans a diode matrix on the Linux GPIO character device.
// Rows are outputs held high and pulled low one at a time; columns are
// inputs with pull-up, so a closed switch on the active row reads 0.
type RealScanner struct {
	chip    *gpiocdev.Chip
	rows    *gpiocdev.Lines
	cols    *gpiocdev.Lines
	nRows   int
	nCols   int
	rowVals []int
	colVals []int
	settle  time.Duration
}

// NewRealScanner requests the row and column lines on the named chip.
func NewRealScanner(chipName string, rowPins, colPins []int) (*RealScanner, error) {
	if len(rowPins) == 0 || len(rowPins) > debounce.MaxRows {
		return nil, fmt.Errorf("matrix: %d row pins (want 1..%d)", len(rowPins), debounce.MaxRows)
	}
	if len(colPins) == 0 || len(colPins) > debounce.MatrixCols {
		return nil, fmt.Errorf("matrix: %d column pins (want 1..%d)", len(colPins), debounce.MatrixCols)
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	idle := make([]int, len(rowPins))
	for i := range idle {
		idle[i] = 1
	}
	rows, err := chip.RequestLines(rowPins, gpiocdev.AsOutput(idle...))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request row pins %v: %w", rowPins, err)
	}

	cols, err := chip.RequestLines(colPins, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		rows.Close()
		chip.Close()
		return nil, fmt.Errorf("request column pins %v: %w", colPins, err)
	}

	return &RealScanner{
		chip:    chip,
		rows:    rows,
		cols:    cols,
		nRows:   len(rowPins),
		nCols:   len(colPins),
		rowVals: idle,
		colVals: make([]int, len(colPins)),
		settle:  DefaultSettle,
	}, nil
}

// Rows returns the number of row lines.
func (s *RealScanner) Rows() int { return s.nRows }

// Cols returns the number of column lines.
func (s *RealScanner) Cols() int { return s.nCols }

// Scan drives each row low in turn and samples the columns.
func (s *RealScanner) Scan(raw []debounce.Row) error {
	for r := 0; r < s.nRows; r++ {
		s.rowVals[r] = 0
		err := s.rows.SetValues(s.rowVals)
		s.rowVals[r] = 1
		if err != nil {
			return fmt.Errorf("select row %d: %w", r, err)
		}

		time.Sleep(s.settle)

		if err := s.cols.Values(s.colVals); err != nil {
			return fmt.Errorf("read columns on row %d: %w", r, err)
		}

		var row debounce.Row
		for c, v := range s.colVals {
			if v == 0 {
				row |= 1 << c
			}
		}
		raw[r] = row
	}

	if err := s.rows.SetValues(s.rowVals); err != nil {
		return fmt.Errorf("release rows: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are returned to inputs with pull-down (the Pi boot default) before
// closing so the next boot sees a clean state.
func (s *RealScanner) Close() error {
	var errs []error

	if s.rows != nil {
		if err := s.rows.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure rows: %w", err))
		}
		if err := s.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rows: %w", err))
		}
	}
	if s.cols != nil {
		if err := s.cols.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure columns: %w", err))
		}
		if err := s.cols.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close columns: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
