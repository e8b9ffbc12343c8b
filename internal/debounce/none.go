package debounce

// None copies raw to cooked unfiltered.
type None struct {
	rows   int
	closed bool
}

// NewNone creates a passthrough filter for the given number of rows.
func NewNone(rows int) (*None, error) {
	if err := checkRows(rows); err != nil {
		return nil, err
	}
	return &None{rows: rows}, nil
}

// Debounce implements Filter.
func (n *None) Debounce(raw, cooked []Row, changed bool) bool {
	if n.closed {
		panic("debounce: Debounce called after Close")
	}
	mustMatchRows(n.rows, raw, cooked)

	if !changed {
		return false
	}
	cookedChanged := false
	for row := range raw {
		if cooked[row] != raw[row] {
			cooked[row] = raw[row]
			cookedChanged = true
		}
	}
	return cookedChanged
}

// Pending implements Filter. A passthrough never has pending work.
func (n *None) Pending() int {
	return 0
}

// Close implements Filter.
func (n *None) Close() {
	n.closed = true
}
