package timer

// Manual is a test double whose tick count only moves when told to.
type Manual struct {
	// Ticks is the value returned by Read.
	Ticks uint32

	// Reads counts calls to Read.
	Reads int
}

// NewManual creates a Manual source starting at the given tick.
func NewManual(start uint32) *Manual {
	return &Manual{Ticks: start}
}

// Read returns the current tick count.
func (m *Manual) Read() uint32 {
	m.Reads++
	return m.Ticks
}

// Advance moves the clock forward by n ticks, wrapping like a hardware timer.
func (m *Manual) Advance(n uint32) {
	m.Ticks += n
}
