package debounce

import (
	"fmt"

	"github.com/sweeney/keymatrix/internal/timer"
)

// New builds the named filter. A config with no delay at all selects the
// passthrough regardless of algo, since there is nothing to time.
func New(algo Algorithm, rows int, clock timer.Source, cfg Config) (Filter, error) {
	switch algo {
	case AlgoAsymDeferLockout, "":
		if cfg.TotalDelay() == 0 {
			return NewNone(rows)
		}
		return NewAsymDeferLockout(rows, clock, cfg)
	case AlgoNone:
		return NewNone(rows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrAlgorithm, algo)
	}
}
