package debounce

import (
	"errors"
	"math"
	"testing"

	"github.com/sweeney/keymatrix/internal/timer"
)

func newTestEngine(t *testing.T, rows int) (*AsymDeferLockout, *timer.Manual) {
	t.Helper()
	clk := timer.NewManual(1000)
	d, err := NewAsymDeferLockout(rows, clk, DefaultConfig())
	if err != nil {
		t.Fatalf("NewAsymDeferLockout: %v", err)
	}
	return d, clk
}

// step advances the clock and runs one scan cycle with an accurate change hint.
func step(d Filter, clk *timer.Manual, ticks uint32, raw, cooked []Row) bool {
	clk.Advance(ticks)
	return d.Debounce(raw, cooked, differs(raw, cooked))
}

func differs(raw, cooked []Row) bool {
	for i := range raw {
		if raw[i] != cooked[i] {
			return true
		}
	}
	return false
}

func counterAt(d *AsymDeferLockout, row, col int) counter {
	return d.counters[row*MatrixCols+col]
}

func TestNewAsymDeferLockout(t *testing.T) {
	d, clk := newTestEngine(t, 4)

	if len(d.counters) != 4*MatrixCols {
		t.Fatalf("counters: got %d, want %d", len(d.counters), 4*MatrixCols)
	}
	for i, c := range d.counters {
		if c.time != idle || !c.pressed {
			t.Fatalf("counter %d: got %+v, want idle and pressed", i, c)
		}
	}
	if d.lastTime != clk.Ticks {
		t.Errorf("lastTime: got %d, want %d", d.lastTime, clk.Ticks)
	}
	if d.total != 17 {
		t.Errorf("total: got %d, want 17", d.total)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", d.Pending())
	}
}

func TestNewAsymDeferLockoutRejectsRows(t *testing.T) {
	for _, rows := range []int{-1, 0, MaxRows + 1} {
		_, err := NewAsymDeferLockout(rows, timer.NewManual(0), DefaultConfig())
		if !errors.Is(err, ErrRows) {
			t.Errorf("rows=%d: got %v, want ErrRows", rows, err)
		}
	}
	if _, err := NewAsymDeferLockout(MaxRows, timer.NewManual(0), DefaultConfig()); err != nil {
		t.Errorf("rows=%d: unexpected error %v", MaxRows, err)
	}
}

func TestNewAsymDeferLockoutRejectsConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"too long", Config{InitialDelay: 100, LockoutPeriod: 28}},
		{"no lockout", Config{InitialDelay: 5, LockoutPeriod: 0}},
		{"no delay", Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAsymDeferLockout(1, timer.NewManual(0), tt.cfg)
			if !errors.Is(err, ErrConfig) {
				t.Errorf("got %v, want ErrConfig", err)
			}
		})
	}
}

func TestNewAsymDeferLockoutNilClock(t *testing.T) {
	if _, err := NewAsymDeferLockout(1, nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil clock")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{DefaultConfig(), false},
		{Config{InitialDelay: 0, LockoutPeriod: 1}, false},
		{Config{InitialDelay: 0, LockoutPeriod: 127}, false},
		{Config{InitialDelay: 100, LockoutPeriod: 27}, false},
		{Config{InitialDelay: 100, LockoutPeriod: 28}, true},
		{Config{InitialDelay: 255, LockoutPeriod: 255}, true},
		{Config{InitialDelay: 1, LockoutPeriod: 0}, true},
		{Config{}, false},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%+v: got err=%v, wantErr=%v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestIdleStable(t *testing.T) {
	d, clk := newTestEngine(t, 2)
	raw := []Row{0x5, 0x80000000}
	cooked := []Row{0x5, 0x80000000}
	readsBefore := clk.Reads

	for i := 0; i < 50; i++ {
		clk.Advance(1)
		if d.Debounce(raw, cooked, false) {
			t.Fatalf("cycle %d: expected no change", i)
		}
	}
	if cooked[0] != 0x5 || cooked[1] != 0x80000000 {
		t.Errorf("cooked changed: %#x %#x", cooked[0], cooked[1])
	}
	if clk.Reads != readsBefore {
		t.Errorf("clock read %d times while idle", clk.Reads-readsBefore)
	}

	// A spurious hint with matching matrices arms nothing.
	clk.Advance(1)
	if d.Debounce(raw, cooked, true) {
		t.Error("expected no change with matching matrices")
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", d.Pending())
	}
}

// TestPressTiming walks one key through arming, the initial delay, the early
// transfer at the start of the lockout window and expiry.
func TestPressTiming(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0}
	cooked := []Row{0}
	const col = 3

	raw[0] = 1 << col
	if step(d, clk, 1, raw, cooked) {
		t.Fatal("arming call must not change cooked")
	}
	c := counterAt(d, 0, col)
	if c.time != 17 || c.pressed {
		t.Fatalf("after arming: got %+v, want time=17 pressed=false", c)
	}
	if cooked[0] != 0 {
		t.Fatalf("cooked changed on arming: %#x", cooked[0])
	}

	// 5 ticks of initial delay bring the counter to the lockout boundary.
	if step(d, clk, 5, raw, cooked) {
		t.Fatal("cooked changed during initial delay")
	}
	if c := counterAt(d, 0, col); c.time != 12 {
		t.Fatalf("after initial delay: time=%d, want 12", c.time)
	}

	// First call inside the lockout window copies the press.
	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected cooked change at lockout start")
	}
	if cooked[0] != 1<<col {
		t.Fatalf("cooked: got %#x, want %#x", cooked[0], 1<<col)
	}
	c = counterAt(d, 0, col)
	if c.time != 11 || !c.pressed {
		t.Fatalf("after transfer: got %+v, want time=11 pressed=true", c)
	}

	// The remaining 11 ticks finish the delay: 5+1+11 = TotalDelay.
	if step(d, clk, 11, raw, cooked) {
		t.Fatal("unexpected change at expiry")
	}
	if c := counterAt(d, 0, col); c.time != idle {
		t.Fatalf("expected idle counter, got time=%d", c.time)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", d.Pending())
	}

	// Settled: further cycles are no-ops and do not touch the clock.
	reads := clk.Reads
	if step(d, clk, 1, raw, cooked) {
		t.Error("unexpected change after settling")
	}
	if clk.Reads != reads {
		t.Error("clock read after settling")
	}
}

func TestReleaseTiming(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0x1}
	cooked := []Row{0x1}

	raw[0] = 0
	step(d, clk, 1, raw, cooked)
	for i := 0; i < DefaultInitialDelay; i++ {
		if step(d, clk, 1, raw, cooked) {
			t.Fatalf("tick %d: release reported during initial delay", i)
		}
		if cooked[0] != 0x1 {
			t.Fatalf("tick %d: cooked changed to %#x", i, cooked[0])
		}
	}
	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected release at lockout start")
	}
	if cooked[0] != 0 {
		t.Errorf("cooked: got %#x, want 0", cooked[0])
	}
}

func TestNoFalseEarlySettle(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0}
	cooked := []Row{0}

	raw[0] = 1
	step(d, clk, 1, raw, cooked)

	for {
		c := counterAt(d, 0, 0)
		if c.time <= DefaultLockoutPeriod {
			break
		}
		if step(d, clk, 1, raw, cooked) {
			t.Fatalf("cooked changed while time=%d > lockout", c.time)
		}
		if cooked[0] != 0 {
			t.Fatalf("press visible while time=%d > lockout", c.time)
		}
	}

	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected transfer on the first call inside the lockout window")
	}
}

func TestEarlyTransferHappensOnce(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0}
	cooked := []Row{0}

	raw[0] = 1
	step(d, clk, 1, raw, cooked)
	step(d, clk, 5, raw, cooked)
	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected transfer")
	}

	// Trailing bounce during the rest of the lockout window is ignored.
	changes := 0
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			raw[0] = 0
		} else {
			raw[0] = 1
		}
		if step(d, clk, 1, raw, cooked) {
			changes++
		}
		if cooked[0] != 1 {
			t.Fatalf("tick %d: cooked toggled to %#x during lockout", i, cooked[0])
		}
	}
	if changes != 0 {
		t.Errorf("change reported %d times after the transfer", changes)
	}
}

func TestRearmGate(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0}
	cooked := []Row{0}

	raw[0] = 1
	step(d, clk, 1, raw, cooked)
	want := uint8(17)

	for i := 0; i < 16; i++ {
		raw[0] ^= 1
		step(d, clk, 1, raw, cooked)
		want--
		if c := counterAt(d, 0, 0); c.time != want {
			t.Fatalf("tick %d: time=%d, want %d (flips must not re-arm)", i, c.time, want)
		}
	}
}

func TestRearmAfterExpiry(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{1}
	cooked := []Row{0}

	step(d, clk, 1, raw, cooked)
	step(d, clk, 5, raw, cooked)
	step(d, clk, 1, raw, cooked)
	step(d, clk, 11, raw, cooked)
	if cooked[0] != 1 || d.Pending() != 0 {
		t.Fatalf("setup: cooked=%#x pending=%d", cooked[0], d.Pending())
	}

	raw[0] = 0
	step(d, clk, 1, raw, cooked)
	c := counterAt(d, 0, 0)
	if c.time != 17 || c.pressed {
		t.Errorf("re-armed counter: got %+v, want time=17 pressed=false", c)
	}
}

func TestElapsedSaturates(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{1}
	cooked := []Row{0}

	step(d, clk, 1, raw, cooked)

	// 256 truncated to 8 bits would be 0 and the cycle would be skipped.
	if !step(d, clk, 256, raw, cooked) {
		t.Fatal("expected the expired counter to transfer")
	}
	if cooked[0] != 1 {
		t.Errorf("cooked: got %#x, want 1", cooked[0])
	}
	if c := counterAt(d, 0, 0); c.time != idle {
		t.Errorf("time: got %d, want idle", c.time)
	}
}

func TestClockWraparound(t *testing.T) {
	clk := timer.NewManual(math.MaxUint32 - 2)
	d, err := NewAsymDeferLockout(1, clk, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	raw := []Row{1}
	cooked := []Row{0}

	step(d, clk, 1, raw, cooked)
	step(d, clk, 5, raw, cooked) // wraps here
	if c := counterAt(d, 0, 0); c.time != 12 {
		t.Fatalf("time across wrap: got %d, want 12", c.time)
	}
	if !step(d, clk, 1, raw, cooked) {
		t.Error("expected transfer after wrap")
	}
}

func TestZeroElapsedSkipsUpdate(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{1}
	cooked := []Row{0}

	step(d, clk, 1, raw, cooked)
	step(d, clk, 5, raw, cooked)

	// Same tick again: nothing moves.
	if step(d, clk, 0, raw, cooked) {
		t.Fatal("expected no change within the same tick")
	}
	if c := counterAt(d, 0, 0); c.time != 12 {
		t.Errorf("time: got %d, want 12", c.time)
	}
	if d.lastTime != clk.Ticks {
		t.Errorf("lastTime: got %d, want %d", d.lastTime, clk.Ticks)
	}
	if !step(d, clk, 1, raw, cooked) {
		t.Error("expected transfer on the next tick")
	}
}

func TestPendingWithoutHint(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{1}
	cooked := []Row{0}

	clk.Advance(1)
	d.Debounce(raw, cooked, true)

	// The hint is false from here on; pending counters must still run.
	clk.Advance(5)
	d.Debounce(raw, cooked, false)
	clk.Advance(1)
	if !d.Debounce(raw, cooked, false) {
		t.Fatal("pending counter was skipped without a hint")
	}
	if cooked[0] != 1 {
		t.Errorf("cooked: got %#x, want 1", cooked[0])
	}
}

// TestEventualConsistencyCoarseSteps checks a held level converges even when
// every cycle advances past the whole lockout window.
func TestEventualConsistencyCoarseSteps(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{1 << 31}
	cooked := []Row{0}

	step(d, clk, 20, raw, cooked)
	if !step(d, clk, 20, raw, cooked) {
		t.Fatal("expected transfer on expiry")
	}
	if cooked[0] != 1<<31 {
		t.Errorf("cooked: got %#x, want %#x", cooked[0], uint32(1<<31))
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", d.Pending())
	}
}

func TestRapidBounceTransfersLockoutValue(t *testing.T) {
	tests := []struct {
		name       string
		atLockout  Row
		wantCooked Row
		wantChange bool
	}{
		{"settles pressed", 1, 1, true},
		{"settles released", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, clk := newTestEngine(t, 1)
			raw := []Row{1}
			cooked := []Row{0}

			step(d, clk, 1, raw, cooked)

			// Bounce 0,1,0,1 one tick apart, all inside the initial delay.
			for i, v := range []Row{0, 1, 0, 1} {
				raw[0] = v
				if step(d, clk, 1, raw, cooked) || cooked[0] != 0 {
					t.Fatalf("bounce %d reached cooked", i)
				}
			}
			raw[0] = tt.atLockout
			step(d, clk, 1, raw, cooked)
			if c := counterAt(d, 0, 0); c.time != DefaultLockoutPeriod {
				t.Fatalf("time: got %d, want %d", c.time, DefaultLockoutPeriod)
			}

			got := step(d, clk, 1, raw, cooked)
			if got != tt.wantChange {
				t.Errorf("changed: got %v, want %v", got, tt.wantChange)
			}
			if cooked[0] != tt.wantCooked {
				t.Errorf("cooked: got %#x, want %#x", cooked[0], tt.wantCooked)
			}
		})
	}
}

// TestPressedTracksOwnBit checks pressed is set from the position's own copy,
// not from an earlier position changing in the same call.
func TestPressedTracksOwnBit(t *testing.T) {
	d, clk := newTestEngine(t, 1)
	raw := []Row{0x3}
	cooked := []Row{0}

	step(d, clk, 1, raw, cooked)
	raw[0] = 0x1 // column 1 bounces back
	step(d, clk, 5, raw, cooked)

	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected column 0 to transfer")
	}
	if cooked[0] != 0x1 {
		t.Fatalf("cooked: got %#x, want 0x1", cooked[0])
	}
	if !counterAt(d, 0, 0).pressed {
		t.Error("column 0: expected pressed")
	}
	if counterAt(d, 0, 1).pressed {
		t.Error("column 1: no-op copy must not mark pressed")
	}

	// Column 1 still gets its transfer while the window is open.
	raw[0] = 0x3
	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected column 1 to transfer")
	}
	if cooked[0] != 0x3 {
		t.Errorf("cooked: got %#x, want 0x3", cooked[0])
	}
}

func TestPositionsAreIndependent(t *testing.T) {
	d, clk := newTestEngine(t, 3)
	raw := []Row{0, 0, 0}
	cooked := []Row{0, 0, 0}

	raw[0] = 1 << 4
	step(d, clk, 1, raw, cooked)
	step(d, clk, 3, raw, cooked)
	raw[2] = 1 << 9
	step(d, clk, 1, raw, cooked)

	if d.Pending() != 2 {
		t.Fatalf("Pending: got %d, want 2", d.Pending())
	}
	if a, b := counterAt(d, 0, 4).time, counterAt(d, 2, 9).time; a != 13 || b != 17 {
		t.Fatalf("times: got %d and %d, want 13 and 17", a, b)
	}

	step(d, clk, 1, raw, cooked)
	if !step(d, clk, 1, raw, cooked) {
		t.Fatal("expected row 0 transfer")
	}
	if cooked[0] != 1<<4 || cooked[2] != 0 {
		t.Fatalf("cooked: %#x %#x %#x", cooked[0], cooked[1], cooked[2])
	}

	for i := 0; i < 20; i++ {
		step(d, clk, 1, raw, cooked)
	}
	if cooked[0] != 1<<4 || cooked[1] != 0 || cooked[2] != 1<<9 {
		t.Errorf("final cooked: %#x %#x %#x", cooked[0], cooked[1], cooked[2])
	}
	if d.Pending() != 0 {
		t.Errorf("Pending: got %d, want 0", d.Pending())
	}
}

func TestDebounceAfterClosePanics(t *testing.T) {
	d, _ := newTestEngine(t, 1)
	d.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	d.Debounce([]Row{0}, []Row{0}, true)
}

func TestDebounceRowMismatchPanics(t *testing.T) {
	d, _ := newTestEngine(t, 2)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	d.Debounce([]Row{0}, []Row{0}, true)
}
