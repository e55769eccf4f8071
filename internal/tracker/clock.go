package tracker

import "time"

// Clock is the engine's time source. Everything in this package reads time
// through it so tests can pin and advance the clock deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TestClock holds a fixed instant. Advance moves it forward; nothing moves
// it otherwise, so elapsed times in tests are exact.
type TestClock struct {
	CurrentTime time.Time
}

func (t *TestClock) Now() time.Time { return t.CurrentTime }

func (t *TestClock) Advance(d time.Duration) {
	t.CurrentTime = t.CurrentTime.Add(d)
}
