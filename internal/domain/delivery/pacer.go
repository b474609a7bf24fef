package delivery

import (
	"sync"
	"time"
)

// DefaultPaceInterval is the minimum gap between accepted payloads.
const DefaultPaceInterval = 50 * time.Millisecond

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Pacer admits at most one payload per interval, measured from the last
// admitted payload. Payloads arriving sooner are dropped, never queued.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	clock    Clock
	last     time.Time
}

// NewPacer returns a pacer; a non-positive interval admits everything.
func NewPacer(interval time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pacer{interval: interval, clock: clock}
}

// Admit reports whether a payload may go out now and, if so, restarts the interval.
func (p *Pacer) Admit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock.Now()
	if p.interval > 0 && !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return false
	}
	p.last = now
	return true
}

// Force records an admission that bypassed the interval check.
func (p *Pacer) Force() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = p.clock.Now()
}

// Last returns the time of the last admitted payload.
func (p *Pacer) Last() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
