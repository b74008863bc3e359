// Package breakers wraps sony/gobreaker with the trip policy used for
// all upstream market data calls.
package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker shields an upstream source. It trips on three consecutive
// failures, or a >5% failure rate once twenty requests have been seen.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// New creates a named breaker with a 60s counting interval and a 60s
// open-state timeout.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	return b.cb.State() == cb.StateOpen
}
