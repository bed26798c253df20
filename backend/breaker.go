package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes WithBreaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Default: 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open. Default: 30s.
	OpenTimeout time.Duration
	// OnStateChange is called on every transition.
	OnStateChange func(name, from, to string)
}

// Breaker fails fast once a backend keeps failing at the transport
// level. Auth, malformed-output and request errors do not count: they
// say nothing about the service being down.
type Breaker struct {
	Backend
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps b in a circuit breaker.
func WithBreaker(b Backend, s BreakerSettings) *Breaker {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	timeout := s.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        b.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !(errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited))
		},
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, from.String(), to.String())
		}
	}
	return &Breaker{Backend: b, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) TranslateBatch(ctx context.Context, req Request) (map[string]string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.Backend.TranslateBatch(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s circuit open: %w", ErrTransport, b.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return out.(map[string]string), nil
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
