package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type scriptedBackend struct {
	calls int
	err   error
}

func (s *scriptedBackend) Name() string     { return "scripted" }
func (s *scriptedBackend) Model() string    { return "m" }
func (s *scriptedBackend) Endpoint() string { return "" }

func (s *scriptedBackend) TranslateBatch(ctx context.Context, req Request) (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return map[string]string{"s0": "ok"}, nil
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	inner := &scriptedBackend{err: fmt.Errorf("%w: connection refused", ErrTransport)}
	var transitions []string
	b := WithBreaker(inner, BreakerSettings{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Hour,
		OnStateChange: func(name, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := b.TranslateBatch(context.Background(), batch()); !errors.Is(err, ErrTransport) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	_, err := b.TranslateBatch(context.Background(), batch())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("open circuit err = %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner called %d times through an open circuit", inner.calls)
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Fatalf("transitions = %v", transitions)
	}
}

func TestBreakerIgnoresNonTransportErrors(t *testing.T) {
	inner := &scriptedBackend{err: fmt.Errorf("%w: bad json", ErrMalformedOutput)}
	b := WithBreaker(inner, BreakerSettings{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		if _, err := b.TranslateBatch(context.Background(), batch()); !errors.Is(err, ErrMalformedOutput) {
			t.Fatalf("err = %v", err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("state = %s, want closed", b.State())
	}

	inner.err = nil
	out, err := b.TranslateBatch(context.Background(), batch())
	if err != nil || out["s0"] != "ok" {
		t.Fatalf("out = %v, err = %v", out, err)
	}
}
