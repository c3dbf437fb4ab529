package ports

import (
	"context"
	"time"
)

// AdapterGuard runs a call to a named external adapter under retry and circuit-breaker protection.
type AdapterGuard interface {
	Call(ctx context.Context, adapter string, fn func(context.Context) error) error
}

// SystemClock is the wall-clock Clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
