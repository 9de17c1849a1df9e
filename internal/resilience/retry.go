// Package resilience classifies request outcomes and schedules retry delays
// for calls to the remote patient API.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy holds the bounded retry schedule for one page fetch. Delays grow
// linearly with the attempt number for throttling and network failures and
// stay flat for rejected or malformed responses.
type Policy struct {
	// MaxAttempts is the total number of attempts per page. Default: 8.
	MaxAttempts int

	// ThrottleBase and ThrottleStep give base + attempt*step for ClassThrottled.
	ThrottleBase time.Duration
	ThrottleStep time.Duration

	// FlatDelay applies to ClassRejected and ClassMalformed.
	FlatDelay time.Duration

	// NetworkBase and NetworkStep give base + attempt*step for ClassNetwork.
	NetworkBase time.Duration
	NetworkStep time.Duration
}

// DefaultPolicy returns the reference schedule.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  8,
		ThrottleBase: 600 * time.Millisecond,
		ThrottleStep: 250 * time.Millisecond,
		FlatDelay:    400 * time.Millisecond,
		NetworkBase:  500 * time.Millisecond,
		NetworkStep:  200 * time.Millisecond,
	}
}

// Delay returns how long to wait after a failed attempt. Attempts count from 1.
func (p Policy) Delay(c Class, attempt int) time.Duration {
	n := time.Duration(attempt)
	switch c {
	case ClassThrottled:
		return p.ThrottleBase + n*p.ThrottleStep
	case ClassRejected, ClassMalformed:
		return p.FlatDelay
	case ClassNetwork:
		return p.NetworkBase + n*p.NetworkStep
	default:
		return 0
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d. It returns ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns a callback that logs each retry of a page fetch.
func RetryLogger(log *zap.Logger) func(page, attempt int, o Outcome, c Class, delay time.Duration) {
	return func(page, attempt int, o Outcome, c Class, delay time.Duration) {
		fields := []zap.Field{
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Stringer("class", c),
			zap.Duration("delay", delay),
		}
		if o.StatusCode != 0 {
			fields = append(fields, zap.Int("status", o.StatusCode))
		}
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
		}
		log.Warn("retrying page fetch", fields...)
	}
}
