package util

import (
	"context"
	"strconv"
	"time"
)

// Clock returns the current time. Services take one so tests can pin timestamps.
type Clock func() time.Time

func SystemClock() Clock {
	return time.Now
}

// UnixStamp formats t as whole unix seconds, the form used in artifact names
// and cache-busting query parameters.
func UnixStamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// Sleep blocks for d or until ctx is done. It returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
