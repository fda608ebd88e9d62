package rtp

import "time"

// TimeProvider abstracts the clock so jitter buffer timing can be
// driven deterministically in tests.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// NewRealTimeProvider returns a TimeProvider backed by the wall clock.
func NewRealTimeProvider() TimeProvider { return realTimeProvider{} }
