package utils

import "time"

// Clock abstracts "now" so availability-window and expiry logic can be
// tested without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// FixedClock always returns t. Test helper.
type FixedClock struct {
	T time.Time
}

func (f *FixedClock) Now() time.Time { return f.T }

// Advance moves the fixed clock forward.
func (f *FixedClock) Advance(d time.Duration) { f.T = f.T.Add(d) }
