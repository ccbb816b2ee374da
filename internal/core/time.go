// Package core holds the value types and external-collaborator
// interfaces shared by every signal-to-trade core component: price
// and trade events, the clock abstraction, and the boundary
// interfaces to market-data feeds, swap execution, and persistence.
package core

import "time"

// Timestamp is monotonic milliseconds since epoch. Every rolling
// window and TTL expiry decision is made against a Timestamp, never
// against wall-clock reads taken mid-computation, so pure components
// (Pump Detector, Scoring Engine, Safety Analyzer) produce the same
// output for the same input regardless of when they happen to run.
type Timestamp int64

// Now wraps time.Now for production Clock implementations.
func Now() Timestamp { return Timestamp(time.Now().UnixMilli()) }

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

// Time converts back to a time.Time (for logging/formatting only).
func (t Timestamp) Time() time.Time { return time.UnixMilli(int64(t)) }

// Add returns t shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d.Milliseconds())
}

// Sub returns the duration between two timestamps (t - o).
func (t Timestamp) Sub(o Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(o)) * time.Millisecond
}

func (t Timestamp) Before(o Timestamp) bool { return t < o }
func (t Timestamp) After(o Timestamp) bool  { return t > o }

// Clock abstracts "now" so every component takes its time source as
// a dependency instead of calling time.Now() directly.
type Clock interface {
	Now() Timestamp
}

// RealClock is the production Clock backed by the system clock.
type RealClock struct{}

func (RealClock) Now() Timestamp { return Now() }

// FakeClock is a controllable Clock for tests.
type FakeClock struct {
	at Timestamp
}

// NewFakeClock returns a FakeClock starting at t.
func NewFakeClock(t Timestamp) *FakeClock { return &FakeClock{at: t} }

func (f *FakeClock) Now() Timestamp { return f.at }

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) { f.at = f.at.Add(d) }

// Set moves the fake clock to an absolute timestamp.
func (f *FakeClock) Set(t Timestamp) { f.at = t }
