package guard

import (
	"sync"
	"time"
)

// bucket is one token bucket for a single caller and operation class.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// bucketSet holds the buckets of one operation class, all sharing a
// capacity and refill rate.
type bucketSet struct {
	capacity   float64
	refillRate float64 // tokens per second
	buckets    map[string]*bucket
}

func newBucketSet(rpm int) *bucketSet {
	return &bucketSet{
		capacity:   float64(rpm),
		refillRate: float64(rpm) / 60,
		buckets:    make(map[string]*bucket),
	}
}

// take refills the caller's bucket proportionally to elapsed time, capped at
// capacity, then deducts one token if available. Nothing is deducted on
// rejection.
func (s *bucketSet) take(caller string, now time.Time) bool {
	b, ok := s.buckets[caller]
	if !ok {
		b = &bucket{tokens: s.capacity, lastRefill: now}
		s.buckets[caller] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(s.capacity, b.tokens+elapsed*s.refillRate)
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

// RateLimiter applies per-caller token-bucket admission control, with
// separate buckets for read and write operation classes. Writes throttle
// much faster than reads.
type RateLimiter struct {
	mu    sync.Mutex
	now   func() time.Time
	read  *bucketSet
	write *bucketSet
}

// NewRateLimiter creates a limiter admitting readRPM read requests and
// writeRPM write requests per caller per minute.
func NewRateLimiter(readRPM, writeRPM int) *RateLimiter {
	return &RateLimiter{
		now:   time.Now,
		read:  newBucketSet(readRPM),
		write: newBucketSet(writeRPM),
	}
}

// AllowRead reports whether a read request from the caller is admitted.
func (l *RateLimiter) AllowRead(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read.take(caller, l.now())
}

// AllowWrite reports whether a write request from the caller is admitted.
func (l *RateLimiter) AllowWrite(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write.take(caller, l.now())
}

// ReadRPM returns the configured read capacity, for rejection messages.
func (l *RateLimiter) ReadRPM() int { return int(l.read.capacity) }

// WriteRPM returns the configured write capacity, for rejection messages.
func (l *RateLimiter) WriteRPM() int { return int(l.write.capacity) }
