// Package ratelimit provides an injectable date-keyed daily counter for
// the global research rate limit.
package ratelimit

import (
	"sync"
	"time"
)

// DailyCounter enforces a process-wide daily operation quota. The counter
// resets on date rollover and is safe for concurrent use.
type DailyCounter struct {
	mu    sync.Mutex
	limit int
	date  string
	count int
	now   func() time.Time
}

// NewDailyCounter creates a counter with the given daily limit. A limit of
// zero or less disables the quota.
func NewDailyCounter(limit int) *DailyCounter {
	return &DailyCounter{limit: limit, now: time.Now}
}

// WithNow fixes the counter's clock for testing.
func (c *DailyCounter) WithNow(now func() time.Time) *DailyCounter {
	c.now = now
	return c
}

// Allow increments and compares atomically: it returns true and consumes
// one unit when under the limit, false otherwise.
func (c *DailyCounter) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover()
	if c.limit > 0 && c.count >= c.limit {
		return false
	}
	c.count++
	return true
}

// Remaining reports how many units are left today.
func (c *DailyCounter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover()
	if c.limit <= 0 {
		return -1
	}
	if c.count >= c.limit {
		return 0
	}
	return c.limit - c.count
}

// Reset clears the counter for the current date.
func (c *DailyCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.date = c.today()
}

func (c *DailyCounter) rollover() {
	if today := c.today(); today != c.date {
		c.date = today
		c.count = 0
	}
}

func (c *DailyCounter) today() string {
	return c.now().UTC().Format("2006-01-02")
}
