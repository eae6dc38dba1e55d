package core

import "time"

// Clock measures wall time between Start and the last Update.
type Clock struct {
	start   time.Time
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.start.IsZero() {
		c.elapsed = time.Since(c.start)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

// Elapsed returns the elapsed time in seconds.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}
