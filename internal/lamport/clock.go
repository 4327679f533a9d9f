package lamport

import "sync"

// Clock is a Lamport logical clock shared by the accept loop, the request
// worker and the checkpointer. All operations are serialized by an internal
// mutex.
type Clock struct {
	mu   sync.Mutex
	time int64
}

// New returns a clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// Current returns the clock value without ticking. The connection handshake
// advertises this value: it reports what the node knows now, the tick happens
// later when the request itself is observed.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// TickSend increments the clock for an outbound message and returns the new
// value.
func (c *Clock) TickSend() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time++
	return c.time
}

// Observe merges a remote timestamp: the clock becomes max(local, remote)+1.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.time {
		c.time = remote
	}
	c.time++
}

// Restore overwrites the clock value from a checkpoint.
func (c *Clock) Restore(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = t
}
