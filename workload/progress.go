package workload

import "sync/atomic"

// PublishInterval is how many steps a loop accumulates locally before
// storing into its Counter. A concurrent reader may lag by fewer steps
// than this.
const PublishInterval = 16

const publishMask = PublishInterval - 1

// Counter is a single-writer progress counter. The writing loop owns it;
// any goroutine may Load it at any time without blocking.
type Counter struct {
	v atomic.Uint64
}

// Load returns the last published value.
func (c *Counter) Load() uint64 {
	return c.v.Load()
}

// Store publishes v. Only the owning loop may call Store, and it must
// never store a smaller value than it stored before.
func (c *Counter) Store(v uint64) {
	c.v.Store(v)
}
