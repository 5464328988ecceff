package relay

import (
	"errors"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// ErrClosed is returned by Push once the sentinel has been queued.
var ErrClosed = errors.New("relay channel closed")

// Channel is an unbounded FIFO of events terminated by exactly one sentinel.
// Any number of goroutines may Push; a single consumer calls Receive.
//
// Push never blocks, so a slow consumer never stalls the engine. The queue has
// no depth bound.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []core.Event
	closed bool
	pushed int
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	c := &Channel{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Push appends ev. It returns ErrClosed after Close.
func (c *Channel) Push(ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.queue = append(c.queue, ev)
	c.pushed++
	c.cond.Signal()
	return nil
}

// Close queues the sentinel. Only the first call has an effect; events pushed
// before it are still delivered.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cond.Broadcast()
}

// Receive blocks until an event is available and returns it with ok == true.
// Once the queue is drained and the sentinel reached it returns ok == false,
// on this and every later call.
func (c *Channel) Receive() (core.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if len(c.queue) == 0 {
		return nil, false
	}
	ev := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return ev, true
}

// Len returns the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Pushed returns the number of events accepted so far.
func (c *Channel) Pushed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed
}

// Closed reports whether the sentinel has been queued.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
