package sink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

// Channel hands events to an in-process consumer. Publish never blocks: when
// the buffer is full the event is dropped and counted.
type Channel struct {
	mu      sync.RWMutex
	ch      chan event.Event
	closed  bool
	dropped atomic.Uint64
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 256
	}
	return &Channel{ch: make(chan event.Event, size)}
}

func (c *Channel) C() <-chan event.Event {
	return c.ch
}

func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Channel) Publish(_ context.Context, e event.Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- e:
	default:
		c.dropped.Add(1)
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}
