package node

import (
	"math/rand"
	"sync"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the heartbeat of a Node. After every tick the timer
// stays off until the node resets it, so ticks never pile up while the node
// is busy creating an event.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	shutdownOnce sync.Once
}

// NewControlTimer creates a ControlTimer around a timer factory.
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRandomControlTimer creates a ControlTimer that waits between min and
// 2*min, which keeps the nodes of a simulation from ticking in lockstep.
func NewRandomControlTimer() *ControlTimer {
	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min == 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return time.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Run starts the timer with an initial timeout and returns on Shutdown.
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.stopCh:
			timer = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset restarts the timer with timeout t.
func (c *ControlTimer) Reset(t time.Duration) {
	select {
	case c.resetCh <- t:
	case <-c.shutdownCh:
	}
}

// Stop turns the timer off until the next Reset.
func (c *ControlTimer) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	case <-c.shutdownCh:
	}
}

// Shutdown stops the Run loop. It can be called more than once.
func (c *ControlTimer) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
	})
}
