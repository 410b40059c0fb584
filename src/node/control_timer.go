package node

import (
	"context"
	"sync/atomic"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the gossip initiator. It ticks once per period, and the
// period is chosen again after every tick through Reset, so the node can slow
// down when it has nothing to say.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the heartbeatTimer
	stopCh       chan struct{}      //receives instruction to stop the heartbeatTimer
	set          int32
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
	}
}

// NewFixedControlTimer ticks exactly once per period.
func NewFixedControlTimer() *ControlTimer {
	fixedTimeout := func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		return time.After(d)
	}
	return NewControlTimer(fixedTimeout)
}

// Run starts the timer with period init and returns when ctx is done.
func (c *ControlTimer) Run(ctx context.Context, init time.Duration) {
	setTimer := func(t time.Duration) <-chan time.Time {
		atomic.StoreInt32(&c.set, 1)
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			timer = nil
			if !c.tick(ctx) {
				return
			}
			atomic.StoreInt32(&c.set, 0)
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			atomic.StoreInt32(&c.set, 0)
		case <-ctx.Done():
			atomic.StoreInt32(&c.set, 0)
			return
		}
	}
}

// tick delivers a tick. Resets received in the meantime are dropped, since
// the listener resets the timer after every tick anyway. It returns false if
// ctx is done.
func (c *ControlTimer) tick(ctx context.Context) bool {
	for {
		select {
		case c.tickCh <- struct{}{}:
			return true
		case <-c.resetCh:
		case <-c.stopCh:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// Ticks returns the channel the timer ticks on.
func (c *ControlTimer) Ticks() <-chan struct{} {
	return c.tickCh
}

// IsSet reports whether a tick is scheduled.
func (c *ControlTimer) IsSet() bool {
	return atomic.LoadInt32(&c.set) == 1
}

// Reset schedules the next tick in d. It gives up if ctx is done.
func (c *ControlTimer) Reset(ctx context.Context, d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-ctx.Done():
	}
}

// Stop cancels the scheduled tick.
func (c *ControlTimer) Stop(ctx context.Context) {
	select {
	case c.stopCh <- struct{}{}:
	case <-ctx.Done():
	}
}
