package ordering

import (
	"sync/atomic"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// BatchTimer signals on TickCh when the current batch is due. Reset arms it,
// Stop disarms it. Ticks are never queued more than one deep, so the owner
// can call Reset or Stop while handling a tick.
type BatchTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //signals that the timer expired
	resetCh      chan time.Duration //(re)arms the timer
	stopCh       chan struct{}      //disarms the timer
	shutdownCh   chan struct{}      //exits the Run loop
	set          int32
}

// NewBatchTimer ...
func NewBatchTimer(timerFactory timerFactory) *BatchTimer {
	return &BatchTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}, 1),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewRealBatchTimer returns a BatchTimer backed by time.After.
func NewRealBatchTimer() *BatchTimer {
	return NewBatchTimer(func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			d = time.Millisecond
		}
		return time.After(d)
	})
}

// Run is the timer loop. It starts disarmed.
func (c *BatchTimer) Run() {
	var timer <-chan time.Time

	for {
		select {
		case <-timer:
			timer = nil
			atomic.StoreInt32(&c.set, 0)
			select {
			case c.tickCh <- struct{}{}:
			default:
			}
		case d := <-c.resetCh:
			atomic.StoreInt32(&c.set, 1)
			timer = c.timerFactory(d)
		case <-c.stopCh:
			atomic.StoreInt32(&c.set, 0)
			timer = nil
		case <-c.shutdownCh:
			atomic.StoreInt32(&c.set, 0)
			return
		}
	}
}

// TickCh ...
func (c *BatchTimer) TickCh() <-chan struct{} {
	return c.tickCh
}

// Reset arms the timer to fire after d.
func (c *BatchTimer) Reset(d time.Duration) {
	select {
	case c.resetCh <- d:
	case <-c.shutdownCh:
	}
}

// Stop disarms the timer.
func (c *BatchTimer) Stop() {
	select {
	case c.stopCh <- struct{}{}:
	case <-c.shutdownCh:
	}
}

// Set reports whether the timer is armed.
func (c *BatchTimer) Set() bool {
	return atomic.LoadInt32(&c.set) == 1
}

// Shutdown stops the Run loop.
func (c *BatchTimer) Shutdown() {
	close(c.shutdownCh)
}
