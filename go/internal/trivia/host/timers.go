package host

import (
	"context"
	"sync"

	"time"

	"github.com/jonboulle/clockwork"
)

// timerSet owns the machine's one-shot timers. At most one is live at a
// time; scheduling a new one cancels the previous. Cancellation stops and
// drains the underlying timer so a fired-but-unread expiration cannot leak
// into a later round.
type timerSet struct {
	clock clockwork.Clock

	mu     sync.Mutex
	active clockwork.Timer
}

func newTimerSet(clock clockwork.Clock) *timerSet {
	return &timerSet{clock: clock}
}

// schedule arms a one-shot timer and invokes fire from a goroutine when it
// expires. A cancelled timer never calls fire.
func (ts *timerSet) schedule(ctx context.Context, d time.Duration, fire func()) {
	timer := ts.clock.NewTimer(d)

	ts.mu.Lock()
	if ts.active != nil {
		stopAndDrainTimer(ts.active)
	}
	ts.active = timer
	ts.mu.Unlock()

	go func() {
		select {
		case <-timer.Chan():
			ts.mu.Lock()
			if ts.active == timer {
				ts.active = nil
			}
			ts.mu.Unlock()
			fire()
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		}
	}()
}

// cancelAll stops the live timer, if any.
func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.active != nil {
		stopAndDrainTimer(ts.active)
		ts.active = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot observe a stale expiration. Pattern from the
// time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
