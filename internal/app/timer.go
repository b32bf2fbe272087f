package app

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimerRegistry drives per-room countdowns. At most one timer runs per room;
// starting a new one replaces the old. Cancel is idempotent and safe after
// expiry, and a cancelled timer never fires its expiry callback.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*countdown
	tick   time.Duration
}

type countdown struct {
	remaining int64
	stop      chan struct{}
	once      sync.Once
}

func NewTimerRegistry() *TimerRegistry {
	return NewTimerRegistryWithTick(time.Second)
}

// NewTimerRegistryWithTick sets the wall-clock length of one countdown
// second. Tests shrink it to keep countdowns fast.
func NewTimerRegistryWithTick(tick time.Duration) *TimerRegistry {
	return &TimerRegistry{
		timers: make(map[string]*countdown),
		tick:   tick,
	}
}

// Start begins a countdown of seconds for roomID, cancelling any countdown
// already running for that room. onTick receives each remaining value down
// to 1; onExpire fires once when the countdown reaches zero. Callbacks run
// on the timer goroutine.
func (r *TimerRegistry) Start(roomID string, seconds int, onTick func(remaining int), onExpire func()) {
	c := &countdown{
		remaining: int64(seconds),
		stop:      make(chan struct{}),
	}

	r.mu.Lock()
	if prev, ok := r.timers[roomID]; ok {
		prev.once.Do(func() { close(prev.stop) })
	}
	r.timers[roomID] = c
	r.mu.Unlock()

	go r.run(roomID, c, onTick, onExpire)
}

func (r *TimerRegistry) run(roomID string, c *countdown, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			rem := atomic.AddInt64(&c.remaining, -1)
			if rem > 0 {
				if onTick != nil {
					onTick(int(rem))
				}
				continue
			}

			// Claim expiry under the lock so a concurrent Cancel or Start
			// either wins outright or loses outright.
			r.mu.Lock()
			current := r.timers[roomID] == c
			if current {
				delete(r.timers, roomID)
			}
			r.mu.Unlock()
			if current {
				onExpire()
			}
			return
		}
	}
}

// Cancel stops the room's countdown if one is running.
func (r *TimerRegistry) Cancel(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.timers[roomID]; ok {
		delete(r.timers, roomID)
		c.once.Do(func() { close(c.stop) })
	}
}

// Pause cancels the room's countdown and returns the seconds it had left.
// ok is false when no countdown was running.
func (r *TimerRegistry) Pause(roomID string) (remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.timers[roomID]
	if !ok {
		return 0, false
	}
	delete(r.timers, roomID)
	c.once.Do(func() { close(c.stop) })
	rem := atomic.LoadInt64(&c.remaining)
	if rem < 0 {
		rem = 0
	}
	return int(rem), true
}

// Active reports whether a countdown is running for the room.
func (r *TimerRegistry) Active(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[roomID]
	return ok
}

// Remaining returns the seconds left on the room's countdown, 0 when idle.
func (r *TimerRegistry) Remaining(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.timers[roomID]; ok {
		return int(atomic.LoadInt64(&c.remaining))
	}
	return 0
}
