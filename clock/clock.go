package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is a monotonic millisecond time source that can also arm deferred
// callbacks. All timing in the recorder, scheduler and room manager goes
// through it so tests can drive time by hand.
type Clock interface {
	NowMs() int64
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a callback armed with AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

type realClock struct {
	start   time.Time
	startMs int64
}

// New returns a clock backed by the host's monotonic timer. Readings are the
// Unix milliseconds at creation plus the monotonic time elapsed since, so they
// read as wall time but never jump when the wall clock is adjusted.
func New() Clock {
	now := time.Now()
	return &realClock{start: now, startMs: now.UnixMilli()}
}

func (c *realClock) NowMs() int64 {
	return c.startMs + time.Since(c.start).Milliseconds()
}

func (c *realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a Clock that only moves when Advance or Set is called. Due
// callbacks run synchronously on the advancing goroutine, ordered by due time
// and then by the order they were armed.
type Manual struct {
	mu     sync.Mutex
	now    int64
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	c      *Manual
	due    int64
	seq    uint64
	f      func()
	active bool
}

// NewManual returns a manual clock starting at startMs.
func NewManual(startMs int64) *Manual {
	return &Manual{now: startMs}
}

func (c *Manual) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Manual) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{c: c, due: c.now + d.Milliseconds(), seq: c.seq, f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	return true
}

// Advance moves the clock forward by d, firing every callback that comes due.
func (c *Manual) Advance(d time.Duration) {
	c.Set(c.NowMs() + d.Milliseconds())
}

// Set moves the clock to the absolute time ms. Moving backwards only updates
// the reading; nothing fires.
func (c *Manual) Set(ms int64) {
	for {
		c.mu.Lock()
		next := c.nextDue(ms)
		if next == nil {
			c.now = ms
			c.mu.Unlock()
			return
		}
		// callbacks observe their own due time as "now"
		if next.due > c.now {
			c.now = next.due
		}
		next.active = false
		f := next.f
		c.mu.Unlock()
		f()
	}
}

// Pending returns how many armed callbacks have not fired or been stopped.
func (c *Manual) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compact()
	return len(c.timers)
}

func (c *Manual) nextDue(limit int64) *manualTimer {
	c.compact()
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due != c.timers[j].due {
			return c.timers[i].due < c.timers[j].due
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	if len(c.timers) == 0 || c.timers[0].due > limit {
		return nil
	}
	return c.timers[0]
}

func (c *Manual) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.active {
			live = append(live, t)
		}
	}
	c.timers = live
}
