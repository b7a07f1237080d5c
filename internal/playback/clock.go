// Package playback implements the playhead clock: a small state machine that
// advances the current time by wall-clock delta while playing.
package playback

import (
	"sync"
	"time"
)

type State string

const (
	Stopped State = "stopped"
	Playing State = "playing"
	Seeking State = "seeking"
)

// DefaultTickInterval approximates one display frame at 60Hz.
const DefaultTickInterval = time.Second / 60

// Ticker is the subset of *time.Ticker the clock needs, so tests can drive
// ticks by hand.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) Chan() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()                  { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }

// Update is delivered to listeners after every state or position change.
type Update struct {
	State    State
	Position time.Duration
	Duration time.Duration
}

type Option func(*Clock)

func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

func WithTicker(factory func(time.Duration) Ticker) Option {
	return func(c *Clock) { c.newTicker = factory }
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithoutTicker disables the internal ticker goroutine. The owner then calls
// Advance once per display frame.
func WithoutTicker() Option {
	return func(c *Clock) { c.newTicker = nil }
}

// Clock tracks the playhead of one project. The zero value is not usable; use
// New.
type Clock struct {
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	interval  time.Duration

	mu         sync.Mutex
	state      State
	position   time.Duration
	duration   time.Duration
	loop       bool
	lastTick   time.Time
	generation uint64
	stop       chan struct{}
	listeners  []func(Update)
	closed     bool

	wg sync.WaitGroup
}

func New(duration time.Duration, opts ...Option) *Clock {
	if duration < 0 {
		duration = 0
	}
	c := &Clock{
		now:       time.Now,
		newTicker: newStdTicker,
		interval:  DefaultTickInterval,
		state:     Stopped,
		duration:  duration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *Clock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetLoop makes playback wrap to zero at the end instead of stopping.
func (c *Clock) SetLoop(loop bool) {
	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()
}

// OnUpdate registers a listener. Listeners run outside the clock's lock but
// must not call Close.
func (c *Clock) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Play starts advancing from the current position. Playing from the end
// restarts at zero.
func (c *Clock) Play() {
	c.mu.Lock()
	if c.closed || c.state == Playing {
		c.mu.Unlock()
		return
	}
	if c.position >= c.duration {
		c.position = 0
	}
	c.startLocked()
	c.emitUnlock()
}

// Pause stops at the current time, including whatever elapsed since the last
// tick.
func (c *Clock) Pause() {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.accumulateLocked()
	if c.state == Playing {
		c.haltLocked()
	}
	c.emitUnlock()
}

// Seek moves the playhead to t clamped to [0, duration] and returns to the
// state the clock was in before the seek.
func (c *Clock) Seek(t time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prior := c.state
	if prior == Playing {
		c.haltLocked()
	}
	c.state = Seeking
	c.generation++
	c.position = c.clampLocked(t)

	if prior == Playing && (c.position < c.duration || c.loop) {
		c.startLocked()
	} else {
		c.state = Stopped
	}
	c.emitUnlock()
}

// SetDuration changes the project length, pulling the playhead back inside it.
func (c *Clock) SetDuration(d time.Duration) {
	c.mu.Lock()
	if d < 0 {
		d = 0
	}
	c.duration = d
	if c.position > d {
		c.position = d
		if c.state == Playing && !c.loop {
			c.haltLocked()
		}
	}
	c.emitUnlock()
}

// Advance applies the wall-clock time elapsed since the previous tick. It is
// what the ticker goroutine calls; owners built with WithoutTicker call it
// once per display frame.
func (c *Clock) Advance() {
	c.mu.Lock()
	c.advanceLocked(c.generation)
}

func (c *Clock) advanceLocked(gen uint64) {
	if gen != c.generation || c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.accumulateLocked()
	c.emitUnlock()
}

// accumulateLocked adds the elapsed wall time and handles the end boundary.
func (c *Clock) accumulateLocked() {
	now := c.now()
	delta := now.Sub(c.lastTick)
	c.lastTick = now
	if delta < 0 {
		delta = 0
	}
	c.position += delta

	if c.position < c.duration {
		return
	}
	if c.loop && c.duration > 0 {
		c.position %= c.duration
		return
	}
	c.position = c.duration
	c.haltLocked()
}

func (c *Clock) clampLocked(t time.Duration) time.Duration {
	if t < 0 {
		return 0
	}
	if t > c.duration {
		return c.duration
	}
	return t
}

// startLocked enters Playing under a fresh generation and starts a ticker
// goroutine bound to it.
func (c *Clock) startLocked() {
	c.state = Playing
	c.generation++
	c.lastTick = c.now()
	if c.newTicker == nil {
		return
	}

	gen := c.generation
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.newTicker(c.interval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				c.mu.Lock()
				c.advanceLocked(gen)
			}
		}
	}()
}

// haltLocked leaves Playing and invalidates any tick already in flight.
func (c *Clock) haltLocked() {
	c.state = Stopped
	c.generation++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// emitUnlock snapshots the state, releases the lock and notifies listeners.
func (c *Clock) emitUnlock() {
	u := Update{State: c.state, Position: c.position, Duration: c.duration}
	listeners := make([]func(Update), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// Close stops playback and waits for the ticker goroutine to exit.
func (c *Clock) Close() {
	c.mu.Lock()
	if c.state == Playing {
		c.haltLocked()
	}
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
