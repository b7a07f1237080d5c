package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"keyframes-backend/internal/playback"
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  { f.once.Do(func() { close(f.stopped) }) }

func manualClock(duration time.Duration) (*playback.Clock, *fakeTime) {
	ft := newFakeTime()
	return playback.New(duration, playback.WithNow(ft.Now), playback.WithoutTicker()), ft
}

func TestSeek_Clamps(t *testing.T) {
	c, _ := manualClock(10 * time.Second)

	c.Seek(-5)
	assert.Equal(t, time.Duration(0), c.Position())

	c.Seek(10*time.Second + 100)
	assert.Equal(t, 10*time.Second, c.Position())

	c.Seek(3 * time.Second)
	assert.Equal(t, 3*time.Second, c.Position())
	assert.Equal(t, playback.Stopped, c.State())
}

func TestPlay_StopsAtDuration(t *testing.T) {
	c, ft := manualClock(5 * time.Second)

	c.Play()
	assert.Equal(t, playback.Playing, c.State())

	ft.Add(2 * time.Second)
	c.Advance()
	assert.Equal(t, 2*time.Second, c.Position())

	ft.Add(3 * time.Second)
	c.Advance()
	assert.Equal(t, playback.Stopped, c.State())
	assert.Equal(t, 5*time.Second, c.Position())

	ft.Add(time.Second)
	c.Advance()
	assert.Equal(t, 5*time.Second, c.Position())
}

func TestPlay_OvershootClampsToDuration(t *testing.T) {
	c, ft := manualClock(time.Second)

	c.Play()
	ft.Add(1700 * time.Millisecond)
	c.Advance()

	assert.Equal(t, playback.Stopped, c.State())
	assert.Equal(t, time.Second, c.Position())
}

func TestPlay_FromEndRestarts(t *testing.T) {
	c, ft := manualClock(time.Second)
	c.Seek(time.Second)

	c.Play()
	ft.Add(250 * time.Millisecond)
	c.Advance()

	assert.Equal(t, 250*time.Millisecond, c.Position())
}

func TestLoop_WrapsAround(t *testing.T) {
	c, ft := manualClock(time.Second)
	c.SetLoop(true)

	c.Play()
	ft.Add(1300 * time.Millisecond)
	c.Advance()

	assert.Equal(t, playback.Playing, c.State())
	assert.Equal(t, 300*time.Millisecond, c.Position())
}

func TestPause_CommitsElapsedAndIgnoresLaterTicks(t *testing.T) {
	c, ft := manualClock(10 * time.Second)

	c.Play()
	ft.Add(400 * time.Millisecond)
	c.Pause()
	assert.Equal(t, playback.Stopped, c.State())
	assert.Equal(t, 400*time.Millisecond, c.Position())

	ft.Add(time.Second)
	c.Advance()
	assert.Equal(t, 400*time.Millisecond, c.Position())
}

func TestSeek_WhilePlayingKeepsPlayingFromNewPosition(t *testing.T) {
	c, ft := manualClock(10 * time.Second)

	c.Play()
	ft.Add(time.Second)
	c.Seek(6 * time.Second)
	assert.Equal(t, playback.Playing, c.State())

	ft.Add(500 * time.Millisecond)
	c.Advance()
	assert.Equal(t, 6500*time.Millisecond, c.Position())
}

func TestSetDuration_PullsPlayheadBack(t *testing.T) {
	c, _ := manualClock(10 * time.Second)
	c.Seek(8 * time.Second)

	c.SetDuration(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.Position())
	assert.Equal(t, 5*time.Second, c.Duration())
}

func TestOnUpdate_ReportsTransitions(t *testing.T) {
	c, ft := manualClock(time.Second)
	var states []playback.State
	c.OnUpdate(func(u playback.Update) { states = append(states, u.State) })

	c.Play()
	ft.Add(2 * time.Second)
	c.Advance()

	assert.Equal(t, []playback.State{playback.Playing, playback.Stopped}, states)
}

func TestTickerDrivenPlayback(t *testing.T) {
	ft := newFakeTime()
	tickers := make(chan *fakeTicker, 4)
	factory := func(time.Duration) playback.Ticker {
		tk := &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
		tickers <- tk
		return tk
	}
	c := playback.New(time.Second, playback.WithNow(ft.Now), playback.WithTicker(factory))
	defer c.Close()

	updates := make(chan playback.Update, 8)
	c.OnUpdate(func(u playback.Update) { updates <- u })

	c.Play()
	<-updates
	tk := <-tickers

	ft.Add(600 * time.Millisecond)
	tk.ch <- ft.Now()
	u := <-updates
	assert.Equal(t, 600*time.Millisecond, u.Position)

	ft.Add(600 * time.Millisecond)
	tk.ch <- ft.Now()
	u = <-updates
	assert.Equal(t, playback.Stopped, u.State)
	assert.Equal(t, time.Second, u.Position)

	select {
	case <-tk.stopped:
	case <-time.After(time.Second):
		require.Fail(t, "ticker was not stopped after reaching the end")
	}
}

func TestPauseStopsTickerGoroutine(t *testing.T) {
	ft := newFakeTime()
	var tk *fakeTicker
	factory := func(time.Duration) playback.Ticker {
		tk = &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
		return tk
	}
	c := playback.New(time.Minute, playback.WithNow(ft.Now), playback.WithTicker(factory))

	c.Play()
	c.Pause()
	c.Close()

	select {
	case <-tk.stopped:
	default:
		t.Fatal("ticker still running after Close")
	}
}
