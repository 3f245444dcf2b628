package scheduler

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)

	return c.t
}

func newTestScheduler() (*Scheduler, *fakeClock) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	return New(log, clock.now), clock
}

func TestRepeatingTimer(t *testing.T) {
	s, clock := newTestScheduler()

	count := 0
	s.Every(100*time.Millisecond, func() { count++ })

	s.Tick(clock.advance(50 * time.Millisecond))
	assert.Equal(t, 0, count)

	s.Tick(clock.advance(50 * time.Millisecond))
	assert.Equal(t, 1, count)

	s.Tick(clock.advance(100 * time.Millisecond))
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, s.Len())
}

func TestOneShotTimerIsRemoved(t *testing.T) {
	s, clock := newTestScheduler()

	count := 0
	s.After(10*time.Millisecond, func() { count++ })

	s.Tick(clock.advance(20 * time.Millisecond))
	s.Tick(clock.advance(20 * time.Millisecond))

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, s.Len())
}

func TestStalledLoopDoesNotBurst(t *testing.T) {
	s, clock := newTestScheduler()

	count := 0
	s.Every(10*time.Millisecond, func() { count++ })

	s.Tick(clock.advance(time.Second))
	s.Tick(clock.advance(time.Millisecond))

	assert.Equal(t, 1, count)
}

func TestCancel(t *testing.T) {
	s, clock := newTestScheduler()

	count := 0
	id := s.Every(10*time.Millisecond, func() { count++ })

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))
	assert.False(t, s.Cancel(999))

	s.Tick(clock.advance(time.Second))
	assert.Equal(t, 0, count)
}

func TestTickOrderIsStable(t *testing.T) {
	s, clock := newTestScheduler()

	var order []int
	for i := 1; i <= 5; i++ {
		i := i
		s.Every(10*time.Millisecond, func() { order = append(order, i) })
	}

	s.Tick(clock.advance(10 * time.Millisecond))
	s.Tick(clock.advance(10 * time.Millisecond))

	assert.Equal(t, []int{1, 2, 3, 4, 5, 1, 2, 3, 4, 5}, order)
}

func TestPanickingTimerIsIsolated(t *testing.T) {
	s, clock := newTestScheduler()

	count := 0
	s.Every(10*time.Millisecond, func() { panic("boom") })
	s.Every(10*time.Millisecond, func() { count++ })

	assert.NotPanics(t, func() { s.Tick(clock.advance(10 * time.Millisecond)) })
	assert.NotPanics(t, func() { s.Tick(clock.advance(10 * time.Millisecond)) })
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, s.Len())
}

func TestCancelDuringTick(t *testing.T) {
	s, clock := newTestScheduler()

	fired := false

	var second int
	s.Every(10*time.Millisecond, func() { s.Cancel(second) })
	second = s.Every(10*time.Millisecond, func() { fired = true })

	added := 0
	s.Every(10*time.Millisecond, func() {
		s.After(0, func() { added++ })
	})

	s.Tick(clock.advance(10 * time.Millisecond))

	assert.False(t, fired)
	assert.Equal(t, 0, added)

	s.Tick(clock.advance(time.Millisecond))
	assert.Equal(t, 1, added)
}
