// Package scheduler provides a cooperative timer registry driven by an
// external tick. Nothing in this package starts goroutines or blocks.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Func is a timer callback. Extra arguments are bound by closure.
type Func func()

type timer struct {
	id       int
	fn       Func
	interval time.Duration
	next     time.Time
	oneShot  bool
}

// Scheduler fires registered callbacks from Tick once they are due.
// It is not safe for concurrent use.
type Scheduler struct {
	log    logrus.FieldLogger
	now    func() time.Time
	timers map[int]*timer
	nextID int
}

// New creates a scheduler reading the current time from now.
func New(log logrus.FieldLogger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		log:    log.WithField("component", "scheduler"),
		now:    now,
		timers: make(map[int]*timer),
	}
}

// Register adds a timer first due one interval from now and returns its id.
func (s *Scheduler) Register(fn Func, interval time.Duration, oneShot bool) int {
	s.nextID++

	s.timers[s.nextID] = &timer{
		id:       s.nextID,
		fn:       fn,
		interval: interval,
		next:     s.now().Add(interval),
		oneShot:  oneShot,
	}

	return s.nextID
}

// Every registers a repeating timer.
func (s *Scheduler) Every(interval time.Duration, fn Func) int {
	return s.Register(fn, interval, false)
}

// After registers a one-shot timer.
func (s *Scheduler) After(delay time.Duration, fn Func) int {
	return s.Register(fn, delay, true)
}

// Cancel removes a timer. It reports false when id is unknown.
func (s *Scheduler) Cancel(id int) bool {
	if _, ok := s.timers[id]; !ok {
		return false
	}

	delete(s.timers, id)

	return true
}

// Len returns the number of registered timers.
func (s *Scheduler) Len() int {
	return len(s.timers)
}

// Tick fires every timer due at now in ascending id order.
func (s *Scheduler) Tick(now time.Time) {
	ids := make([]int, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	for _, id := range ids {
		t, ok := s.timers[id]
		if !ok || now.Before(t.next) {
			continue
		}

		if t.oneShot {
			delete(s.timers, id)
		} else {
			t.next = t.next.Add(t.interval)
			if !t.next.After(now) {
				t.next = now.Add(t.interval)
			}
		}

		s.fire(t)
	}
}

func (s *Scheduler) fire(t *timer) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"timer_id": t.id,
				"interval": t.interval,
			}).WithError(fmt.Errorf("%v", r)).Error("Timer callback panicked")
		}
	}()

	t.fn()
}
