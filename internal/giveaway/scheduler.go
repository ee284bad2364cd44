package giveaway

import (
	"sync"
	"time"
)

// Clock abstracts time for the scheduler. AfterFunc must run f on its own
// goroutine (or later from the caller), never before returning.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Scheduler keeps one armed one-shot timer per giveaway id. Timers live in
// process memory only.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]*entry
}

type entry struct {
	timer Timer
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Schedule arms fn to run at the given time, replacing any timer already armed
// for id. A time in the past fires on the next clock tick.
func (s *Scheduler) Schedule(id string, at time.Time, fn func()) {
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.timers[id]; prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	e := &entry{}
	s.timers[id] = e
	e.timer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[id] == e {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the timer armed for id. It reports whether a pending timer was
// removed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.timers[id]
	if e == nil {
		return false
	}
	delete(s.timers, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.timers {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.timers, id)
	}
}
