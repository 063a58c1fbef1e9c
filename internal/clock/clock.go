package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs named callbacks after a fixed delay and reports wall time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(name string, d time.Duration, fn func()) Timer
}

// Poster hands a fired callback back to the goroutine that owns session state.
type Poster func(name string, fn func())

type realScheduler struct {
	post Poster
}

// NewReal returns a Scheduler backed by time.AfterFunc. Fired callbacks are
// not run on the timer goroutine; they are handed to post instead.
func NewReal(post Poster) Scheduler {
	return &realScheduler{post: post}
}

func (r *realScheduler) Now() time.Time { return time.Now() }

func (r *realScheduler) AfterFunc(name string, d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { r.post(name, fn) })
}

// Manual is a Scheduler driven explicitly by Advance. It is safe for
// concurrent use.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	name    string
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

// NewManual returns a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(name string, d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, name: name, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Pending lists the names of timers that have not fired or been stopped, in
// firing order.
func (m *Manual) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sortLocked()
	var names []string
	for _, t := range m.timers {
		if !t.stopped {
			names = append(names, t.name)
		}
	}
	return names
}

// Advance moves time forward by d, firing every due timer in deadline order.
// Timers scheduled by a fired callback run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		m.sortLocked()
		var next *manualTimer
		for _, t := range m.timers {
			if !t.stopped && !t.at.After(target) {
				next = t
				break
			}
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.stopped = true
		m.now = next.at
		m.mu.Unlock()
		next.fn()
	}
}

func (m *Manual) sortLocked() {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}
