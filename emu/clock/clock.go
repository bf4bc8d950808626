// Package clock provides the real-time clock sources pacing the emulation.
package clock

import (
	"sync"
	"time"

	"gbcore/emu/log"
)

// A Source emits periodic ticks to its subscribers while started. Ticks are
// delivered on a goroutine owned by the source, subscribers must not block.
type Source interface {
	Start()
	Stop()
	Subscribe(fn func(now time.Time)) (cancel func())
}

type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(time.Time)
}

func (s *subscribers) add(fn func(time.Time)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(time.Time))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) notify(now time.Time) {
	s.mu.Lock()
	fns := make([]func(time.Time), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
}

// Ticker is a Source backed by a time.Ticker.
type Ticker struct {
	period time.Duration
	subs   subscribers

	mu   sync.Mutex
	stop chan struct{} // nil while stopped
}

func NewTicker(period time.Duration) *Ticker {
	if period <= 0 {
		panic("clock: non-positive ticker period")
	}
	return &Ticker{period: period}
}

func (t *Ticker) Period() time.Duration { return t.period }

// Start starts ticking. Starting a running ticker does nothing.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	go t.run(t.stop)

	log.ModClock.DebugZ("ticker started").Duration("period", t.period).End()
}

// Stop stops ticking. It doesn't wait for an in-flight tick delivery to
// complete, so it is safe to call from a subscriber. Stopping a stopped ticker
// does nothing.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil

	log.ModClock.DebugZ("ticker stopped").End()
}

func (t *Ticker) Subscribe(fn func(now time.Time)) (cancel func()) {
	return t.subs.add(fn)
}

func (t *Ticker) run(stop chan struct{}) {
	tick := time.NewTicker(t.period)
	defer tick.Stop()

	for {
		select {
		case now := <-tick.C:
			t.subs.notify(now)
		case <-stop:
			return
		}
	}
}

// Manual is a Source ticking only on demand, it's useful for tests and for
// driving the emulation headless, one frame at a time.
type Manual struct {
	subs subscribers

	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.starts++
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.stops++
}

func (m *Manual) Subscribe(fn func(now time.Time)) (cancel func()) {
	return m.subs.add(fn)
}

// Running reports whether the clock is started.
func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Calls returns the number of calls to Start and Stop.
func (m *Manual) Calls() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

// Tick synchronously delivers a tick to all subscribers, if the clock is
// running. It reports whether the tick was delivered.
func (m *Manual) Tick(now time.Time) bool {
	if !m.Running() {
		return false
	}
	m.subs.notify(now)
	return true
}
