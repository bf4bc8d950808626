// Package signal implements sticky, manual-reset events, the synchronization
// primitive between the emulation goroutine and its controllers.
package signal

import (
	"reflect"
	"sync"
)

// An Event is a binary flag that stays set until explicitly reset. Any number
// of goroutines may set, reset and wait on an Event concurrently.
type Event struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while the event is set
}

func New() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set sets the event, waking up all waiters. Setting an already set event does
// nothing.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Reset clears the event.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel that is closed once the event is set. The channel is
// only valid for the current set/reset cycle: after a Reset, a new channel
// must be obtained.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks until e is set.
func (e *Event) Wait() {
	<-e.Done()
}

// WaitAny blocks until at least one of the events is set and returns the index
// of the first one found set, in argument order. Events placed first thus take
// priority over the following ones when several are set at once.
func WaitAny(events ...*Event) int {
	if len(events) == 0 {
		panic("signal: WaitAny called without events")
	}

	chans := make([]<-chan struct{}, len(events))
	for i, e := range events {
		chans[i] = e.Done()
	}

	if i := firstClosed(chans); i >= 0 {
		return i
	}

	switch len(chans) {
	case 1:
		<-chans[0]
	case 2:
		select {
		case <-chans[0]:
		case <-chans[1]:
		}
	case 3:
		select {
		case <-chans[0]:
		case <-chans[1]:
		case <-chans[2]:
		}
	default:
		cases := make([]reflect.SelectCase, len(chans))
		for i, ch := range chans {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		}
		reflect.Select(cases)
	}

	// Several events may have been set by the time we wake up, rescan them in
	// order. Closed channels stay closed so this always finds one.
	return firstClosed(chans)
}

func firstClosed(chans []<-chan struct{}) int {
	for i, ch := range chans {
		select {
		case <-ch:
			return i
		default:
		}
	}
	return -1
}
