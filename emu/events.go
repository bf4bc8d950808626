package emu

import (
	"sync"
)

//go:generate go tool stringer -type=EventKind -trimprefix=Event

type EventKind uint8

const (
	EventResumed EventKind = iota
	EventPaused
	EventTerminated

	// EventStepPerformed marks a step request accepted by Step. It's emitted
	// before the instruction executes, the paused event that follows
	// reports where the step ended.
	EventStepPerformed
)

// An Event notifies observers of a change in the execution state.
type Event struct {
	Kind EventKind

	// PC is the program counter when execution resumed or paused. It is not
	// set for other kinds of events.
	PC uint16

	// Err is the failure that crashed the emulation, for terminated events. A
	// nil Err means the device has been terminated on request.
	Err error
}

// An Observer is called synchronously, on the goroutine emitting the event.
// Resumed, paused and terminated events are emitted by the emulation
// goroutine: an observer that blocks stalls the emulation, and one that panics
// crashes it. Step events are emitted by the goroutine calling Step, before it
// returns and usually before the stepped instruction has executed.
type Observer func(Event)

type observers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]Observer
}

func (o *observers) subscribe(fn Observer) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fns == nil {
		o.fns = make(map[int]Observer)
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

// emit delivers ev to all current observers, in no particular order.
func (o *observers) emit(ev Event) {
	o.mu.Lock()
	fns := make([]Observer, 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
