// Package debugger implements the emulator side of a remote debugger: a
// websocket server through which a debugger front end controls execution,
// manages breakpoints and follows execution events.
package debugger

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"gbcore/emu"
	"gbcore/emu/log"
)

var modDbg = log.NewModule("debugger")

// Device is the debugged device.
type Device interface {
	Run() error
	Break() error
	Step() error
	Reset() error

	State() emu.State
	FPS() float64
	Breakpoints() *emu.Breakpoints
	Subscribe(fn emu.Observer) (cancel func())
}

// queueSize is the number of messages buffered for each connected debugger.
// Execution events are dropped when a debugger falls that much behind.
const queueSize = 256

// A Debugger holds the state of the debugged device, as seen through its
// execution events, and fans those events out to all connected clients.
type Debugger struct {
	dev   Device
	unsub func()

	// pc is the program counter reported by the last execution event.
	pc atomic.Uint32

	mu      sync.Mutex
	clients map[*client]struct{}

	server *http.Server
	ln     net.Listener
}

// New returns a debugger for dev. Call Serve to accept connections.
func New(dev Device) *Debugger {
	dbg := &Debugger{
		dev:     dev,
		clients: make(map[*client]struct{}),
	}
	dbg.unsub = dev.Subscribe(dbg.onEvent)
	return dbg
}

// Listen starts the debugger server on addr.
func (dbg *Debugger) Listen(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", dbg.handleWebsocket)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start debugger server: %w", err)
	}
	dbg.ln = ln
	dbg.server = &http.Server{Handler: mux}

	go func() {
		modDbg.InfoZ("Debugger server listening").String("addr", ln.Addr().String()).End()
		dbg.server.Serve(ln)
	}()
	return nil
}

// Addr returns the address the server listens on.
func (dbg *Debugger) Addr() string {
	return dbg.ln.Addr().String()
}

// Close stops following the device and closes the server, disconnecting all
// clients.
func (dbg *Debugger) Close() error {
	dbg.unsub()
	if dbg.server == nil {
		return nil
	}
	return dbg.server.Close()
}

// computeState returns the current device state.
func (dbg *Debugger) computeState() state {
	st := state{
		PC:  uint16(dbg.pc.Load()),
		FPS: dbg.dev.FPS(),
	}
	switch dbg.dev.State() {
	case emu.Running:
		st.Status = "running"
	case emu.Halted:
		st.Status = "paused"
	case emu.Terminated:
		st.Status = "terminated"
	}
	return st
}

// onEvent is called on the emulation goroutine, it must not block.
func (dbg *Debugger) onEvent(ev emu.Event) {
	switch ev.Kind {
	case emu.EventResumed, emu.EventPaused:
		dbg.pc.Store(uint32(ev.PC))
	}

	msg := eventMsg(ev)
	if msg == nil {
		return
	}

	dbg.mu.Lock()
	defer dbg.mu.Unlock()

	for c := range dbg.clients {
		c.push(msg)
	}
}

func (dbg *Debugger) removeClient(c *client) {
	dbg.mu.Lock()
	defer dbg.mu.Unlock()
	delete(dbg.clients, c)
}

// numClients returns the number of connected clients.
func (dbg *Debugger) numClients() int {
	dbg.mu.Lock()
	defer dbg.mu.Unlock()
	return len(dbg.clients)
}
