package debugger

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-faster/jx"
	"github.com/gorilla/websocket"
)

// client is the outgoing side of a debugger connection. All messages go
// through out, the only goroutine writing to the websocket drains it.
type client struct {
	out     chan []byte
	done    chan struct{}
	dropped atomic.Int64
}

func newClient() *client {
	return &client{
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// push queues a message without blocking, it's dropped if the queue is full.
func (c *client) push(msg []byte) {
	select {
	case c.out <- msg:
	default:
		if c.dropped.Add(1) == 1 {
			modDbg.WarnZ("debugger too slow, dropping events").End()
		}
	}
}

// send queues a message, blocking until there's room or the connection ends.
func (c *client) send(msg []byte) bool {
	select {
	case c.out <- msg:
		return true
	case <-c.done:
		return false
	}
}

type wsdriver struct {
	dbg *Debugger
	ws  *websocket.Conn
	c   *client

	handlers map[string]wsHandlerFunc
}

type wsHandlerFunc func(data jx.Raw) ([]byte, error)

func newWsDriver(dbg *Debugger, ws *websocket.Conn) *wsdriver {
	drv := &wsdriver{
		dbg: dbg,
		ws:  ws,
		c:   newClient(),
	}
	drv.handlers = map[string]wsHandlerFunc{
		"get-state":         drv.handleGetState,
		"set-cpu-state":     drv.handleSetCPUState,
		"set-breakpoint":    drv.handleSetBreakpoint,
		"remove-breakpoint": drv.handleRemoveBreakpoint,
		"clear-breakpoints": drv.handleClearBreakpoints,
		"list-breakpoints":  drv.handleListBreakpoints,
		"reset":             drv.handleReset,
	}
	return drv
}

func (d *wsdriver) drive() error {
	modDbg.DebugZ("debugger connection initiated").End()

	d.initMsg()
	defer d.dbg.removeClient(d.c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.writeLoop()
	}()
	defer wg.Wait()
	defer close(d.c.done)

	for {
		// Wait for next request from the debugger.
		_, buf, err := d.ws.ReadMessage()
		if err != nil {
			return err
		}

		req, err := decodeRequest(buf)
		if err != nil {
			modDbg.WarnZ("received malformed message").Error("err", err).End()
			if !d.c.send(errorMsg(err)) {
				return nil
			}
			continue
		}

		modDbg.DebugZ("received message from debugger").
			String("event", req.Event).
			String("data", string(req.Data)).
			End()

		resp, err := d.handle(req)
		if err != nil {
			modDbg.ErrorZ("error handling debugger event").
				String("event", req.Event).
				String("data", string(req.Data)).
				Error("err", err).
				End()
			resp = errorMsg(err)
		}
		if !d.c.send(resp) {
			return nil
		}
	}
}

func (d *wsdriver) handle(req request) ([]byte, error) {
	handler, ok := d.handlers[req.Event]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", req.Event)
	}
	return handler(req.Data)
}

// initMsg queues the initial state message and registers the client for
// execution events. Holding the lock while doing so guarantees the state
// message comes first.
func (d *wsdriver) initMsg() {
	d.dbg.mu.Lock()
	defer d.dbg.mu.Unlock()

	d.c.push(stateMsg(d.dbg.computeState()))
	d.dbg.clients[d.c] = struct{}{}
}

func (d *wsdriver) writeLoop() {
	for {
		select {
		case msg := <-d.c.out:
			if err := d.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				modDbg.ErrorZ("error writing to debugger").Error("err", err).End()
				return
			}
		case <-d.c.done:
			return
		}
	}
}

func (d *wsdriver) stateMsg() []byte {
	return stateMsg(d.dbg.computeState())
}

func (d *wsdriver) handleGetState(jx.Raw) ([]byte, error) {
	return d.stateMsg(), nil
}

func (d *wsdriver) handleSetCPUState(data jx.Raw) ([]byte, error) {
	cpuState, err := decodeString(data)
	if err != nil {
		return nil, err
	}

	dev := d.dbg.dev
	switch cpuState {
	case "run":
		err = dev.Run()
	case "pause":
		err = dev.Break()
	case "step":
		err = dev.Step()
	default:
		return nil, fmt.Errorf("unexpected cpu state: %s", cpuState)
	}
	if err != nil {
		return nil, err
	}
	return d.stateMsg(), nil
}

func (d *wsdriver) handleSetBreakpoint(data jx.Raw) ([]byte, error) {
	addr, err := decodeAddr(data)
	if err != nil {
		return nil, err
	}
	d.dbg.dev.Breakpoints().Set(addr, nil)
	return d.handleListBreakpoints(nil)
}

func (d *wsdriver) handleRemoveBreakpoint(data jx.Raw) ([]byte, error) {
	addr, err := decodeAddr(data)
	if err != nil {
		return nil, err
	}
	if !d.dbg.dev.Breakpoints().Remove(addr) {
		return nil, fmt.Errorf("no breakpoint at $%04X", addr)
	}
	return d.handleListBreakpoints(nil)
}

func (d *wsdriver) handleClearBreakpoints(jx.Raw) ([]byte, error) {
	d.dbg.dev.Breakpoints().Clear()
	return d.handleListBreakpoints(nil)
}

func (d *wsdriver) handleListBreakpoints(jx.Raw) ([]byte, error) {
	return breakpointsMsg(d.dbg.dev.Breakpoints().All()), nil
}

func (d *wsdriver) handleReset(jx.Raw) ([]byte, error) {
	if err := d.dbg.dev.Reset(); err != nil {
		return nil, err
	}
	return okMsg("reset"), nil
}
