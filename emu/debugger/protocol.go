package debugger

import (
	"fmt"

	"github.com/go-faster/jx"

	"gbcore/emu"
)

// Emulator and debugger communicate via a websocket connection, following this
// simple protocol.
//
// The first ever exchanged message is sent by the emulator with its current
// state. After that, the debugger sends requests, to which the emulator always
// responds, and the emulator pushes execution events as they happen. All
// messages are JSON objects of the form:
//
//	{"event": "<name>", "data": <payload>}

/* Debugger -> Emulator requests */

// request is a debugger->emulator request. Data is kept raw, it's decoded by
// the request handler.
type request struct {
	Event string
	Data  jx.Raw
}

func decodeRequest(buf []byte) (request, error) {
	var req request
	err := jx.DecodeBytes(buf).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			s, err := d.Str()
			req.Event = s
			return err
		case "data":
			raw, err := d.Raw()
			req.Data = append(jx.Raw(nil), raw...)
			return err
		}
		return d.Skip()
	})
	if err != nil {
		return request{}, fmt.Errorf("malformed request: %w", err)
	}
	if req.Event == "" {
		return request{}, fmt.Errorf("malformed request: missing event")
	}
	return req, nil
}

// decodeString decodes the data of the 'set-cpu-state' request.
func decodeString(data jx.Raw) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("missing data")
	}
	return jx.DecodeBytes(data).Str()
}

// decodeAddr decodes the data of the breakpoint requests: {"addr": 336}.
func decodeAddr(data jx.Raw) (uint16, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("missing data")
	}

	addr := -1
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "addr" {
			return d.Skip()
		}
		v, err := d.Int()
		addr = v
		return err
	})
	switch {
	case err != nil:
		return 0, err
	case addr < 0 || addr > 0xFFFF:
		return 0, fmt.Errorf("invalid breakpoint address %d", addr)
	}
	return uint16(addr), nil
}

/* Emulator -> Debugger messages */

// encodeMsg encodes a message, data writes the payload.
func encodeMsg(event string, data func(e *jx.Encoder)) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(event)
	if data != nil {
		e.FieldStart("data")
		data(&e)
	}
	e.ObjEnd()
	return e.Bytes()
}

// state is the data of the 'state' message.
type state struct {
	Status string
	PC     uint16
	FPS    float64
}

func stateMsg(st state) []byte {
	return encodeMsg("state", func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(st.Status)
		e.FieldStart("pc")
		e.Int(int(st.PC))
		e.FieldStart("fps")
		e.Float64(st.FPS)
		e.ObjEnd()
	})
}

func breakpointsMsg(bps []*emu.Breakpoint) []byte {
	return encodeMsg("breakpoints", func(e *jx.Encoder) {
		e.ArrStart()
		for _, bp := range bps {
			e.Int(int(bp.Addr))
		}
		e.ArrEnd()
	})
}

func errorMsg(err error) []byte {
	return encodeMsg("error", func(e *jx.Encoder) {
		e.Str(err.Error())
	})
}

func okMsg(event string) []byte {
	return encodeMsg("ok", func(e *jx.Encoder) {
		e.Str(event)
	})
}

// eventMsg encodes an execution event.
func eventMsg(ev emu.Event) []byte {
	switch ev.Kind {
	case emu.EventResumed:
		return encodeMsg("resumed", pcData(ev.PC))
	case emu.EventPaused:
		return encodeMsg("paused", pcData(ev.PC))
	case emu.EventStepPerformed:
		return encodeMsg("step", nil)
	case emu.EventTerminated:
		return encodeMsg("terminated", func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("error")
			if ev.Err != nil {
				e.Str(ev.Err.Error())
			} else {
				e.Null()
			}
			e.ObjEnd()
		})
	}
	return nil
}

func pcData(pc uint16) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("pc")
		e.Int(int(pc))
		e.ObjEnd()
	}
}
