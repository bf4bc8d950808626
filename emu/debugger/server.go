package debugger

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// handleWebsocket is the WebSocket handler the debugger front end connects to.
func (dbg *Debugger) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		modDbg.ErrorZ("failed to perform websocket handshake").Error("err", err).End()
		return
	}
	defer ws.Close()

	modDbg.DebugZ("websocket handshake success").End()

	if err := newWsDriver(dbg, ws).drive(); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			modDbg.DebugZ("debugger disconnected").End()
			return
		}
		modDbg.ErrorZ("connection to debugger ended").Error("err", err).End()
	}
}
