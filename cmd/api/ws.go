package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin since CORS is already enforced by
// pkg/mid.CORS ahead of this handler in the middleware chain.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

const logsWriteWait = 10 * time.Second

// serveLogsWebSocket upgrades the connection and pumps every Projection
// broadcast on the observability Hub onto the socket, until the client
// disconnects or a send fails — the one live consumer of
// engine/observability.Hub's subscribe/cancel contract.
func serveLogsWebSocket(w http.ResponseWriter, r *http.Request, d apiDeps) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("logs stream: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := d.hub.Subscribe()
	defer cancel()

	for projection := range ch {
		conn.SetWriteDeadline(time.Now().Add(logsWriteWait))
		if err := conn.WriteJSON(projection); err != nil {
			return
		}
	}
}
