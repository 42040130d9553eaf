package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jouleworks/gridmind/internal/metrics"
)

const (
	// wsBufferSize is the per-client event buffer; slow clients drop
	// events rather than stall the bus.
	wsBufferSize = 32
	// pingInterval keeps intermediaries from reaping idle connections
	// and detects dead peers.
	pingInterval = 30 * time.Second
	// pongWait is how long past a ping we wait before declaring the
	// peer gone.
	pongWait  = pingInterval + 10*time.Second
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is CORS-open; the push channel matches.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and streams every bus event to the
// client as {type, timestamp, data} JSON. Delivery is fire-and-forget.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := s.orch.Bus().Subscribe(wsBufferSize)
	metrics.WSClients.Inc()
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	defer func() {
		s.orch.Bus().Unsubscribe(sub)
		conn.Close()
		metrics.WSClients.Dec()
		s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	// Read pump: we never expect client frames, but reading is what
	// surfaces close frames and pongs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub:
			if !ok {
				// Bus closed: orchestrator shutting down.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
