package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/plantops/plantops-ai/internal/metrics"
)

const (
	// writeDeadline bounds each outbound WebSocket write.
	writeDeadline = 30 * time.Second

	// pongWait bounds how long a peer may stay silent. Pings go out at
	// pingPeriod (must be less than pongWait) so a live peer always
	// answers before the read deadline expires.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// newUpgrader builds an upgrader that admits only the configured
// origins. An empty list admits same-host and localhost origins; "*"
// admits everything.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(origin, "/")) {
			return true
		}
	}
	if len(allowed) > 0 {
		return false
	}

	host := u.Hostname()
	return strings.EqualFold(u.Host, r.Host) || host == "localhost" || host == "127.0.0.1"
}

// handleRunStream streams run events over WebSocket.
// URL pattern: /ws/runs/{id}
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/runs/")
	id = strings.TrimSuffix(id, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run ID required")
		return
	}

	if _, err := s.engine.GetRun(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "run not found: "+err.Error())
		return
	}

	upgrader := newUpgrader(s.cfg.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	sub := s.engine.Subscribe(id)

	// Read pump. The client sends no data frames, but reading is what
	// processes pong and close control frames from the peer.
	readDone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.Ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
			if ev.Type == "done" {
				return
			}
		}
	}
}
