package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/monitor"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 512
)

var statusUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", map[string]interface{}{
			"request_id": RequestID(r.Context()),
			"error":      err.Error(),
		})
		return
	}
	s.serveStatusConnection(r, conn)
}

// serveStatusConnection pushes the status view on connect and then on every
// tick until the client goes away or the server shuts down.
func (s *Server) serveStatusConnection(r *http.Request, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	if err := writeStatusPayload(conn, s.service.Status()); err != nil {
		return
	}

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := writeStatusPayload(conn, s.service.Status()); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		}
	}
}

func writeStatusPayload(conn *websocket.Conn, view monitor.StatusView) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(view)
}
