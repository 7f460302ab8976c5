package api

import (
	"net/http"
	"strings"
	"time"

	"famhub/internal/models"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait   = 10 * time.Second
	streamPongWait    = 60 * time.Second
	streamMaxReadSize = 512
)

// newUpgrader allows the listed origins. With none listed the upgrader keeps
// gorilla's same-origin check; "*" allows any origin.
func newUpgrader(allowed []string) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowed) == 0 {
		return u
	}
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origins["*"] {
			return true
		}
		return origins[strings.ToLower(origin)]
	}
	return u
}

// handleStream pushes the current snapshot and then every change until the
// client goes away or stops answering pings.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	pongWait := s.pongWait
	conn.SetReadLimit(streamMaxReadSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The channel only signals a change; the writer always sends the latest
	// snapshot so a slow client skips stale ones.
	changed := make(chan struct{}, 1)
	notify := func(models.IndicatorSnapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	id := s.status.Subscribe(notify)
	defer s.status.Unsubscribe(id)
	notify(models.IndicatorSnapshot{})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-s.streamCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case <-changed:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(s.status.Snapshot()); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
