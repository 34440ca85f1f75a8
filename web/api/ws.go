package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-host dashboard only
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// liveLogHandler streams run events over a WebSocket. Unlike SSE it
// survives proxies that buffer event streams, so the TUI-equivalent web
// view prefers it.
func (s *Server) liveLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := s.sseHub.Subscribe()
		defer s.sseHub.Unsubscribe(client)

		// Reader goroutine: the client sends nothing we care about, but
		// reading is what surfaces the close frame.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Send the current snapshot immediately so clients do not wait
		// for the next transition.
		snap := s.orch.Tracker().Snapshot()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(Event{Type: "run_progress", Data: snap}); err != nil {
			return
		}

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case event, ok := <-client:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			}
		}
	}
}
