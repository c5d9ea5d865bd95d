package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/tasks"
)

// handleEvents upgrades to a websocket and streams a job's progress
// events from pub/sub until the terminal event or disconnect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "progress events not configured"})
		return
	}

	jobID := chi.URLParam(r, "id")
	if !isSafeID(jobID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := tasks.Subscribe(ctx, s.redis, jobID)
	defer sub.Close()

	// Unblock the forwarder when the client goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.log.Info("streaming progress events", "job_id", jobID)
	s.forwardEvents(ctx, conn, sub.Channel(), jobID)
}

// forwardEvents copies pub/sub payloads onto the websocket and closes
// the stream after the terminal event.
func (s *Server) forwardEvents(ctx context.Context, conn *websocket.Conn, ch <-chan *redis.Message, jobID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				s.log.Debug("websocket write failed", "job_id", jobID, "error", err)
				return
			}

			var event tasks.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Warn("unparseable progress event", "job_id", jobID, "error", err)
				continue
			}
			if event.Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}
