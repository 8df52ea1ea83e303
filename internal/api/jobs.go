package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/web"
)

// resultWait bounds how long a WebSocket stays open waiting for its job.
const resultWait = 5 * time.Minute

// handleSubmit enqueues a job and returns its ID without waiting.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var snippet compileSnippet
	if !s.decode(w, r, &snippet) {
		return
	}
	if snippet.Code == nil {
		web.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	job := domain.Job{ID: uuid.NewString(), Code: *snippet.Code}

	s.logger.Info("Received submission", "jobID", job.ID)
	if err := s.opts.Queue.Publish(r.Context(), job); err != nil {
		s.logger.Error("Failed to publish job", "jobID", job.ID, "error", err)
		web.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	web.WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": "queued",
	})
}

// WebSocket Upgrader (Gorilla)
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // The front-end is served from another origin.
}

// handleWS upgrades the connection, writes the job's result once it is
// available, and closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		web.WriteError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("Client connected via WebSocket", "jobID", jobID, "remoteAddr", conn.RemoteAddr())

	results, stop := s.opts.Hub.Watch(jobID)
	defer stop()

	// Notice the client going away while we wait.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), resultWait)
	defer cancel()

	select {
	case res := <-results:
		if err := conn.WriteJSON(res); err != nil {
			s.logger.Error("Failed to write to websocket", "jobID", jobID, "error", err)
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-gone:
		s.logger.Info("Client disconnected", "jobID", jobID)
	case <-ctx.Done():
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "no result yet"))
	}
}
