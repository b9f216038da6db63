package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/seantiz/cloudlaunch/internal/jobs"
	"github.com/seantiz/cloudlaunch/internal/model"
)

// Close code sent when the requested job does not exist.
const closeUnknownJob = 4004

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already allows any origin via CORS; the socket follows.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is one WebSocket message. Every frame carries a type; data depends
// on it: log lines, a status string, the provisioned state, or an error
// message. done and ping carry no data.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// handleStream serves WS /ws/{job_id}: full history replay followed by live
// tail, closing with a status/result/error/done sequence once the job
// reaches a terminal state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	job, err := s.deps.Jobs.Get(id)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeFrame(conn, frame{Type: "error", Data: fmt.Sprintf("Job '%s' not found.", id)})
		msg := websocket.FormatCloseMessage(closeUnknownJob, "unknown job")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}
	if err != nil {
		s.logger.Error("get job for stream", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends data frames; the read loop exists to notice
	// disconnects and surface close/ping-pong handling.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.streamJob(ctx, conn, job); err != nil {
		s.logger.Debug("stream ended early", "job_id", id, "error", err)
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// streamJob replays history from the start and tails live output until the
// relay closes, then emits the terminal frame sequence.
func (s *Server) streamJob(ctx context.Context, conn *websocket.Conn, job *model.Job) error {
	// A mid-flight attach learns the current status up front. A job whose
	// runner has not started yet is reported as running: pending is internal
	// bookkeeping, not part of the wire status set. After termination the
	// status arrives in the final sequence instead.
	if status := job.Status(); !model.Terminal(status) {
		if status == model.StatusPending {
			status = model.StatusRunning
		}
		if err := s.writeFrame(conn, frame{Type: "status", Data: status}); err != nil {
			return err
		}
	}

	cursor := 0
	for {
		lines, closed, err := s.deps.Engine.Broker().Next(ctx, job.ID(), cursor, s.cfg.StreamHeartbeat)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if err := s.writeFrame(conn, frame{Type: "log", Data: line}); err != nil {
				return err
			}
		}
		cursor += len(lines)

		if closed {
			break
		}
		if len(lines) == 0 {
			// Nothing new within the heartbeat window; keep the connection
			// visibly alive.
			if err := s.writeFrame(conn, frame{Type: "ping"}); err != nil {
				return err
			}
		}
	}

	snap := job.Snapshot()
	if err := s.writeFrame(conn, frame{Type: "status", Data: snap.Status}); err != nil {
		return err
	}
	if snap.Status == model.StatusFailed {
		if err := s.writeFrame(conn, frame{Type: "error", Data: snap.Error}); err != nil {
			return err
		}
	} else if snap.Result != nil {
		if err := s.writeFrame(conn, frame{Type: "result", Data: snap.Result}); err != nil {
			return err
		}
	}
	return s.writeFrame(conn, frame{Type: "done"})
}

func (s *Server) writeFrame(conn *websocket.Conn, f frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
