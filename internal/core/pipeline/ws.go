package pipeline

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"reelforge/internal/core/progress"
)

// How often a connected client receives a fresh snapshot.
const progressPushInterval = 2 * time.Second

// progressConn is the slice of a websocket connection the stream needs.
type progressConn interface {
	WriteJSON(v interface{}) error
}

// HandleProgressSocket upgrades the request and forwards the job's status
// every couple of seconds until it reaches a terminal state or the client
// disconnects.
func (h *Handler) HandleProgressSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		defer c.Close()
		h.streamProgress(c, c.Params("jobId"), progressPushInterval)
	})
}

func (h *Handler) streamProgress(conn progressConn, jobID string, interval time.Duration) {
	ctx := context.Background()
	for {
		view := h.svc.Status(ctx, jobID)
		if err := conn.WriteJSON(view); err != nil {
			return
		}
		if view.Status == progress.StatusCompleted || view.Status == progress.StatusFailed {
			return
		}
		time.Sleep(interval)
	}
}
