package pipeline

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"reelforge/internal/core/progress"
)

// Rough per-job runtime used to estimate queue wait from the backlog.
const estimatedJobSeconds = 240

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}
	jobID, err := h.svc.Enqueue(c.Context(), req)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidRequest) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"job_id":  jobID,
		"status":  progress.StatusQueued,
	})
}

func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	view := h.svc.Status(c.Context(), c.Params("jobId"))
	return c.JSON(view)
}

// HandleDelete tears down a job's artifacts and records immediately.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	if err := h.svc.DeleteJob(c.Context(), c.Params("jobId")); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrJobNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true, "message": "job deleted"})
}

// HandleQueueStatus reports the backlog and a coarse wait estimate.
func (h *Handler) HandleQueueStatus(c *fiber.Ctx) error {
	stats, err := h.svc.QueueStats()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "queue stats unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"pending_jobs":                stats.Pending + stats.Scheduled + stats.Retry,
		"processing_jobs":             stats.Active,
		"completed_jobs":              stats.Processed,
		"failed_jobs":                 stats.Failed,
		"estimated_wait_time_seconds": stats.Pending * estimatedJobSeconds,
	})
}

// HandleDownload serves the artifact links for a completed job, refusing
// once the cleanup window has passed.
func (h *Handler) HandleDownload(c *fiber.Ctx) error {
	view := h.svc.Status(c.Context(), c.Params("jobId"))
	if view.Status != progress.StatusCompleted || view.Result == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "job is not completed",
			"status":  view.Status,
		})
	}
	if time.Now().After(view.Result.ExpiresAt) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"success": false,
			"error":   "download window expired",
		})
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"job_id":        view.JobID,
		"artifact_urls": view.Result.ArtifactURLs,
		"clips_count":   view.Result.ClipsCount,
		"images_count":  view.Result.ImagesCount,
		"expires_at":    view.Result.ExpiresAt,
	})
}
