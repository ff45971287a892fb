package credential

import (
	"os"

	"github.com/gofiber/fiber/v2"
)

// Handler is the operator surface for the pool: health snapshot and runtime
// credential management.
type Handler struct {
	pool *Pool
}

func NewHandler(pool *Pool) *Handler {
	return &Handler{pool: pool}
}

func (h *Handler) HandleStats(c *fiber.Ctx) error {
	// Drop entries whose files were deleted out from under us first.
	h.pool.PruneMissing()
	return c.JSON(h.pool.Stats())
}

type addRequest struct {
	Path string `json:"path"`
}

func (h *Handler) HandleAdd(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil || req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "path is required"})
	}
	if _, err := os.Stat(req.Path); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "credential file not readable"})
	}
	h.pool.Add(req.Path)
	return c.JSON(fiber.Map{"success": true, "total": h.pool.Size()})
}

func (h *Handler) HandleRemove(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "name is required"})
	}
	h.pool.Remove(name)
	return c.JSON(fiber.Map{"success": true, "total": h.pool.Size()})
}
