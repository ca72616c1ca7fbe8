package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"beacon/internal/middleware"
	"beacon/internal/services"
	"beacon/pkg/logger"
)

// HealthChecker reports connectivity of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	pipeline *services.Pipeline
	audit    HealthChecker
	log      *logger.Logger
}

// NewHandler constructs the route handlers. audit may be nil when no audit
// repository is configured.
func NewHandler(pipeline *services.Pipeline, audit HealthChecker, log *logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		audit:    audit,
		log:      log,
	}
}

// eventParams is the opaque params blob some callers send instead of the
// individual event query parameters.
type eventParams struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Label    string `json:"label"`
	Value    int    `json:"value"`
}

// TrackPageView handles GET /track/page-view. It records one page-view hit
// for the target URL, then redirects to it. Legacy consumers expect the
// redirect to carry status 200, not 30x.
func (h *Handler) TrackPageView(c *fiber.Ctx) error {
	// Copied: these strings go onto a hit delivered after the handler
	// returns, past the lifetime of fiber's buffers.
	target := utils.CopyString(c.Query("url"))
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url query parameter is required",
		})
	}
	title := utils.CopyString(c.Query("title"))

	req := middleware.TrackingRequest(c)
	if req == nil {
		h.log.Error("Tracking middleware not installed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	h.pipeline.PageRendered(c.Context(), req, target, title)

	c.Location(target)
	return c.SendStatus(fiber.StatusOK)
}

// TrackEvent handles GET /track/event. It records one event hit for the
// target URL, then redirects to it with status 200.
func (h *Handler) TrackEvent(c *fiber.Ctx) error {
	target := utils.CopyString(c.Query("url"))
	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url query parameter is required",
		})
	}

	category := utils.CopyString(c.Query("eventCategory"))
	action := utils.CopyString(c.Query("eventAction"))
	label := utils.CopyString(c.Query("eventLabel"))
	value := c.QueryInt("eventValue", 0)

	if blob := c.Query("params"); blob != "" {
		var params eventParams
		if err := json.Unmarshal([]byte(blob), &params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "params is not valid JSON",
			})
		}
		category, action, label, value = params.Category, params.Action, params.Label, params.Value
	}

	req := middleware.TrackingRequest(c)
	if req == nil {
		h.log.Error("Tracking middleware not installed")
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	h.pipeline.EventAt(c.Context(), req, target, category, action, label, value)

	c.Location(target)
	return c.SendStatus(fiber.StatusOK)
}

// Health handles GET /health. When an audit repository is configured its
// database is pinged and a failure reports the service degraded.
func (h *Handler) Health(c *fiber.Ctx) error {
	status := fiber.Map{
		"status":  "healthy",
		"service": "beacon",
	}

	if h.audit != nil {
		if err := h.audit.HealthCheck(c.Context()); err != nil {
			h.log.Error("Audit database health check failed", map[string]any{
				"error": err.Error(),
			})
			status["status"] = "degraded"
			status["audit"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		status["audit"] = "ok"
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
