// Package http exposes the operational API: inspecting extracted
// action items, processed emails, and run reports, and triggering runs.
package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
)

// ActionItemHandler handles HTTP requests for action items
type ActionItemHandler struct {
	items out.ActionItemRepository
}

func NewActionItemHandler(items out.ActionItemRepository) *ActionItemHandler {
	return &ActionItemHandler{items: items}
}

// Register registers action item routes
func (h *ActionItemHandler) Register(router fiber.Router) {
	group := router.Group("/action-items")
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Patch("/:id/dismiss", h.UpdateDismiss)
}

// List lists action items with filters
func (h *ActionItemHandler) List(c *fiber.Ctx) error {
	filter := domain.ActionItemFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}

	if dismissed := c.Query("dismissed"); dismissed != "" {
		value, err := strconv.ParseBool(dismissed)
		if err != nil {
			return apperr.InvalidInput("dismissed", "must be a boolean")
		}
		filter.Dismissed = &value
	}
	if owner := c.Query("owner"); owner != "" {
		filter.Owner = &owner
	}
	if dueBefore := c.Query("due_before"); dueBefore != "" {
		value, err := time.Parse(time.RFC3339, dueBefore)
		if err != nil {
			value, err = time.Parse("2006-01-02", dueBefore)
		}
		if err != nil {
			return apperr.InvalidInput("due_before", "must be RFC 3339 or YYYY-MM-DD")
		}
		filter.DueBefore = &value
	}
	if source := c.Query("source_message_id"); source != "" {
		filter.SourceMessageID = &source
	}

	items, err := h.items.List(c.Context(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"count":   len(items),
	})
}

// Get returns one action item by id
func (h *ActionItemHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperr.InvalidInput("id", "must be an integer")
	}

	item, err := h.items.Get(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    item,
	})
}

type dismissRequest struct {
	Dismiss bool `json:"dismiss"`
}

// UpdateDismiss toggles an item's dismiss flag, overriding the
// confidence gate's verdict in either direction.
func (h *ActionItemHandler) UpdateDismiss(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperr.InvalidInput("id", "must be an integer")
	}

	var req dismissRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	if err := h.items.UpdateDismiss(c.Context(), id, req.Dismiss); err != nil {
		return err
	}

	item, err := h.items.Get(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    item,
	})
}
