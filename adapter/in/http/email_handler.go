package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
)

// EmailHandler handles HTTP requests for processed emails
type EmailHandler struct {
	emails out.EmailRepository
}

func NewEmailHandler(emails out.EmailRepository) *EmailHandler {
	return &EmailHandler{emails: emails}
}

// Register registers email routes
func (h *EmailHandler) Register(router fiber.Router) {
	group := router.Group("/emails")
	group.Get("/", h.List)
	group.Get("/:message_id", h.Get)
}

// List lists processed emails
func (h *EmailHandler) List(c *fiber.Ctx) error {
	filter := domain.EmailFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}

	if since := c.Query("since"); since != "" {
		value, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return apperr.InvalidInput("since", "must be RFC 3339")
		}
		filter.Since = &value
	}

	emails, err := h.emails.List(c.Context(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    emails,
		"count":   len(emails),
	})
}

// Get returns one processed email by provider message id
func (h *EmailHandler) Get(c *fiber.Ctx) error {
	email, err := h.emails.Get(c.Context(), c.Params("message_id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    email,
	})
}
