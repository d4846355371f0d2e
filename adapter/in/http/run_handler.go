package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"mailminer/core/domain"
	"mailminer/core/port/out"
)

// Runner starts one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*domain.ExecutionReport, error)
}

// RunHandler triggers pipeline runs and serves execution reports
type RunHandler struct {
	runner  Runner
	reports out.ExecutionReportRepository
}

func NewRunHandler(runner Runner, reports out.ExecutionReportRepository) *RunHandler {
	return &RunHandler{runner: runner, reports: reports}
}

// Register registers run routes
func (h *RunHandler) Register(router fiber.Router) {
	router.Post("/runs", h.TriggerRun)
	router.Get("/reports", h.ListReports)
}

// TriggerRun executes one pipeline run synchronously and returns its
// report. A concurrent run yields 409 via the error handler.
func (h *RunHandler) TriggerRun(c *fiber.Ctx) error {
	report, err := h.runner.Run(c.Context())
	if err != nil && report == nil {
		return err
	}

	status := fiber.StatusOK
	if err != nil {
		// Run completed with a failure report; surface both
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"success": err == nil,
		"data":    report,
	})
}

// ListReports lists recent execution reports
func (h *RunHandler) ListReports(c *fiber.Ctx) error {
	reports, err := h.reports.ListRecent(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    reports,
		"count":   len(reports),
	})
}
