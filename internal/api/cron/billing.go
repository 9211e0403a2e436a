package cron

import (
	"net/http"

	"github.com/duespay/duespay/internal/api/dto"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// BillingCronHandler exposes the daily billing run to external cron and
// to operators.
type BillingCronHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

func NewBillingCronHandler(sched *scheduler.Scheduler, logger *logger.Logger) *BillingCronHandler {
	return &BillingCronHandler{
		scheduler: sched,
		logger:    logger,
	}
}

// TriggerRun starts a billing run for the given date (default today).
// When a run is already in progress the trigger is a no-op.
func (h *BillingCronHandler) TriggerRun(c *gin.Context) {
	var req dto.TriggerBillingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.logger.Errorw("failed to parse billing run request", "error", err)
		c.Error(err)
		return
	}

	date, err := req.ParseDate()
	if err != nil {
		c.Error(err)
		return
	}

	report, err := h.scheduler.Run(c.Request.Context(), date)
	if err != nil {
		h.logger.Errorw("billing run failed", "error", err)
		c.Error(err)
		return
	}
	if report == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "skipped", "reason": "run in progress or scheduler suspended"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "report": report})
}

// LastReport returns the most recent run report.
func (h *BillingCronHandler) LastReport(c *gin.Context) {
	report := h.scheduler.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no runs recorded"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Suspend pauses future scheduled runs.
func (h *BillingCronHandler) Suspend(c *gin.Context) {
	h.scheduler.Suspend()
	h.logger.Infow("billing scheduler suspended by operator")
	c.JSON(http.StatusOK, gin.H{"status": "suspended"})
}

// Resume re-enables scheduled runs.
func (h *BillingCronHandler) Resume(c *gin.Context) {
	h.scheduler.Resume()
	h.logger.Infow("billing scheduler resumed by operator")
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}
