package v1

import (
	"net/http"

	"github.com/duespay/duespay/internal/api/dto"
	"github.com/duespay/duespay/internal/domain/billingattempt"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type BillingScheduleHandler struct {
	scheduleService service.ScheduleService
	log             *logger.Logger
}

func NewBillingScheduleHandler(scheduleService service.ScheduleService, log *logger.Logger) *BillingScheduleHandler {
	return &BillingScheduleHandler{
		scheduleService: scheduleService,
		log:             log,
	}
}

// CreateSchedule creates a recurring billing schedule.
func (h *BillingScheduleHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	schedule, err := h.scheduleService.CreateSchedule(c.Request.Context(), req.ToServiceRequest())
	if err != nil {
		h.log.Errorw("failed to create billing schedule", "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewScheduleResponse(schedule))
}

// GetSchedule returns one schedule.
func (h *BillingScheduleHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewScheduleResponse(schedule))
}

// ListAttempts returns the schedule's charge ledger, oldest first.
func (h *BillingScheduleHandler) ListAttempts(c *gin.Context) {
	attempts, err := h.scheduleService.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": lo.Map(attempts, func(a *billingattempt.BillingAttempt, _ int) *dto.AttemptResponse {
			return dto.NewAttemptResponse(a)
		}),
	})
}

// Reactivate lifts a suspension and sets the next billing date.
func (h *BillingScheduleHandler) Reactivate(c *gin.Context) {
	var req dto.ReactivateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	schedule, err := h.scheduleService.Reactivate(c.Request.Context(), c.Param("id"), req.NextBillingDate)
	if err != nil {
		h.log.Errorw("failed to reactivate schedule", "schedule_id", c.Param("id"), "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewScheduleResponse(schedule))
}

// Cancel permanently terminates the schedule.
func (h *BillingScheduleHandler) Cancel(c *gin.Context) {
	schedule, err := h.scheduleService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Errorw("failed to cancel schedule", "schedule_id", c.Param("id"), "error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewScheduleResponse(schedule))
}
