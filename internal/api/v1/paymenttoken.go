package v1

import (
	"net/http"

	"github.com/duespay/duespay/internal/api/dto"
	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
	"github.com/duespay/duespay/internal/service"
	"github.com/gin-gonic/gin"
)

type PaymentTokenHandler struct {
	tokenizationService service.TokenizationService
	log                 *logger.Logger
}

func NewPaymentTokenHandler(tokenizationService service.TokenizationService, log *logger.Logger) *PaymentTokenHandler {
	return &PaymentTokenHandler{
		tokenizationService: tokenizationService,
		log:                 log,
	}
}

// CreateToken tokenizes a payment instrument alongside the enrollment
// charge. The raw instrument fields exist only for the duration of this
// request.
func (h *PaymentTokenHandler) CreateToken(c *gin.Context) {
	var req dto.CreateTokenRequest
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

	token, err := h.tokenizationService.CreateToken(c.Request.Context(), req.ToServiceRequest())
	if err != nil {
		h.log.Errorw("failed to create payment token",
			"subscriber_id", req.SubscriberID,
			"error", err)
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewTokenResponse(token))
}
