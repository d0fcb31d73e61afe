package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
)

// maxWebhookBytes bounds the webhook body read before signature checks.
const maxWebhookBytes = 1 << 20

func (s *Server) ListPayments(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.payments.ListPayments(c.Request.Context(), caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.payments.ListSubscriptions(c.Request.Context(), caller.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

type createPaymentIntentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.cfg.Payments.DefaultCurrency
	}

	result, err := s.payments.CreatePaymentIntent(c.Request.Context(), paymentdomain.CreateIntentRequest{
		UserID:         caller.UserID,
		Amount:         req.Amount,
		Currency:       currency,
		Description:    strings.TrimSpace(req.Description),
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// HandlePaymentWebhook is authenticated by the provider signature only.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.payments.HandleWebhook(c.Request.Context(), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
