package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/gateway"
	"github.com/marchand/essence/internal/service"
)

// CallbackProcessor applies a gateway callback, satisfied by
// *service.Reconciler.
type CallbackProcessor interface {
	ProcessCallback(ctx context.Context, body []byte) (*service.ReconcileResult, error)
}

// WebhookHandler receives payment gateway callbacks and proxies transaction
// status checks.
type WebhookHandler struct {
	reconciler CallbackProcessor
	gateway    gateway.Client
	logger     zerolog.Logger
}

// NewWebhookHandler creates the gateway webhook handler.
func NewWebhookHandler(reconciler CallbackProcessor, gw gateway.Client, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		gateway:    gw,
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// HandlePaymentCallback handles POST /webhooks/payment. The gateway retries
// on any non-200 response, so every outcome we cannot fix by redelivery is
// acknowledged with 200; only a store failure earns a 500.
func (h *WebhookHandler) HandlePaymentCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read callback body")
		return c.JSON(http.StatusOK, service.ReconcileResult{Success: true, Message: "Callback received"})
	}

	result, err := h.reconciler.ProcessCallback(c.Request().Context(), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CheckTransactionStatus handles GET /api/transactions/:id/status. A
// back-office convenience that surfaces the gateway's authoritative answer.
func (h *WebhookHandler) CheckTransactionStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return domain.Invalid("transaction.status", "Transaction id must be an integer")
	}

	result, err := h.gateway.CheckTransactionStatus(c.Request().Context(), id)
	if err != nil {
		return domain.Upstream(err, "transaction.status", "Transaction status unavailable")
	}
	return c.JSON(http.StatusOK, result)
}
