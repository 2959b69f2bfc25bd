package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/middleware"
)

// Pinger is the liveness dependency of the health endpoint, satisfied by
// *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes wires all HTTP endpoints.
func RegisterRoutes(e *echo.Echo, orders *OrderHandler, webhooks *WebhookHandler, verifier domain.SessionVerifier, db Pinger, metricsEnabled bool) {
	auth := middleware.Authenticate(verifier)
	admin := middleware.RequireAdmin()

	api := e.Group("/api", auth)
	api.POST("/orders", orders.Create)
	api.GET("/orders/:id", orders.Get)
	api.GET("/orders/number/:number", orders.GetByNumber)
	api.GET("/orders", orders.List, admin)
	api.PATCH("/orders/:id/status", orders.UpdateStatus, admin)
	api.GET("/transactions/:id/status", webhooks.CheckTransactionStatus, admin)

	// The gateway authenticates nothing on this path; the reconciler verifies
	// every callback against the gateway itself instead.
	e.POST("/webhooks/payment", webhooks.HandlePaymentCallback)

	e.GET("/healthz", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if metricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
}
