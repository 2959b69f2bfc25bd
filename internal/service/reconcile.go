package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/events"
	"github.com/marchand/essence/internal/gateway"
	"github.com/marchand/essence/internal/notification"
	"github.com/marchand/essence/internal/repository"
	"github.com/marchand/essence/internal/telemetry"
)

// Callback is a payment gateway callback after field coalescing. The gateway
// has shipped several payload shapes over time; parseCallback normalizes them
// into this struct.
type Callback struct {
	TransactionID int64
	HasTxID       bool
	OrderNumber   string
	Status        string
}

// ReconcileResult is what the webhook responds with. The gateway retries on
// non-200 responses, so Success is true for every case we do not want
// redelivered, including payloads we could not act on.
type ReconcileResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	OrderID       string `json:"orderId,omitempty"`
	Status        string `json:"status,omitempty"`
	TransactionID int64  `json:"transactionId,omitempty"`
	RedirectURL   string `json:"redirectUrl,omitempty"`
}

// Reconciler applies payment gateway callbacks to orders. The callback's own
// status field is advisory: whenever a transaction id is present the gateway
// is re-queried and its answer supersedes the callback.
type Reconciler struct {
	store       repository.Store
	gateway     gateway.Client
	notifier    notification.Sender
	events      events.Publisher
	logger      zerolog.Logger
	redirectURL string
}

// NewReconciler creates the callback reconciler. redirectURL is where the
// shopper is sent after a completed payment; it is echoed back to the gateway
// in the callback response.
func NewReconciler(store repository.Store, gw gateway.Client, notifier notification.Sender, publisher events.Publisher, logger zerolog.Logger, redirectURL string) *Reconciler {
	return &Reconciler{
		store:       store,
		gateway:     gw,
		notifier:    notifier,
		events:      publisher,
		logger:      logger.With().Str("component", "reconciler").Logger(),
		redirectURL: redirectURL,
	}
}

// Alias lists for callback fields, in priority order. The gateway's payload
// shape has drifted across versions; we take the first key that is present.
// Matching is exact (case-sensitive) so "TransactionId" and "transactionId"
// coming in the same payload resolve deterministically.
var (
	callbackTxKeys     = []string{"transactionId", "TransactionId", "Transaction"}
	callbackOrderKeys  = []string{"clientOrderId", "orderId", "OrderId"}
	callbackStatusKeys = []string{"status", "Status"}
)

// parseCallback decodes a raw callback body and coalesces the aliased fields.
func parseCallback(body []byte) (Callback, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Callback{}, fmt.Errorf("decode callback: %w", err)
	}

	var cb Callback

	// A present-but-empty (or unparseable) alias falls through to the next
	// one; only a usable value stops the scan.
	for _, key := range callbackTxKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		id, ok := parseTransactionID(v)
		if !ok {
			continue
		}
		cb.TransactionID = id
		cb.HasTxID = true
		break
	}

	cb.OrderNumber = coalesceString(raw, callbackOrderKeys)
	cb.Status = coalesceString(raw, callbackStatusKeys)

	return cb, nil
}

// coalesceString returns the first non-empty string among the aliased keys.
func coalesceString(raw map[string]json.RawMessage, keys []string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil || s == "" {
			continue
		}
		return s
	}
	return ""
}

// parseTransactionID accepts the transaction id as a JSON number or a numeric
// string, both of which the gateway has been observed to send.
func parseTransactionID(raw json.RawMessage) (int64, bool) {
	// Unmarshaling JSON null into an int64 is a silent no-op, not an error.
	if string(raw) == "null" {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// mapStatus translates a gateway status string into the order/payment status
// pair. Unrecognized statuses map to PENDING/PENDING so a new gateway status
// value never flips an order into a terminal state.
func mapStatus(gatewayStatus string) (domain.OrderStatus, domain.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case "approved", "success", "completed":
		return domain.OrderStatusPaid, domain.PaymentStatusCompleted, true
	case "declined", "failed", "rejected":
		return domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed, true
	case "pending", "processing":
		return domain.OrderStatusPending, domain.PaymentStatusPending, true
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled, domain.PaymentStatusCancelled, true
	}
	return domain.OrderStatusPending, domain.PaymentStatusPending, false
}

// ProcessCallback handles one gateway callback end to end: parse, re-verify
// against the gateway, map, and apply. Only store failures return an error;
// everything else resolves to a Success result so the gateway stops retrying.
func (r *Reconciler) ProcessCallback(ctx context.Context, body []byte) (*ReconcileResult, error) {
	started := time.Now()
	if telemetry.Business != nil {
		telemetry.Business.CallbackReceived.Inc()
		defer func() {
			telemetry.Business.CallbackLatency.Observe(time.Since(started).Seconds())
		}()
	}

	cb, err := parseCallback(body)
	if err != nil {
		r.logger.Warn().Err(err).Msg("unparseable gateway callback")
		r.countFailure("unparseable")
		return &ReconcileResult{Success: true, Message: "Callback received"}, nil
	}

	log := r.logger.With().
		Str("order_number", cb.OrderNumber).
		Int64("transaction_id", cb.TransactionID).
		Logger()

	status := r.resolveStatus(ctx, log, cb)
	if status == "" {
		log.Warn().Msg("callback carries neither verifiable transaction nor status")
		r.countFailure("unresolvable")
		return &ReconcileResult{Success: true, Message: "Callback received"}, nil
	}

	if cb.OrderNumber == "" {
		log.Warn().Str("gateway_status", status).Msg("callback carries no order reference")
		r.countFailure("no_order_ref")
		return &ReconcileResult{Success: true, Message: "Callback received"}, nil
	}

	orderStatus, payStatus, recognized := mapStatus(status)
	if !recognized {
		log.Warn().Str("gateway_status", status).Msg("unrecognized gateway status, treating as pending")
	}

	order, applied, err := r.apply(ctx, cb, orderStatus, payStatus)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			log.Warn().Msg("callback references unknown order")
			r.countFailure("order_not_found")
			return &ReconcileResult{Success: true, Message: "Order not found"}, nil
		}
		r.countFailure("store_error")
		return nil, err
	}

	result := &ReconcileResult{
		Success:       true,
		Message:       "Callback processed",
		OrderID:       order.OrderNumber,
		Status:        order.Status,
		TransactionID: cb.TransactionID,
	}
	if orderStatus == domain.OrderStatusPaid {
		result.RedirectURL = r.redirectURL
	}

	if !applied {
		log.Info().Msg("order already paid, callback ignored")
		result.Message = "Order already processed"
		return result, nil
	}

	log.Info().
		Str("status", order.Status).
		Str("payment_status", order.PaymentStatus).
		Msg("callback applied")

	if telemetry.Business != nil {
		telemetry.Business.CallbackProcessed.WithLabelValues(order.Status).Inc()
		switch orderStatus {
		case domain.OrderStatusPaid:
			telemetry.Business.PaymentSucceeded.WithLabelValues(order.PaymentMethod).Inc()
		case domain.OrderStatusPaymentFailed, domain.OrderStatusCancelled:
			telemetry.Business.PaymentFailed.WithLabelValues(order.Status).Inc()
		}
	}

	r.publishAndNotify(ctx, *order, orderStatus)

	return result, nil
}

// resolveStatus decides which status string to act on. The gateway's answer
// is authoritative; the callback's own status is the fallback when the
// gateway cannot be reached or the callback has no transaction id.
func (r *Reconciler) resolveStatus(ctx context.Context, log zerolog.Logger, cb Callback) string {
	if !cb.HasTxID {
		return cb.Status
	}

	verified, err := r.gateway.CheckTransactionStatus(ctx, cb.TransactionID)
	if err != nil {
		log.Warn().Err(err).Msg("gateway verification unavailable, falling back to callback status")
		return cb.Status
	}

	if verified.Status != "" {
		if cb.Status != "" && !strings.EqualFold(verified.Status, cb.Status) {
			log.Warn().
				Str("callback_status", cb.Status).
				Str("verified_status", verified.Status).
				Msg("callback status disagrees with gateway, using gateway")
		}
		return verified.Status
	}
	if verified.OrderStatus != "" {
		return verified.OrderStatus
	}
	return cb.Status
}

// apply writes the resolved status to the order inside a transaction. It
// returns applied=false when the order is already PAID: a paid order is never
// downgraded and its stock is never decremented twice.
func (r *Reconciler) apply(ctx context.Context, cb Callback, orderStatus domain.OrderStatus, payStatus domain.PaymentStatus) (*repository.Order, bool, error) {
	const op = "reconcile.apply"

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, false, domain.Internal(err, op, "failed to open transaction")
	}
	defer tx.Rollback(ctx)

	q := tx.Queries()

	order, err := q.GetOrderByNumber(ctx, cb.OrderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrOrderNotFound
		}
		return nil, false, domain.Internal(err, op, "failed to load order")
	}

	if order.Status == string(domain.OrderStatusPaid) {
		return &order, false, nil
	}

	var txID pgtype.Int8
	if cb.HasTxID {
		txID = pgtype.Int8{Int64: cb.TransactionID, Valid: true}
	}

	updated, err := q.SetOrderPaymentResult(ctx, repository.SetOrderPaymentResultParams{
		ID:            order.ID,
		Status:        string(orderStatus),
		PaymentStatus: string(payStatus),
		TransactionID: txID,
	})
	if err != nil {
		return nil, false, domain.Internal(err, op, "failed to apply payment result")
	}

	// Stock is committed only on the transition into PAID, in the same
	// transaction as the status flip.
	if orderStatus == domain.OrderStatusPaid {
		items, err := q.GetOrderItems(ctx, order.ID)
		if err != nil {
			return nil, false, domain.Internal(err, op, "failed to load order items")
		}
		for _, item := range items {
			err := q.DecrementProductStock(ctx, repository.DecrementProductStockParams{
				ID:       item.ProductID,
				Quantity: item.Quantity,
			})
			if err != nil {
				return nil, false, domain.Internal(err, op, "failed to decrement stock")
			}
			if telemetry.Business != nil {
				telemetry.Business.StockDecremented.Inc()
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, domain.Internal(err, op, "failed to commit payment result")
	}

	return &updated, true, nil
}

// publishAndNotify emits the post-commit side effects for an applied status
// change. Both are best-effort.
func (r *Reconciler) publishAndNotify(ctx context.Context, order repository.Order, orderStatus domain.OrderStatus) {
	switch orderStatus {
	case domain.OrderStatusPaid:
		r.events.PublishOrderEvent(events.SubjectOrderPaid, orderEvent(order))
	case domain.OrderStatusPaymentFailed:
		r.events.PublishOrderEvent(events.SubjectOrderPaymentFailed, orderEvent(order))
	case domain.OrderStatusCancelled:
		r.events.PublishOrderEvent(events.SubjectOrderCancelled, orderEvent(order))
	}

	if orderStatus != domain.OrderStatusPaid {
		return
	}

	email := r.customerEmail(ctx, order)
	if email == "" {
		return
	}
	msg := &notification.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Payment received for order %s", order.OrderNumber),
		TextBody: fmt.Sprintf(
			"We received your payment of %s for order %s.\nYour perfumes are being prepared for shipment.\n",
			formatCents(order.TotalCents), order.OrderNumber),
	}
	if _, err := r.notifier.Send(ctx, msg); err != nil {
		r.logger.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("failed to send payment confirmation")
	}
}

func (r *Reconciler) customerEmail(ctx context.Context, order repository.Order) string {
	if order.GuestEmail.Valid && order.GuestEmail.String != "" {
		return order.GuestEmail.String
	}
	if order.UserID.Valid {
		user, err := r.store.GetUserByID(ctx, order.UserID)
		if err != nil {
			r.logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("failed to load user for notification")
			return ""
		}
		return user.Email
	}
	return ""
}

func (r *Reconciler) countFailure(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.CallbackFailed.WithLabelValues(reason).Inc()
	}
}
