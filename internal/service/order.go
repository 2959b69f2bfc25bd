package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/events"
	"github.com/marchand/essence/internal/notification"
	"github.com/marchand/essence/internal/repository"
	"github.com/marchand/essence/internal/telemetry"
)

// orderService implements domain.OrderService backed by the store.
type orderService struct {
	store    repository.Store
	notifier notification.Sender
	events   events.Publisher
	logger   zerolog.Logger
}

// NewOrderService creates the order service.
func NewOrderService(store repository.Store, notifier notification.Sender, publisher events.Publisher, logger zerolog.Logger) domain.OrderService {
	return &orderService{
		store:    store,
		notifier: notifier,
		events:   publisher,
		logger:   logger.With().Str("component", "order_service").Logger(),
	}
}

// CreateOrder places a new order.
//
// The order row and all of its item rows are written in one transaction: a
// partial order with some items missing is a correctness violation. The
// confirmation notification runs after commit and is best-effort only.
func (s *orderService) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (*domain.OrderDetail, error) {
	const op = "order.create"

	if len(params.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	if params.UserID == "" && (params.Guest == nil || params.Guest.Email == "") {
		return nil, domain.ErrMissingCustomer
	}

	var userID pgtype.UUID
	if params.UserID != "" {
		if err := userID.Scan(params.UserID); err != nil {
			return nil, domain.Invalid(op, "invalid user ID")
		}
	}

	for i, item := range params.Items {
		if item.Quantity <= 0 {
			return nil, domain.Errorf(domain.EINVALID, op, "item %d: quantity must be positive", i)
		}
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to open transaction")
	}
	defer tx.Rollback(ctx) // no-op after commit

	q := tx.Queries()

	// Resolve products first: the unit price snapshot and the order total
	// both come from the live catalog at this moment.
	type line struct {
		product  repository.Product
		variant  pgtype.UUID
		quantity int32
	}
	lines := make([]line, 0, len(params.Items))
	var totalCents int64
	for _, item := range params.Items {
		var productID pgtype.UUID
		if err := productID.Scan(item.ProductID); err != nil {
			return nil, domain.Errorf(domain.EINVALID, op, "invalid product ID: %s", item.ProductID)
		}

		product, err := q.GetProductByID(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrProductNotFound
			}
			return nil, domain.Internal(err, op, "failed to load product")
		}

		var variantID pgtype.UUID
		if item.VariantID != "" {
			if err := variantID.Scan(item.VariantID); err != nil {
				return nil, domain.Errorf(domain.EINVALID, op, "invalid variant ID: %s", item.VariantID)
			}
		}

		lines = append(lines, line{product: product, variant: variantID, quantity: item.Quantity})
		totalCents += product.PriceCents * int64(item.Quantity)
	}

	shipping, err := q.CreateAddress(ctx, addressParams(params.ShippingAddress))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save shipping address")
	}
	billing, err := q.CreateAddress(ctx, addressParams(params.BillingAddress))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save billing address")
	}

	orderParams := repository.CreateOrderParams{
		OrderNumber:       generateOrderNumber(),
		Status:            string(domain.OrderStatusPending),
		PaymentStatus:     string(domain.PaymentStatusPending),
		PaymentMethod:     params.PaymentMethod,
		Notes:             textOrNull(params.Notes),
		UserID:            userID,
		ShippingAddressID: shipping.ID,
		BillingAddressID:  billing.ID,
		TotalCents:        totalCents,
	}
	if params.Guest != nil {
		orderParams.GuestName = textOrNull(params.Guest.Name)
		orderParams.GuestEmail = textOrNull(params.Guest.Email)
		orderParams.GuestPhone = textOrNull(params.Guest.Phone)
	}

	order, err := q.CreateOrder(ctx, orderParams)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save order")
	}

	items := make([]repository.OrderItem, 0, len(lines))
	for _, l := range lines {
		item, err := q.CreateOrderItem(ctx, repository.CreateOrderItemParams{
			OrderID:        order.ID,
			ProductID:      l.product.ID,
			VariantID:      l.variant,
			ProductName:    l.product.Name,
			UnitPriceCents: l.product.PriceCents,
			Quantity:       l.quantity,
			TotalCents:     l.product.PriceCents * int64(l.quantity),
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to save order item")
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, op, "failed to commit order")
	}

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Int64("total_cents", order.TotalCents).
		Int("items", len(items)).
		Msg("order created")

	if telemetry.Business != nil {
		telemetry.Business.OrdersCreated.WithLabelValues(order.PaymentMethod).Inc()
		telemetry.Business.OrderValue.WithLabelValues(order.PaymentMethod).Observe(float64(order.TotalCents))
		telemetry.Business.OrderItemCount.Observe(float64(len(items)))
	}

	s.events.PublishOrderEvent(events.SubjectOrderCreated, orderEvent(order))
	s.sendConfirmation(ctx, order, items)

	return &domain.OrderDetail{
		Order:           order,
		Items:           items,
		ShippingAddress: shipping,
		BillingAddress:  billing,
	}, nil
}

// GetOrder retrieves a single order by ID with items and addresses.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	const op = "order.get"

	var id pgtype.UUID
	if err := id.Scan(orderID); err != nil {
		return nil, domain.Invalid(op, "invalid order ID")
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, op, "failed to load order")
	}

	return s.loadDetail(ctx, op, order)
}

// GetOrderByNumber retrieves a single order by its order number.
func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.OrderDetail, error) {
	const op = "order.get_by_number"

	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, op, "failed to load order")
	}

	return s.loadDetail(ctx, op, order)
}

// ListOrders returns orders for the back office, newest first.
func (s *orderService) ListOrders(ctx context.Context, params domain.ListOrdersParams) ([]repository.Order, error) {
	const op = "order.list"

	if params.Status != "" && !domain.OrderStatus(params.Status).Valid() {
		return nil, domain.ErrUnknownStatus
	}

	orders, err := s.store.ListOrders(ctx, repository.ListOrdersParams{
		Status: params.Status,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list orders")
	}
	return orders, nil
}

// UpdateStatus applies a partial status update. Both supplied values are
// validated before anything is written; an unrecognized value mutates
// neither field.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, params domain.UpdateStatusParams) (*repository.Order, error) {
	const op = "order.update_status"

	var id pgtype.UUID
	if err := id.Scan(orderID); err != nil {
		return nil, domain.Invalid(op, "invalid order ID")
	}

	if params.Status == nil && params.PaymentStatus == nil {
		return nil, domain.ErrNoStatusChange
	}

	update := repository.UpdateOrderStatusParams{ID: id}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, domain.ErrUnknownStatus
		}
		update.Status = string(*params.Status)
	}
	if params.PaymentStatus != nil {
		if !params.PaymentStatus.Valid() {
			return nil, domain.ErrUnknownPayStatus
		}
		update.PaymentStatus = string(*params.PaymentStatus)
	}

	order, err := s.store.UpdateOrderStatus(ctx, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, op, "failed to update order status")
	}

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Str("status", order.Status).
		Str("payment_status", order.PaymentStatus).
		Msg("order status updated")

	return &order, nil
}

func (s *orderService) loadDetail(ctx context.Context, op string, order repository.Order) (*domain.OrderDetail, error) {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}

	detail := &domain.OrderDetail{Order: order, Items: items}

	if order.ShippingAddressID.Valid {
		addr, err := s.store.GetAddressByID(ctx, order.ShippingAddressID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Internal(err, op, "failed to load shipping address")
		}
		detail.ShippingAddress = addr
	}
	if order.BillingAddressID.Valid {
		addr, err := s.store.GetAddressByID(ctx, order.BillingAddressID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Internal(err, op, "failed to load billing address")
		}
		detail.BillingAddress = addr
	}

	return detail, nil
}

// sendConfirmation delivers the order confirmation. Failures are logged and
// swallowed; they never affect the order creation result.
func (s *orderService) sendConfirmation(ctx context.Context, order repository.Order, items []repository.OrderItem) {
	email := s.customerEmail(ctx, order)
	if email == "" {
		s.logger.Warn().Str("order_number", order.OrderNumber).Msg("no customer email, skipping confirmation")
		return
	}

	msg := buildConfirmation(email, order, items)
	if _, err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("failed to send order confirmation")
	}
}

func (s *orderService) customerEmail(ctx context.Context, order repository.Order) string {
	if order.GuestEmail.Valid && order.GuestEmail.String != "" {
		return order.GuestEmail.String
	}
	if order.UserID.Valid {
		user, err := s.store.GetUserByID(ctx, order.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Str("order_number", order.OrderNumber).Msg("failed to load user for confirmation")
			return ""
		}
		return user.Email
	}
	return ""
}

// buildConfirmation renders the plain text confirmation message.
func buildConfirmation(email string, order repository.Order, items []repository.OrderItem) *notification.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", order.OrderNumber)
	for _, item := range items {
		fmt.Fprintf(&b, "  %dx %s - %s\n", item.Quantity, item.ProductName, formatCents(item.TotalCents))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", formatCents(order.TotalCents))
	b.WriteString("\nWe will confirm your payment shortly.\n")

	return &notification.Message{
		To:       []string{email},
		Subject:  fmt.Sprintf("Order confirmation %s", order.OrderNumber),
		TextBody: b.String(),
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d EUR", cents/100, cents%100)
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateOrderNumber builds a human-facing order number:
// ORD-<epoch millis>-<9 random base36 chars, uppercased>. Collisions are
// negligible but only the store's uniqueness constraint guarantees them away.
func generateOrderNumber() string {
	var buf [9]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a nanosecond suffix rather than aborting checkout.
		return fmt.Sprintf("ORD-%d-%09d", time.Now().UnixMilli(), time.Now().UnixNano()%1e9)
	}
	for i, c := range buf {
		buf[i] = orderNumberAlphabet[int(c)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), string(buf[:]))
}

func orderEvent(order repository.Order) events.OrderEvent {
	return events.OrderEvent{
		OrderID:       uuidString(order.ID),
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
	}
}

func addressParams(addr domain.AddressInput) repository.CreateAddressParams {
	return repository.CreateAddressParams{
		FullName:     addr.FullName,
		AddressLine1: addr.AddressLine1,
		AddressLine2: textOrNull(addr.AddressLine2),
		City:         addr.City,
		State:        addr.State,
		PostalCode:   addr.PostalCode,
		Country:      addr.Country,
		Phone:        textOrNull(addr.Phone),
	}
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	b := id.Bytes
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
