package domain

import (
	"context"

	"github.com/marchand/essence/internal/repository"
)

// OrderStatus is the fulfillment-facing order state.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
)

// Valid reports whether s is one of the recognized order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusPaymentFailed,
		OrderStatusCancelled, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// PaymentStatus tracks the payment leg of an order. It is maintained as a
// pair with OrderStatus but the two fields are independently settable;
// manual updates perform no transition-graph validation.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Valid reports whether s is one of the recognized payment statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Order-related domain errors.
var (
	ErrOrderNotFound    = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrProductNotFound  = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrEmptyOrder       = &Error{Code: EINVALID, Message: "Order must contain at least one item"}
	ErrMissingCustomer  = &Error{Code: EUNAUTHORIZED, Message: "Order requires a signed-in user or guest contact details"}
	ErrUnknownStatus    = &Error{Code: EINVALID, Message: "Unknown order status value"}
	ErrUnknownPayStatus = &Error{Code: EINVALID, Message: "Unknown payment status value"}
	ErrNoStatusChange   = &Error{Code: EINVALID, Message: "No status fields supplied"}
)

// GuestContact identifies a guest purchaser. Orders carry either a user
// reference or guest contact details, never both.
type GuestContact struct {
	Name  string
	Email string
	Phone string
}

// OrderItemInput is one line of a checkout request.
type OrderItemInput struct {
	ProductID string
	VariantID string // optional
	Quantity  int32
}

// AddressInput is a shipping or billing address supplied at checkout.
type AddressInput struct {
	FullName     string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	Phone        string
}

// CreateOrderParams contains everything needed to place an order.
type CreateOrderParams struct {
	UserID          string        // empty for guest checkout
	Guest           *GuestContact // required when UserID is empty
	Items           []OrderItemInput
	ShippingAddress AddressInput
	BillingAddress  AddressInput
	PaymentMethod   string
	Notes           string
}

// UpdateStatusParams is a partial status update. Nil fields are left
// untouched; an unrecognized value rejects the whole update.
type UpdateStatusParams struct {
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
}

// ListOrdersParams filters the admin order listing.
type ListOrdersParams struct {
	Status string
	Limit  int32
	Offset int32
}

// OrderDetail aggregates an order with its items and addresses.
type OrderDetail struct {
	Order           repository.Order
	Items           []repository.OrderItem
	ShippingAddress repository.Address
	BillingAddress  repository.Address
}

// OrderService provides business logic for order operations.
type OrderService interface {
	// CreateOrder places a new order in PENDING/PENDING state. The order and
	// all of its items are persisted atomically; a confirmation notification
	// is sent best-effort after commit.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*OrderDetail, error)

	// GetOrder retrieves a single order by ID.
	GetOrder(ctx context.Context, orderID string) (*OrderDetail, error)

	// GetOrderByNumber retrieves a single order by its order number, the only
	// identifier shared with the payment gateway.
	GetOrderByNumber(ctx context.Context, orderNumber string) (*OrderDetail, error)

	// ListOrders returns orders for the back office, newest first.
	ListOrders(ctx context.Context, params ListOrdersParams) ([]repository.Order, error)

	// UpdateStatus applies a partial status/payment-status update after
	// validating both values against their enum sets. An unrecognized value
	// leaves both fields untouched.
	UpdateStatus(ctx context.Context, orderID string, params UpdateStatusParams) (*repository.Order, error)
}
