package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// CreateOrderParams carries every column of a new order row.
type CreateOrderParams struct {
	OrderNumber       string
	Status            string
	PaymentStatus     string
	PaymentMethod     string
	Notes             pgtype.Text
	UserID            pgtype.UUID
	GuestName         pgtype.Text
	GuestEmail        pgtype.Text
	GuestPhone        pgtype.Text
	ShippingAddressID pgtype.UUID
	BillingAddressID  pgtype.UUID
	TotalCents        int64
}

// CreateOrderItemParams carries one order line.
type CreateOrderItemParams struct {
	OrderID        pgtype.UUID
	ProductID      pgtype.UUID
	VariantID      pgtype.UUID
	ProductName    string
	UnitPriceCents int64
	Quantity       int32
	TotalCents     int64
}

// CreateAddressParams carries a shipping or billing address.
type CreateAddressParams struct {
	FullName     string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	State        string
	PostalCode   string
	Country      string
	Phone        pgtype.Text
}

// UpdateOrderStatusParams is a partial status update; empty strings leave the
// corresponding column untouched.
type UpdateOrderStatusParams struct {
	ID            pgtype.UUID
	Status        string
	PaymentStatus string
}

// SetOrderPaymentResultParams applies a gateway-driven payment result: both
// status fields plus the associated transaction id, in one statement.
type SetOrderPaymentResultParams struct {
	ID            pgtype.UUID
	Status        string
	PaymentStatus string
	TransactionID pgtype.Int8
}

// DecrementProductStockParams decrements a product's stock count by Quantity,
// clamped at zero. Products with a null stock counter are left untouched.
type DecrementProductStockParams struct {
	ID       pgtype.UUID
	Quantity int32
}

// ListOrdersParams filters and pages the order listing.
type ListOrdersParams struct {
	Status string // empty matches all statuses
	Limit  int32
	Offset int32
}

// Querier is the set of store operations the order and payment flow uses.
// Store implements it against PostgreSQL; tests substitute an in-memory fake.
type Querier interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error)
	CreateOrderItem(ctx context.Context, params CreateOrderItemParams) (OrderItem, error)
	CreateAddress(ctx context.Context, params CreateAddressParams) (Address, error)
	GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	GetOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error)
	GetAddressByID(ctx context.Context, id pgtype.UUID) (Address, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, params UpdateOrderStatusParams) (Order, error)
	SetOrderPaymentResult(ctx context.Context, params SetOrderPaymentResultParams) (Order, error)
	GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error)
	DecrementProductStock(ctx context.Context, params DecrementProductStockParams) error
	GetUserByID(ctx context.Context, id pgtype.UUID) (User, error)
	GetUserBySessionToken(ctx context.Context, token string) (User, error)
}

// Tx is a transaction over the store. Queries issued through Queries() are
// committed or rolled back together.
type Tx interface {
	Queries() Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a Querier that can also open transactions.
type Store interface {
	Querier
	BeginTx(ctx context.Context) (Tx, error)
}
