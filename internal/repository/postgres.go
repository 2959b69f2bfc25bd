package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same query methods
// run inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Querier against a pgx connection source.
type Queries struct {
	db DBTX
}

// PGStore implements Store backed by a pgx connection pool.
type PGStore struct {
	Queries
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed store.
func New(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Queries: Queries{db: pool}, pool: pool}
}

var _ Store = (*PGStore)(nil)

// BeginTx opens a transaction. The returned Tx's Queries run against it.
func (s *PGStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx, queries: Queries{db: tx}}, nil
}

type pgTx struct {
	tx      pgx.Tx
	queries Queries
}

func (t *pgTx) Queries() Querier { return &t.queries }

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

const createOrder = `
INSERT INTO orders (
    order_number, status, payment_status, payment_method, notes,
    user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at`

func (q *Queries) CreateOrder(ctx context.Context, params CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		params.OrderNumber, params.Status, params.PaymentStatus, params.PaymentMethod,
		params.Notes, params.UserID, params.GuestName, params.GuestEmail, params.GuestPhone,
		params.ShippingAddressID, params.BillingAddressID, params.TotalCents,
	)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (
    order_id, product_id, variant_id, product_name,
    unit_price_cents, quantity, total_cents
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, order_id, product_id, variant_id, product_name,
    unit_price_cents, quantity, total_cents`

func (q *Queries) CreateOrderItem(ctx context.Context, params CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		params.OrderID, params.ProductID, params.VariantID, params.ProductName,
		params.UnitPriceCents, params.Quantity, params.TotalCents,
	)
	return scanOrderItem(row)
}

const createAddress = `
INSERT INTO addresses (
    full_name, address_line1, address_line2, city, state, postal_code, country, phone
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, full_name, address_line1, address_line2, city, state, postal_code, country, phone`

func (q *Queries) CreateAddress(ctx context.Context, params CreateAddressParams) (Address, error) {
	row := q.db.QueryRow(ctx, createAddress,
		params.FullName, params.AddressLine1, params.AddressLine2,
		params.City, params.State, params.PostalCode, params.Country, params.Phone,
	)
	return scanAddress(row)
}

const getOrderByID = `
SELECT id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at
FROM orders WHERE id = $1`

func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const getOrderByNumber = `
SELECT id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at
FROM orders WHERE order_number = $1`

func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByNumber, orderNumber))
}

const getOrderItems = `
SELECT id, order_id, product_id, variant_id, product_name,
    unit_price_cents, quantity, total_cents
FROM order_items WHERE order_id = $1 ORDER BY id`

func (q *Queries) GetOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, getOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const getAddressByID = `
SELECT id, full_name, address_line1, address_line2, city, state, postal_code, country, phone
FROM addresses WHERE id = $1`

func (q *Queries) GetAddressByID(ctx context.Context, id pgtype.UUID) (Address, error) {
	return scanAddress(q.db.QueryRow(ctx, getAddressByID, id))
}

const listOrders = `
SELECT id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at
FROM orders
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListOrders(ctx context.Context, params ListOrdersParams) ([]Order, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(ctx, listOrders, params.Status, limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

const updateOrderStatus = `
UPDATE orders SET
    status = COALESCE(NULLIF($2, ''), status),
    payment_status = COALESCE(NULLIF($3, ''), payment_status),
    updated_at = now()
WHERE id = $1
RETURNING id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at`

func (q *Queries) UpdateOrderStatus(ctx context.Context, params UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, params.ID, params.Status, params.PaymentStatus))
}

const setOrderPaymentResult = `
UPDATE orders SET
    status = $2,
    payment_status = $3,
    transaction_id = COALESCE($4, transaction_id),
    updated_at = now()
WHERE id = $1
RETURNING id, order_number, status, payment_status, payment_method,
    transaction_id, notes, user_id, guest_name, guest_email, guest_phone,
    shipping_address_id, billing_address_id, total_cents, created_at, updated_at`

func (q *Queries) SetOrderPaymentResult(ctx context.Context, params SetOrderPaymentResultParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderPaymentResult,
		params.ID, params.Status, params.PaymentStatus, params.TransactionID))
}

const getProductByID = `
SELECT id, name, slug, price_cents, stock_count, created_at, updated_at
FROM products WHERE id = $1`

func (q *Queries) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	var p Product
	err := q.db.QueryRow(ctx, getProductByID, id).Scan(
		&p.ID, &p.Name, &p.Slug, &p.PriceCents, &p.StockCount, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Stock never goes negative: the decrement is clamped in SQL. Rows with a
// null stock counter are excluded so made-to-order products are untouched.
const decrementProductStock = `
UPDATE products SET
    stock_count = GREATEST(stock_count - $2, 0),
    updated_at = now()
WHERE id = $1 AND stock_count IS NOT NULL`

func (q *Queries) DecrementProductStock(ctx context.Context, params DecrementProductStockParams) error {
	_, err := q.db.Exec(ctx, decrementProductStock, params.ID, params.Quantity)
	return err
}

const getUserByID = `
SELECT id, email, first_name, last_name, role, created_at
FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByID, id).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt,
	)
	return u, err
}

const getUserBySessionToken = `
SELECT u.id, u.email, u.first_name, u.last_name, u.role, u.created_at
FROM users u
JOIN sessions s ON s.user_id = u.id
WHERE s.token = $1 AND s.expires_at > now()`

func (q *Queries) GetUserBySessionToken(ctx context.Context, token string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserBySessionToken, token).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt,
	)
	return u, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.TransactionID, &o.Notes, &o.UserID, &o.GuestName, &o.GuestEmail, &o.GuestPhone,
		&o.ShippingAddressID, &o.BillingAddressID, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderItem(row scannable) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.ProductID, &i.VariantID, &i.ProductName,
		&i.UnitPriceCents, &i.Quantity, &i.TotalCents,
	)
	return i, err
}

func scanAddress(row scannable) (Address, error) {
	var a Address
	err := row.Scan(
		&a.ID, &a.FullName, &a.AddressLine1, &a.AddressLine2,
		&a.City, &a.State, &a.PostalCode, &a.Country, &a.Phone,
	)
	return a, err
}
