package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Order is a customer order row. Status and payment status are stored as the
// uppercase enum strings defined in the domain package.
type Order struct {
	ID                pgtype.UUID
	OrderNumber       string
	Status            string
	PaymentStatus     string
	PaymentMethod     string
	TransactionID     pgtype.Int8 // gateway transaction id, set once associated
	Notes             pgtype.Text
	UserID            pgtype.UUID // null for guest orders
	GuestName         pgtype.Text
	GuestEmail        pgtype.Text
	GuestPhone        pgtype.Text
	ShippingAddressID pgtype.UUID
	BillingAddressID  pgtype.UUID
	TotalCents        int64
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
}

// OrderItem is a line of an order. Unit price is a snapshot taken at order
// time so historical orders stay accurate when catalog prices move.
type OrderItem struct {
	ID             pgtype.UUID
	OrderID        pgtype.UUID
	ProductID      pgtype.UUID
	VariantID      pgtype.UUID // null when the base product was ordered
	ProductName    string
	UnitPriceCents int64
	Quantity       int32
	TotalCents     int64
}

// Product is the slice of the catalog the order flow needs. StockCount is
// null for made-to-order products that carry no stock counter.
type Product struct {
	ID         pgtype.UUID
	Name       string
	Slug       string
	PriceCents int64
	StockCount pgtype.Int4
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
}

// Address is a shipping or billing address attached to an order.
type Address struct {
	ID           pgtype.UUID
	FullName     string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	State        string
	PostalCode   string
	Country      string
	Phone        pgtype.Text
}

// User is a registered customer or back-office administrator.
type User struct {
	ID        pgtype.UUID
	Email     string
	FirstName string
	LastName  string
	Role      string
	CreatedAt pgtype.Timestamptz
}
