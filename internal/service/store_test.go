package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/marchand/essence/internal/repository"
)

// memStore is an in-memory repository.Store. Transactions stage their writes
// on a copy of the data and swap it in on commit, so a rolled-back
// transaction leaves no trace, same as the real store.
type memStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	orders    map[string]repository.Order
	items     map[string][]repository.OrderItem
	addresses map[string]repository.Address
	products  map[string]repository.Product
	users     map[string]repository.User
	sessions  map[string]string // token -> user id

	// failOn maps an operation name to the number of successful calls
	// allowed before it starts returning an error.
	failOn map[string]int
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		orders:    map[string]repository.Order{},
		items:     map[string][]repository.OrderItem{},
		addresses: map[string]repository.Address{},
		products:  map[string]repository.Product{},
		users:     map[string]repository.User{},
		sessions:  map[string]string{},
		failOn:    map[string]int{},
	}}
}

var _ repository.Store = (*memStore)(nil)

func (d *memData) clone() *memData {
	c := &memData{
		orders:    make(map[string]repository.Order, len(d.orders)),
		items:     make(map[string][]repository.OrderItem, len(d.items)),
		addresses: make(map[string]repository.Address, len(d.addresses)),
		products:  make(map[string]repository.Product, len(d.products)),
		users:     make(map[string]repository.User, len(d.users)),
		sessions:  make(map[string]string, len(d.sessions)),
		failOn:    make(map[string]int, len(d.failOn)),
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]repository.OrderItem(nil), v...)
	}
	for k, v := range d.addresses {
		c.addresses[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.failOn {
		c.failOn[k] = v
	}
	return c
}

func (d *memData) checkFail(op string) error {
	n, ok := d.failOn[op]
	if !ok {
		return nil
	}
	if n <= 0 {
		return fmt.Errorf("injected %s failure", op)
	}
	d.failOn[op] = n - 1
	return nil
}

func (s *memStore) BeginTx(ctx context.Context) (repository.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memTx{store: s, staged: s.data.clone()}, nil
}

type memTx struct {
	store  *memStore
	staged *memData
}

func (t *memTx) Queries() repository.Querier { return &memQueries{data: t.staged} }

func (t *memTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.data = t.staged
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error { return nil }

// memQueries runs the Querier operations against one memData snapshot.
type memQueries struct{ data *memData }

func newUUID() pgtype.UUID {
	var id pgtype.UUID
	id.Bytes = uuid.New()
	id.Valid = true
	return id
}

func (q *memQueries) CreateOrder(ctx context.Context, params repository.CreateOrderParams) (repository.Order, error) {
	if err := q.data.checkFail("CreateOrder"); err != nil {
		return repository.Order{}, err
	}
	for _, o := range q.data.orders {
		if o.OrderNumber == params.OrderNumber {
			return repository.Order{}, fmt.Errorf("duplicate order number %s", params.OrderNumber)
		}
	}
	order := repository.Order{
		ID:                newUUID(),
		OrderNumber:       params.OrderNumber,
		Status:            params.Status,
		PaymentStatus:     params.PaymentStatus,
		PaymentMethod:     params.PaymentMethod,
		Notes:             params.Notes,
		UserID:            params.UserID,
		GuestName:         params.GuestName,
		GuestEmail:        params.GuestEmail,
		GuestPhone:        params.GuestPhone,
		ShippingAddressID: params.ShippingAddressID,
		BillingAddressID:  params.BillingAddressID,
		TotalCents:        params.TotalCents,
	}
	q.data.orders[uuidString(order.ID)] = order
	return order, nil
}

func (q *memQueries) CreateOrderItem(ctx context.Context, params repository.CreateOrderItemParams) (repository.OrderItem, error) {
	if err := q.data.checkFail("CreateOrderItem"); err != nil {
		return repository.OrderItem{}, err
	}
	item := repository.OrderItem{
		ID:             newUUID(),
		OrderID:        params.OrderID,
		ProductID:      params.ProductID,
		VariantID:      params.VariantID,
		ProductName:    params.ProductName,
		UnitPriceCents: params.UnitPriceCents,
		Quantity:       params.Quantity,
		TotalCents:     params.TotalCents,
	}
	key := uuidString(params.OrderID)
	q.data.items[key] = append(q.data.items[key], item)
	return item, nil
}

func (q *memQueries) CreateAddress(ctx context.Context, params repository.CreateAddressParams) (repository.Address, error) {
	addr := repository.Address{
		ID:           newUUID(),
		FullName:     params.FullName,
		AddressLine1: params.AddressLine1,
		AddressLine2: params.AddressLine2,
		City:         params.City,
		State:        params.State,
		PostalCode:   params.PostalCode,
		Country:      params.Country,
		Phone:        params.Phone,
	}
	q.data.addresses[uuidString(addr.ID)] = addr
	return addr, nil
}

func (q *memQueries) GetOrderByID(ctx context.Context, id pgtype.UUID) (repository.Order, error) {
	order, ok := q.data.orders[uuidString(id)]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	return order, nil
}

func (q *memQueries) GetOrderByNumber(ctx context.Context, orderNumber string) (repository.Order, error) {
	for _, o := range q.data.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return repository.Order{}, pgx.ErrNoRows
}

func (q *memQueries) GetOrderItems(ctx context.Context, orderID pgtype.UUID) ([]repository.OrderItem, error) {
	return append([]repository.OrderItem(nil), q.data.items[uuidString(orderID)]...), nil
}

func (q *memQueries) GetAddressByID(ctx context.Context, id pgtype.UUID) (repository.Address, error) {
	addr, ok := q.data.addresses[uuidString(id)]
	if !ok {
		return repository.Address{}, pgx.ErrNoRows
	}
	return addr, nil
}

func (q *memQueries) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]repository.Order, error) {
	var orders []repository.Order
	for _, o := range q.data.orders {
		if params.Status == "" || o.Status == params.Status {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (q *memQueries) UpdateOrderStatus(ctx context.Context, params repository.UpdateOrderStatusParams) (repository.Order, error) {
	order, ok := q.data.orders[uuidString(params.ID)]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	if params.Status != "" {
		order.Status = params.Status
	}
	if params.PaymentStatus != "" {
		order.PaymentStatus = params.PaymentStatus
	}
	q.data.orders[uuidString(params.ID)] = order
	return order, nil
}

func (q *memQueries) SetOrderPaymentResult(ctx context.Context, params repository.SetOrderPaymentResultParams) (repository.Order, error) {
	if err := q.data.checkFail("SetOrderPaymentResult"); err != nil {
		return repository.Order{}, err
	}
	order, ok := q.data.orders[uuidString(params.ID)]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	order.Status = params.Status
	order.PaymentStatus = params.PaymentStatus
	if params.TransactionID.Valid {
		order.TransactionID = params.TransactionID
	}
	q.data.orders[uuidString(params.ID)] = order
	return order, nil
}

func (q *memQueries) GetProductByID(ctx context.Context, id pgtype.UUID) (repository.Product, error) {
	product, ok := q.data.products[uuidString(id)]
	if !ok {
		return repository.Product{}, pgx.ErrNoRows
	}
	return product, nil
}

func (q *memQueries) DecrementProductStock(ctx context.Context, params repository.DecrementProductStockParams) error {
	if err := q.data.checkFail("DecrementProductStock"); err != nil {
		return err
	}
	product, ok := q.data.products[uuidString(params.ID)]
	if !ok || !product.StockCount.Valid {
		return nil
	}
	next := product.StockCount.Int32 - params.Quantity
	if next < 0 {
		next = 0
	}
	product.StockCount.Int32 = next
	q.data.products[uuidString(params.ID)] = product
	return nil
}

func (q *memQueries) GetUserByID(ctx context.Context, id pgtype.UUID) (repository.User, error) {
	user, ok := q.data.users[uuidString(id)]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (q *memQueries) GetUserBySessionToken(ctx context.Context, token string) (repository.User, error) {
	userID, ok := q.data.sessions[token]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	user, ok := q.data.users[userID]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	return user, nil
}

// Store-level (non-transactional) operations take the lock and run against
// the live data.

func (s *memStore) q() *memQueries { return &memQueries{data: s.data} }

func (s *memStore) CreateOrder(ctx context.Context, p repository.CreateOrderParams) (repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateOrder(ctx, p)
}

func (s *memStore) CreateOrderItem(ctx context.Context, p repository.CreateOrderItemParams) (repository.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateOrderItem(ctx, p)
}

func (s *memStore) CreateAddress(ctx context.Context, p repository.CreateAddressParams) (repository.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateAddress(ctx, p)
}

func (s *memStore) GetOrderByID(ctx context.Context, id pgtype.UUID) (repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetOrderByID(ctx, id)
}

func (s *memStore) GetOrderByNumber(ctx context.Context, n string) (repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetOrderByNumber(ctx, n)
}

func (s *memStore) GetOrderItems(ctx context.Context, id pgtype.UUID) ([]repository.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetOrderItems(ctx, id)
}

func (s *memStore) GetAddressByID(ctx context.Context, id pgtype.UUID) (repository.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetAddressByID(ctx, id)
}

func (s *memStore) ListOrders(ctx context.Context, p repository.ListOrdersParams) ([]repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().ListOrders(ctx, p)
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, p repository.UpdateOrderStatusParams) (repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdateOrderStatus(ctx, p)
}

func (s *memStore) SetOrderPaymentResult(ctx context.Context, p repository.SetOrderPaymentResultParams) (repository.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().SetOrderPaymentResult(ctx, p)
}

func (s *memStore) GetProductByID(ctx context.Context, id pgtype.UUID) (repository.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetProductByID(ctx, id)
}

func (s *memStore) DecrementProductStock(ctx context.Context, p repository.DecrementProductStockParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().DecrementProductStock(ctx, p)
}

func (s *memStore) GetUserByID(ctx context.Context, id pgtype.UUID) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetUserByID(ctx, id)
}

func (s *memStore) GetUserBySessionToken(ctx context.Context, token string) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().GetUserBySessionToken(ctx, token)
}

// seedProduct adds a product to the store. stock < 0 means a null stock
// counter (made-to-order).
func (s *memStore) seedProduct(name string, priceCents int64, stock int32) repository.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := repository.Product{
		ID:         newUUID(),
		Name:       name,
		Slug:       name,
		PriceCents: priceCents,
	}
	if stock >= 0 {
		p.StockCount = pgtype.Int4{Int32: stock, Valid: true}
	}
	s.data.products[uuidString(p.ID)] = p
	return p
}

func (s *memStore) seedUser(email string) repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := repository.User{ID: newUUID(), Email: email, Role: "customer"}
	s.data.users[uuidString(u.ID)] = u
	return u
}

func (s *memStore) productStock(id pgtype.UUID) pgtype.Int4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.products[uuidString(id)].StockCount
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

func (s *memStore) failAfter(op string, successes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.failOn[op] = successes
}
