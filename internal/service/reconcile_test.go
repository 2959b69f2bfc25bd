package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchand/essence/internal/domain"
	"github.com/marchand/essence/internal/events"
	"github.com/marchand/essence/internal/gateway"
	"github.com/marchand/essence/internal/notification"
	"github.com/marchand/essence/internal/repository"
)

type reconcileFixture struct {
	store     *memStore
	gateway   *gateway.MockClient
	sender    *notification.MockSender
	publisher *capturePublisher
	orders    domain.OrderService
	rec       *Reconciler
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	store := newMemStore()
	gw := gateway.NewMockClient()
	sender := &notification.MockSender{}
	publisher := newCapturePublisher()
	return &reconcileFixture{
		store:     store,
		gateway:   gw,
		sender:    sender,
		publisher: publisher,
		orders:    NewOrderService(store, &notification.MockSender{}, events.NoopPublisher{}, zerolog.Nop()),
		rec:       NewReconciler(store, gw, sender, publisher, zerolog.Nop(), "https://shop.example.com/checkout/success"),
	}
}

func (f *reconcileFixture) placeOrder(t *testing.T, items ...domain.OrderItemInput) repository.Order {
	t.Helper()
	detail, err := f.orders.CreateOrder(context.Background(), domain.CreateOrderParams{
		Guest:           &domain.GuestContact{Name: "Claire Marchand", Email: "claire@example.com"},
		Items:           items,
		ShippingAddress: testAddress(),
		BillingAddress:  testAddress(),
		PaymentMethod:   "card",
	})
	require.NoError(t, err)
	return detail.Order
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Callback
	}{
		{
			name: "canonical shape",
			body: `{"transactionId": 7741, "clientOrderId": "ORD-1-ABC", "status": "approved"}`,
			want: Callback{TransactionID: 7741, HasTxID: true, OrderNumber: "ORD-1-ABC", Status: "approved"},
		},
		{
			name: "legacy pascal case",
			body: `{"TransactionId": 7741, "OrderId": "ORD-1-ABC", "Status": "approved"}`,
			want: Callback{TransactionID: 7741, HasTxID: true, OrderNumber: "ORD-1-ABC", Status: "approved"},
		},
		{
			name: "camel case wins over pascal case",
			body: `{"transactionId": 1, "TransactionId": 2, "clientOrderId": "ORD-A", "orderId": "ORD-B", "status": "pending"}`,
			want: Callback{TransactionID: 1, HasTxID: true, OrderNumber: "ORD-A", Status: "pending"},
		},
		{
			name: "transaction id as string",
			body: `{"Transaction": "7741", "orderId": "ORD-1-ABC", "status": "declined"}`,
			want: Callback{TransactionID: 7741, HasTxID: true, OrderNumber: "ORD-1-ABC", Status: "declined"},
		},
		{
			name: "no transaction id",
			body: `{"clientOrderId": "ORD-1-ABC", "status": "cancelled"}`,
			want: Callback{OrderNumber: "ORD-1-ABC", Status: "cancelled"},
		},
		{
			name: "empty higher-priority alias falls through",
			body: `{"clientOrderId": "", "orderId": "ORD-1-REAL", "status": "", "Status": "approved"}`,
			want: Callback{OrderNumber: "ORD-1-REAL", Status: "approved"},
		},
		{
			name: "unparseable transaction id falls through",
			body: `{"transactionId": "n/a", "TransactionId": 7741, "orderId": "ORD-1-ABC", "status": "approved"}`,
			want: Callback{TransactionID: 7741, HasTxID: true, OrderNumber: "ORD-1-ABC", Status: "approved"},
		},
		{
			name: "null alias falls through",
			body: `{"transactionId": null, "Transaction": "12", "clientOrderId": null, "OrderId": "ORD-1-ABC", "status": "pending"}`,
			want: Callback{TransactionID: 12, HasTxID: true, OrderNumber: "ORD-1-ABC", Status: "pending"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallback([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in         string
		order      domain.OrderStatus
		payment    domain.PaymentStatus
		recognized bool
	}{
		{"approved", domain.OrderStatusPaid, domain.PaymentStatusCompleted, true},
		{"SUCCESS", domain.OrderStatusPaid, domain.PaymentStatusCompleted, true},
		{"completed", domain.OrderStatusPaid, domain.PaymentStatusCompleted, true},
		{"declined", domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed, true},
		{"failed", domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed, true},
		{"rejected", domain.OrderStatusPaymentFailed, domain.PaymentStatusFailed, true},
		{"pending", domain.OrderStatusPending, domain.PaymentStatusPending, true},
		{"processing", domain.OrderStatusPending, domain.PaymentStatusPending, true},
		{"cancelled", domain.OrderStatusCancelled, domain.PaymentStatusCancelled, true},
		{"canceled", domain.OrderStatusCancelled, domain.PaymentStatusCancelled, true},
		{"3dsecure_hold", domain.OrderStatusPending, domain.PaymentStatusPending, false},
		{"", domain.OrderStatusPending, domain.PaymentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			order, payment, recognized := mapStatus(tt.in)
			assert.Equal(t, tt.order, order)
			assert.Equal(t, tt.payment, payment)
			assert.Equal(t, tt.recognized, recognized)
		})
	}
}

func TestProcessCallbackApproved(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	oud := f.store.seedProduct("Oud Imperial 100ml", 15900, 5)
	order := f.placeOrder(t,
		domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 3},
		domain.OrderItemInput{ProductID: uuidString(oud.ID), Quantity: 1},
	)

	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}

	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "approved"}`, order.OrderNumber)
	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, order.OrderNumber, result.OrderID)
	assert.Equal(t, "PAID", result.Status)
	assert.Equal(t, int64(7741), result.TransactionID)
	assert.Equal(t, "https://shop.example.com/checkout/success", result.RedirectURL)

	updated, err := f.store.GetOrderByNumber(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "PAID", updated.Status)
	assert.Equal(t, "COMPLETED", updated.PaymentStatus)
	require.True(t, updated.TransactionID.Valid)
	assert.Equal(t, int64(7741), updated.TransactionID.Int64)

	assert.Equal(t, int32(7), f.store.productStock(eau.ID).Int32)
	assert.Equal(t, int32(4), f.store.productStock(oud.ID).Int32)

	require.Len(t, f.sender.Sent, 1)
	assert.Equal(t, []string{"claire@example.com"}, f.sender.Sent[0].To)

	paid := f.publisher.published(events.SubjectOrderPaid)
	require.Len(t, paid, 1)
	assert.Equal(t, order.OrderNumber, paid[0].OrderNumber)
}

func TestProcessCallbackDuplicateIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 3})

	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}
	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "approved"}`, order.OrderNumber)

	_, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, int32(7), f.store.productStock(eau.ID).Int32)

	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Order already processed", result.Message)
	assert.Equal(t, int32(7), f.store.productStock(eau.ID).Int32, "duplicate callback must not decrement twice")
	assert.Len(t, f.sender.Sent, 1, "duplicate callback must not re-notify")
	assert.Len(t, f.publisher.published(events.SubjectOrderPaid), 1)
}

func TestProcessCallbackGatewaySupersedesCallback(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 1})

	// Callback claims failure; the gateway says the money actually landed.
	f.gateway.Results[99] = &gateway.StatusResult{Success: true, Status: "approved"}
	body := fmt.Sprintf(`{"transactionId": 99, "clientOrderId": %q, "status": "failed"}`, order.OrderNumber)

	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "PAID", result.Status)
	assert.Equal(t, []int64{99}, f.gateway.CallLog)
}

func TestProcessCallbackGatewayDownFallsBackToCallback(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 1})

	f.gateway.CheckTransactionStatusFunc = func(ctx context.Context, id int64) (*gateway.StatusResult, error) {
		return nil, errors.New("connection refused")
	}

	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "declined"}`, order.OrderNumber)
	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "PAYMENT_FAILED", result.Status)
	updated, err := f.store.GetOrderByNumber(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", updated.PaymentStatus)
	assert.Equal(t, int32(10), f.store.productStock(eau.ID).Int32, "failed payment must not touch stock")
}

func TestProcessCallbackUnrecognizedStatusStaysPending(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 1})

	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "3dsecure_hold"}
	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "3dsecure_hold"}`, order.OrderNumber)

	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, int32(10), f.store.productStock(eau.ID).Int32)
	assert.Empty(t, f.sender.Sent)
}

func TestProcessCallbackUnknownOrder(t *testing.T) {
	f := newReconcileFixture(t)
	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}

	body := `{"transactionId": 7741, "clientOrderId": "ORD-0-NOSUCH00", "status": "approved"}`
	result, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	// Unknown order is logged, not retried: the gateway redelivers on error
	// and redelivery cannot fix a missing order.
	assert.True(t, result.Success)
	assert.Equal(t, "Order not found", result.Message)
}

func TestProcessCallbackGarbageBody(t *testing.T) {
	f := newReconcileFixture(t)

	result, err := f.rec.ProcessCallback(context.Background(), []byte(`{"transactionId": [1,2]`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, f.gateway.CallLog)
}

func TestProcessCallbackStoreErrorPropagates(t *testing.T) {
	f := newReconcileFixture(t)
	eau := f.store.seedProduct("Eau de Nuit 50ml", 8900, 10)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(eau.ID), Quantity: 1})

	f.store.failAfter("SetOrderPaymentResult", 0)
	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}

	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "approved"}`, order.OrderNumber)
	_, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	// The failed transaction leaves the order untouched.
	unchanged, getErr := f.store.GetOrderByNumber(context.Background(), order.OrderNumber)
	require.NoError(t, getErr)
	assert.Equal(t, "PENDING", unchanged.Status)
	assert.Equal(t, int32(10), f.store.productStock(eau.ID).Int32)
}

func TestProcessCallbackStockClampsAtZero(t *testing.T) {
	f := newReconcileFixture(t)
	scarce := f.store.seedProduct("Vintage Chypre 30ml", 45000, 2)
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(scarce.ID), Quantity: 5})

	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}
	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "approved"}`, order.OrderNumber)

	_, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	stock := f.store.productStock(scarce.ID)
	require.True(t, stock.Valid)
	assert.Equal(t, int32(0), stock.Int32, "oversold stock clamps at zero, never negative")
}

func TestProcessCallbackMadeToOrderProductKeepsNullStock(t *testing.T) {
	f := newReconcileFixture(t)
	bespoke := f.store.seedProduct("Bespoke Blend", 99000, -1) // null stock counter
	order := f.placeOrder(t, domain.OrderItemInput{ProductID: uuidString(bespoke.ID), Quantity: 2})

	f.gateway.Results[7741] = &gateway.StatusResult{Success: true, Status: "approved"}
	body := fmt.Sprintf(`{"transactionId": 7741, "clientOrderId": %q, "status": "approved"}`, order.OrderNumber)

	_, err := f.rec.ProcessCallback(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.False(t, f.store.productStock(bespoke.ID).Valid, "made-to-order products carry no stock counter")
}
