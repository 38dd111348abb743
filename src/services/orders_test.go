package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"etix/src/models"
	"etix/src/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	err   error
	calls int
}

func (g *fakeGateway) CreatePayment(ctx context.Context, orderId string, amount int64) (types.JSONB, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return types.JSONB{
		"payUrl":    fmt.Sprintf("https://test-payment.momo.vn/pay/%s", orderId),
		"requestId": fmt.Sprintf("MOMO%d", g.calls),
		"amount":    fmt.Sprintf("%d", amount),
	}, nil
}

type fakeIssuer struct {
	n         int
	renderErr error
}

func (f *fakeIssuer) GeneratePayload() string {
	f.n++
	return fmt.Sprintf("payload-%04d", f.n)
}

func (f *fakeIssuer) RenderAndStore(payload string) (*string, error) {
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	url := "https://assets.local/" + payload + ".jpeg"
	return &url, nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendReceipt(order *models.Order, event *models.Event) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, order.ID.String())
	return nil
}

type ordersFixture struct {
	svc     *Orders
	db      *gorm.DB
	gateway *fakeGateway
	issuer  *fakeIssuer
	mailer  *fakeMailer
	event   models.Event
	clock   *time.Time
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// a fresh pool connection would see a fresh empty :memory: db
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.TicketType{},
		&models.Order{},
		&models.OrderItem{},
		&models.Ticket{},
	))

	event := models.Event{
		Title:     "Indie Night Saigon",
		VenueName: "Saigon Outcast",
		VenueCity: "Ho Chi Minh City",
		StartDate: time.Now().Add(30 * 24 * time.Hour),
		Status:    types.EVENT_APPROVED,
		TicketTypes: []models.TicketType{
			{Name: "GA", Price: 50000, Quantity: 10, Sold: 9},
			{Name: "VIP", Price: 150000, Quantity: 5, Sold: 0},
		},
		OrganizerID: 7,
	}
	require.NoError(t, gdb.Create(&event).Error)

	gateway := &fakeGateway{}
	issuer := &fakeIssuer{}
	mailer := &fakeMailer{}
	svc := NewOrders(gdb, gateway, issuer, mailer, 15*time.Minute)
	now := time.Now()
	clock := &now
	svc.now = func() time.Time { return *clock }

	return &ordersFixture{svc: svc, db: gdb, gateway: gateway, issuer: issuer, mailer: mailer, event: event, clock: clock}
}

func (f *ordersFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *ordersFixture) createOrder(t *testing.T, items ...types.OrderItemInput) *models.Order {
	t.Helper()
	order, err := f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: f.event.ID,
		Items:   items,
		BuyerInfo: &types.BuyerInfoInput{
			Name:  "Linh Tran",
			Email: "linh@example.com",
			Phone: "+84901234567",
		},
	})
	require.NoError(t, err)
	return order
}

func (f *ordersFixture) successResult(order *models.Order) *PaymentResult {
	return &PaymentResult{
		OrderID: order.ID.String(),
		TransID: "4088878653",
		Success: true,
		Message: "Successful.",
		Raw:     types.JSONB{"transId": "4088878653", "resultCode": "0"},
	}
}

func (f *ordersFixture) sold(t *testing.T, name string) int {
	t.Helper()
	var tier models.TicketType
	require.NoError(t, f.db.Where(&models.TicketType{EventID: f.event.ID, Name: name}).First(&tier).Error)
	return tier.Sold
}

func (f *ordersFixture) tickets(t *testing.T, order *models.Order) []models.Ticket {
	t.Helper()
	var tickets []models.Ticket
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&tickets).Error)
	return tickets
}

func TestCreateOrder(t *testing.T) {
	f := newOrdersFixture(t)

	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	assert.Equal(t, types.ORDER_PROCESSING, order.Status)
	assert.Equal(t, types.PAYMENT_PENDING, order.PaymentStatus)
	assert.Equal(t, int64(50000), order.Subtotal)
	assert.Equal(t, int64(50000), order.Total)
	assert.Equal(t, "linh@example.com", order.BuyerEmail)
	assert.WithinDuration(t, f.clock.Add(15*time.Minute), order.ExpiresAt, time.Second)
	// acceptance must not move sold counters
	assert.Equal(t, 9, f.sold(t, "GA"))
}

func TestCreateOrderInsufficientInventory(t *testing.T) {
	f := newOrdersFixture(t)

	_, err := f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: f.event.ID,
		Items:   []types.OrderItemInput{{TicketType: "GA", Quantity: 2}},
	})
	require.Error(t, err)
	var inv *InsufficientInventoryError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "GA", inv.TicketType)
	assert.Equal(t, 1, inv.Remaining)
	assert.Equal(t, "not enough 'GA' tickets. remaining: 1", err.Error())
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newOrdersFixture(t)

	_, err := f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: f.event.ID,
		Items:   []types.OrderItemInput{{TicketType: "Balcony", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: f.event.ID,
		Items:   []types.OrderItemInput{{TicketType: "GA", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: 9999,
		Items:   []types.OrderItemInput{{TicketType: "GA", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrderUnapprovedEvent(t *testing.T) {
	f := newOrdersFixture(t)
	require.NoError(t, f.db.Model(&models.Event{}).Where("id = ?", f.event.ID).Update("status", types.EVENT_PENDING).Error)

	_, err := f.svc.Create(1, &types.CreateOrderRequestBody{
		EventID: f.event.ID,
		Items:   []types.OrderItemInput{{TicketType: "GA", Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPayAndReconcileHappyPath(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	data, _, err := f.svc.Pay(context.Background(), order.ID.String())
	require.NoError(t, err)
	assert.Contains(t, data["payUrl"], order.ID.String())

	reconciled, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	assert.Equal(t, types.ORDER_COMPLETED, reconciled.Status)
	assert.Equal(t, types.PAYMENT_PAID, reconciled.PaymentStatus)
	assert.NotNil(t, reconciled.PaidAt)
	assert.Equal(t, "4088878653", reconciled.PaymentProviderData["transId"])

	tickets := f.tickets(t, order)
	require.Len(t, tickets, 1)
	assert.Equal(t, types.TICKET_VALID, tickets[0].Status)
	assert.Equal(t, "GA", tickets[0].TicketType)
	assert.Equal(t, int64(50000), tickets[0].PricePaid)
	assert.NotEmpty(t, tickets[0].QRCode)
	assert.NotNil(t, tickets[0].QRImageURL)

	assert.Equal(t, 10, f.sold(t, "GA"))
	assert.Equal(t, []string{order.ID.String()}, f.mailer.sent)
}

func TestReconcileDuplicateCallback(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	_, err = f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)

	assert.Len(t, f.tickets(t, order), 1)
	assert.Equal(t, 10, f.sold(t, "GA"))
	assert.Len(t, f.mailer.sent, 1)
}

func TestReconcileFailureResult(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	res := &PaymentResult{
		OrderID: order.ID.String(),
		Success: false,
		Message: "Transaction denied by user.",
		Raw:     types.JSONB{"resultCode": "1006"},
	}
	reconciled, err := f.svc.Reconcile(res)
	require.NoError(t, err)
	assert.Equal(t, types.ORDER_CANCELLED, reconciled.Status)
	assert.Equal(t, types.PAYMENT_FAILED, reconciled.PaymentStatus)
	assert.Empty(t, f.tickets(t, order))
	assert.Equal(t, 9, f.sold(t, "GA"))
}

func TestReconcileFailureNeverUndoesPaid(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)

	late := &PaymentResult{
		OrderID: order.ID.String(),
		Success: false,
		Raw:     types.JSONB{"resultCode": "1006"},
	}
	reconciled, err := f.svc.Reconcile(late)
	require.NoError(t, err)
	assert.Equal(t, types.PAYMENT_PAID, reconciled.PaymentStatus)
	assert.Equal(t, types.ORDER_COMPLETED, reconciled.Status)
}

func TestReconcileUnknownAndMalformed(t *testing.T) {
	f := newOrdersFixture(t)

	_, err := f.svc.Reconcile(&PaymentResult{OrderID: "not-a-uuid", Success: true})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Reconcile(&PaymentResult{OrderID: "2f61544d-9be6-4d0c-8f26-c1d04cd2e376", Success: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPriceSnapshotSurvivesRepricing(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	require.NoError(t, f.db.Model(&models.TicketType{}).
		Where("event_id = ? AND name = ?", f.event.ID, "GA").
		Update("price", 99000).Error)

	reconciled, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), reconciled.Total)
	tickets := f.tickets(t, order)
	require.Len(t, tickets, 1)
	assert.Equal(t, int64(50000), tickets[0].PricePaid)
}

func TestPayExpiredOrderAutoCancels(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.advance(16 * time.Minute)
	_, _, err := f.svc.Pay(context.Background(), order.ID.String())
	assert.ErrorIs(t, err, ErrExpired)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, types.ORDER_CANCELLED, reloaded.Status)
	assert.Equal(t, types.PAYMENT_FAILED, reloaded.PaymentStatus)
	assert.Equal(t, 9, f.sold(t, "GA"))
}

func TestLateSuccessCallbackCompletesExpiredOrder(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.advance(16 * time.Minute)
	_, _, err := f.svc.Pay(context.Background(), order.ID.String())
	require.ErrorIs(t, err, ErrExpired)

	// the buyer had already authorized at the wallet; the money moved
	reconciled, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	assert.Equal(t, types.ORDER_COMPLETED, reconciled.Status)
	assert.Equal(t, types.PAYMENT_PAID, reconciled.PaymentStatus)
	assert.Len(t, f.tickets(t, order), 1)
	assert.Equal(t, 10, f.sold(t, "GA"))
}

func TestPayGatewayErrorKeepsOrderRetryable(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.gateway.err = errors.New("connection refused")
	_, _, err := f.svc.Pay(context.Background(), order.ID.String())
	assert.ErrorIs(t, err, ErrGateway)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, types.ORDER_PROCESSING, reloaded.Status)
	assert.Equal(t, types.PAYMENT_PENDING, reloaded.PaymentStatus)

	f.gateway.err = nil
	_, _, err = f.svc.Pay(context.Background(), order.ID.String())
	assert.NoError(t, err)
}

func TestPayConflicts(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	_, _, err = f.svc.Pay(context.Background(), order.ID.String())
	assert.ErrorIs(t, err, ErrConflict)

	other := f.createOrder(t, types.OrderItemInput{TicketType: "VIP", Quantity: 1})
	_, _, err = f.svc.Cancel(other.ID.String(), 1)
	require.NoError(t, err)
	_, _, err = f.svc.Pay(context.Background(), other.ID.String())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCancelOrder(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	cancelled, expired, err := f.svc.Cancel(order.ID.String(), 1)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, types.ORDER_CANCELLED, cancelled.Status)

	_, _, err = f.svc.Cancel(order.ID.String(), 1)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCancelExpiredOrderIsIdempotentSweep(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.advance(20 * time.Minute)
	cancelled, expired, err := f.svc.Cancel(order.ID.String(), 1)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, types.ORDER_CANCELLED, cancelled.Status)
	assert.Empty(t, f.tickets(t, order))
	assert.Equal(t, 9, f.sold(t, "GA"))
}

func TestCancelGuards(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	_, _, err := f.svc.Cancel(order.ID.String(), 2)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	_, _, err = f.svc.Cancel(order.ID.String(), 1)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateOrderReplacesItems(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	items := []types.OrderItemInput{{TicketType: "VIP", Quantity: 2}}
	updated, err := f.svc.Update(order.ID.String(), 1, &types.UpdateOrderRequestBody{Items: &items})
	require.NoError(t, err)
	assert.Equal(t, int64(300000), updated.Subtotal)
	assert.Equal(t, int64(300000), updated.Total)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "VIP", updated.Items[0].TicketType)
	assert.Equal(t, int64(150000), updated.Items[0].UnitPrice)
}

func TestUpdateOrderGuards(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	// live inventory re-check
	items := []types.OrderItemInput{{TicketType: "GA", Quantity: 2}}
	_, err := f.svc.Update(order.ID.String(), 1, &types.UpdateOrderRequestBody{Items: &items})
	var inv *InsufficientInventoryError
	assert.ErrorAs(t, err, &inv)

	_, err = f.svc.Update(order.ID.String(), 2, &types.UpdateOrderRequestBody{})
	assert.ErrorIs(t, err, ErrForbidden)

	f.advance(16 * time.Minute)
	_, err = f.svc.Update(order.ID.String(), 1, &types.UpdateOrderRequestBody{})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestUpdateCompletedOrderConflicts(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})
	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)

	_, err = f.svc.Update(order.ID.String(), 1, &types.UpdateOrderRequestBody{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIssueTicketsResumesPartialProgress(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t,
		types.OrderItemInput{TicketType: "GA", Quantity: 1},
		types.OrderItemInput{TicketType: "VIP", Quantity: 2},
	)

	// simulate a crash after one VIP unit was persisted
	require.NoError(t, f.db.Create(&models.Ticket{
		OrderID:    order.ID,
		EventID:    order.EventID,
		OwnerID:    order.BuyerID,
		TicketType: "VIP",
		PricePaid:  150000,
		QRCode:     "pre-existing-payload",
		Status:     types.TICKET_VALID,
	}).Error)

	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)

	tickets := f.tickets(t, order)
	require.Len(t, tickets, 3)
	byType := map[string]int{}
	for _, tk := range tickets {
		byType[tk.TicketType]++
	}
	assert.Equal(t, 1, byType["GA"])
	assert.Equal(t, 2, byType["VIP"])
}

func TestIssueTicketsSurvivesImageFailure(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.issuer.renderErr = errors.New("bucket unavailable")
	_, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)

	tickets := f.tickets(t, order)
	require.Len(t, tickets, 1)
	assert.Nil(t, tickets[0].QRImageURL)
	assert.NotEmpty(t, tickets[0].QRCode)
}

func TestReceiptRetriedOnDuplicateCallback(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})

	f.mailer.err = errors.New("smtp unavailable")
	reconciled, err := f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	assert.Equal(t, types.ORDER_COMPLETED, reconciled.Status)
	assert.Nil(t, reconciled.ReceiptSentAt)

	f.mailer.err = nil
	reconciled, err = f.svc.Reconcile(f.successResult(order))
	require.NoError(t, err)
	assert.NotNil(t, reconciled.ReceiptSentAt)
	assert.Len(t, f.mailer.sent, 1)
}

func TestListAndGetOrders(t *testing.T) {
	f := newOrdersFixture(t)
	first := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})
	second := f.createOrder(t, types.OrderItemInput{TicketType: "VIP", Quantity: 1})

	orders, err := f.svc.List(1)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	got, err := f.svc.Get(first.ID.String(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	require.Len(t, got.Items, 1)

	_, err = f.svc.Get(second.ID.String(), 42)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Get("2f61544d-9be6-4d0c-8f26-c1d04cd2e376", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepExpiredOrders(t *testing.T) {
	f := newOrdersFixture(t)
	stale := f.createOrder(t, types.OrderItemInput{TicketType: "GA", Quantity: 1})
	fresh := f.createOrder(t, types.OrderItemInput{TicketType: "VIP", Quantity: 1})

	require.NoError(t, f.db.Model(&models.Order{}).
		Where("id = ?", stale.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	n, err := SweepExpiredOrders(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var reloaded models.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", stale.ID).Error)
	assert.Equal(t, types.ORDER_CANCELLED, reloaded.Status)

	reloaded = models.Order{}
	require.NoError(t, f.db.First(&reloaded, "id = ?", fresh.ID).Error)
	assert.Equal(t, types.ORDER_PROCESSING, reloaded.Status)
}
