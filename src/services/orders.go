package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"etix/src/lib"
	"etix/src/models"
	"etix/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentGateway creates a payment for an order at the provider and
// returns the raw provider response.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, orderId string, amount int64) (types.JSONB, error)
}

// QRIssuer mints ticket QR payloads and renders/stores their images.
type QRIssuer interface {
	GeneratePayload() string
	RenderAndStore(payload string) (*string, error)
}

// ReceiptSender delivers the purchase receipt for a completed order.
type ReceiptSender interface {
	SendReceipt(order *models.Order, event *models.Event) error
}

// PaymentResult is the outcome of a gateway callback after transport
// parsing, handed to Reconcile.
type PaymentResult struct {
	OrderID string
	TransID string
	Success bool
	Message string
	Raw     types.JSONB
}

// Orders drives the order lifecycle: create -> processing -> paid ->
// tickets issued -> sold counters moved -> receipt sent.
type Orders struct {
	db        *gorm.DB
	inventory *Inventory
	gateway   PaymentGateway
	issuer    QRIssuer
	mailer    ReceiptSender
	ttl       time.Duration

	now func() time.Time
}

func NewOrders(db *gorm.DB, gateway PaymentGateway, issuer QRIssuer, mailer ReceiptSender, ttl time.Duration) *Orders {
	return &Orders{
		db:        db,
		inventory: NewInventory(db),
		gateway:   gateway,
		issuer:    issuer,
		mailer:    mailer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Create accepts an order against an approved event. Prices are
// snapshotted per line; nothing is reserved and sold counters do not
// move until the payment is reconciled.
func (s *Orders) Create(buyerId uint, body *types.CreateOrderRequestBody) (*models.Order, error) {
	var event models.Event
	err := s.db.
		Preload("TicketTypes").
		First(&event, body.EventID).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event [%d]: %w", body.EventID, ErrNotFound)
		}
		return nil, err
	}
	if event.Status != types.EVENT_APPROVED {
		return nil, fmt.Errorf("event is not open for sale: %w", ErrValidation)
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(body.Items))
	for _, in := range body.Items {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity for '%s': %w", in.TicketType, ErrValidation)
		}
		tier := event.TicketTypeByName(in.TicketType)
		if tier == nil {
			return nil, fmt.Errorf("invalid ticket type '%s': %w", in.TicketType, ErrValidation)
		}
		if _, err := s.inventory.CheckAvailability(event.ID, in.TicketType, in.Quantity); err != nil {
			return nil, err
		}
		subtotal += tier.Price * int64(in.Quantity)
		items = append(items, models.OrderItem{
			TicketType: in.TicketType,
			UnitPrice:  tier.Price,
			Quantity:   in.Quantity,
		})
	}

	order := models.Order{
		BuyerID:       buyerId,
		EventID:       event.ID,
		Items:         items,
		Subtotal:      subtotal,
		Fees:          0,
		Total:         subtotal,
		PaymentMethod: types.PAYMENT_METHOD_MOMO,
		PaymentStatus: types.PAYMENT_PENDING,
		Status:        types.ORDER_PROCESSING,
		ExpiresAt:     s.now().Add(s.ttl),
	}
	if info := body.BuyerInfo; info != nil {
		order.BuyerName = info.Name
		order.BuyerEmail = info.Email
		order.BuyerPhone = info.Phone
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Orders) List(buyerId uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.
		Where(&models.Order{BuyerID: buyerId}).
		Preload("Items").
		Order("created_at DESC").
		Find(&orders).
		Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Orders) Get(orderId string, buyerId uint) (*models.Order, error) {
	order, err := s.load(orderId, "Items", "Tickets")
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerId {
		return nil, fmt.Errorf("order belongs to another buyer: %w", ErrForbidden)
	}
	return order, nil
}

// Update replaces the item set and/or buyer info of an order that is
// still payable. New items are re-validated against live inventory and
// totals recomputed from scratch.
func (s *Orders) Update(orderId string, buyerId uint, body *types.UpdateOrderRequestBody) (*models.Order, error) {
	order, err := s.load(orderId, "Items")
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerId {
		return nil, fmt.Errorf("order belongs to another buyer: %w", ErrForbidden)
	}
	if order.PaymentStatus == types.PAYMENT_PAID {
		return nil, fmt.Errorf("order already paid: %w", ErrConflict)
	}
	if order.Status == types.ORDER_CANCELLED || order.Status == types.ORDER_COMPLETED {
		return nil, fmt.Errorf("order is no longer editable: %w", ErrConflict)
	}
	if order.Expired(s.now()) {
		return nil, fmt.Errorf("order expired: %w", ErrExpired)
	}

	if body.Items != nil {
		var event models.Event
		if err := s.db.Preload("TicketTypes").First(&event, order.EventID).Error; err != nil {
			return nil, err
		}
		var subtotal int64
		items := make([]models.OrderItem, 0, len(*body.Items))
		for _, in := range *body.Items {
			if in.Quantity <= 0 {
				return nil, fmt.Errorf("invalid quantity for '%s': %w", in.TicketType, ErrValidation)
			}
			tier := event.TicketTypeByName(in.TicketType)
			if tier == nil {
				return nil, fmt.Errorf("invalid ticket type '%s': %w", in.TicketType, ErrValidation)
			}
			if _, err := s.inventory.CheckAvailability(event.ID, in.TicketType, in.Quantity); err != nil {
				return nil, err
			}
			subtotal += tier.Price * int64(in.Quantity)
			items = append(items, models.OrderItem{
				OrderID:    order.ID,
				TicketType: in.TicketType,
				UnitPrice:  tier.Price,
				Quantity:   in.Quantity,
			})
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
			order.Items = items
			order.Subtotal = subtotal
			order.Total = subtotal + order.Fees
			return tx.Save(order).Error
		})
		if err != nil {
			return nil, err
		}
	}
	if info := body.BuyerInfo; info != nil {
		if info.Name != "" {
			order.BuyerName = info.Name
		}
		if info.Email != "" {
			order.BuyerEmail = info.Email
		}
		if info.Phone != "" {
			order.BuyerPhone = info.Phone
		}
		if err := s.db.Save(order).Error; err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Cancel voids an unpaid order. Cancelling an already-expired order is
// not an error; the order is swept into the cancelled state and the
// second return value reports that it had expired.
func (s *Orders) Cancel(orderId string, buyerId uint) (*models.Order, bool, error) {
	order, err := s.load(orderId)
	if err != nil {
		return nil, false, err
	}
	if order.BuyerID != buyerId {
		return nil, false, fmt.Errorf("order belongs to another buyer: %w", ErrForbidden)
	}
	if order.Status == types.ORDER_CANCELLED {
		return nil, false, fmt.Errorf("order already cancelled: %w", ErrConflict)
	}
	if order.PaymentStatus == types.PAYMENT_PAID {
		return nil, false, fmt.Errorf("order already paid: %w", ErrConflict)
	}
	expired := order.Expired(s.now())
	order.Status = types.ORDER_CANCELLED
	order.PaymentStatus = types.PAYMENT_FAILED
	if err := s.db.Save(order).Error; err != nil {
		return nil, false, err
	}
	return order, expired, nil
}

// Pay initiates a gateway payment for the order's total. Expired
// orders are auto-cancelled here; gateway failures leave the order
// payable so the buyer can retry.
func (s *Orders) Pay(ctx context.Context, orderId string) (types.JSONB, *models.Order, error) {
	order, err := s.load(orderId)
	if err != nil {
		return nil, nil, err
	}
	if order.PaymentStatus == types.PAYMENT_PAID {
		return nil, nil, fmt.Errorf("order already paid: %w", ErrConflict)
	}
	if order.Status == types.ORDER_CANCELLED {
		return nil, nil, fmt.Errorf("order was cancelled: %w", ErrConflict)
	}
	if order.Expired(s.now()) {
		order.Status = types.ORDER_CANCELLED
		order.PaymentStatus = types.PAYMENT_FAILED
		if err := s.db.Save(order).Error; err != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("order expired and was cancelled: %w", ErrExpired)
	}
	if order.Total <= 0 {
		return nil, nil, fmt.Errorf("order total must be positive: %w", ErrValidation)
	}

	data, err := s.gateway.CreatePayment(ctx, order.ID.String(), order.Total)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrGateway, err.Error())
	}
	mergeProviderData(order, data)
	if err := s.db.Save(order).Error; err != nil {
		log.Printf("Could not store provider data for order [%s]: %s\n", order.ID, err.Error())
	}
	return data, order, nil
}

// Reconcile applies a gateway payment result. Success marks the order
// paid and completed exactly once, then issues tickets, moves sold
// counters and sends the receipt; duplicates only merge provider
// metadata. A failure result cancels the order but never undoes a
// prior paid. Post-payment side effect errors are logged, not
// propagated: the money has moved.
func (s *Orders) Reconcile(res *PaymentResult) (*models.Order, error) {
	if _, err := uuid.Parse(res.OrderID); err != nil {
		return nil, fmt.Errorf("malformed order id '%s': %w", res.OrderID, ErrValidation)
	}

	var order models.Order
	alreadyPaid := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").Where("id = ?", res.OrderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order [%s]: %w", res.OrderID, ErrNotFound)
			}
			return err
		}
		if !res.Success {
			mergeProviderData(&order, res.Raw)
			if order.PaymentStatus != types.PAYMENT_PAID {
				order.PaymentStatus = types.PAYMENT_FAILED
				order.Status = types.ORDER_CANCELLED
			}
			return tx.Save(&order).Error
		}
		alreadyPaid = order.PaymentStatus == types.PAYMENT_PAID
		mergeProviderData(&order, res.Raw)
		if !alreadyPaid {
			now := s.now()
			order.PaymentStatus = types.PAYMENT_PAID
			order.PaidAt = &now
		}
		// a success result always completes the order, even when it
		// arrives after the expiry sweep cancelled it
		order.Status = types.ORDER_COMPLETED
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return &order, nil
	}

	if err := s.issueTickets(&order); err != nil {
		log.Printf("Error issuing tickets for order [%s]: %s\n", order.ID, err.Error())
	}
	if !alreadyPaid {
		if err := s.inventory.IncrementSold(order.EventID, order.Items); err != nil {
			log.Printf("Error moving sold counters for order [%s]: %s\n", order.ID, err.Error())
		}
		go func(o models.Order) {
			err := lib.KafkaProduceMessage("orders_completed_producer", "orders-completed", map[string]any{
				"orderId": o.ID.String(),
				"eventId": o.EventID,
				"buyerId": o.BuyerID,
				"total":   o.Total,
			})
			if err != nil && !errors.Is(err, lib.ErrNoBroker) {
				log.Printf("Error on producing message: %s\n", err.Error())
			}
		}(order)
	}
	s.sendReceiptOnce(&order)
	return &order, nil
}

// issueTickets materializes one ticket row per purchased unit. Each
// row is persisted as it is created, so a crash mid-way resumes where
// it left off; per-tier counts make the retry exact.
func (s *Orders) issueTickets(order *models.Order) error {
	needed := order.TotalQuantity()
	var existing int64
	if err := s.db.Model(&models.Ticket{}).Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
		return err
	}
	if int(existing) >= needed {
		return nil
	}

	var rows []struct {
		TicketType string
		N          int
	}
	err := s.db.Model(&models.Ticket{}).
		Select("ticket_type, count(*) as n").
		Where("order_id = ?", order.ID).
		Group("ticket_type").
		Scan(&rows).
		Error
	if err != nil {
		return err
	}
	issued := map[string]int{}
	for _, r := range rows {
		issued[r.TicketType] = r.N
	}

	for _, item := range order.Items {
		for n := issued[item.TicketType]; n < item.Quantity; n++ {
			payload := s.issuer.GeneratePayload()
			var imageURL *string
			url, err := s.issuer.RenderAndStore(payload)
			if err != nil {
				// the QR payload alone is scannable; image is a nicety
				log.Printf("Could not render QR image for order [%s]: %s\n", order.ID, err.Error())
			} else {
				imageURL = url
			}
			ticket := models.Ticket{
				OrderID:    order.ID,
				EventID:    order.EventID,
				OwnerID:    order.BuyerID,
				TicketType: item.TicketType,
				PricePaid:  item.UnitPrice,
				QRCode:     payload,
				QRImageURL: imageURL,
				Status:     types.TICKET_VALID,
			}
			if err := s.db.Create(&ticket).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Orders) sendReceiptOnce(order *models.Order) {
	if order.ReceiptSentAt != nil {
		return
	}
	if order.BuyerEmail == "" {
		log.Printf("No buyer email on order [%s], skipping receipt\n", order.ID)
		return
	}
	var event models.Event
	if err := s.db.First(&event, order.EventID).Error; err != nil {
		log.Printf("Could not load event for receipt on order [%s]: %s\n", order.ID, err.Error())
		return
	}
	if err := s.mailer.SendReceipt(order, &event); err != nil {
		log.Printf("Error sending receipt for order [%s]: %s\n", order.ID, err.Error())
		return
	}
	now := s.now()
	order.ReceiptSentAt = &now
	if err := s.db.Model(order).Update("receipt_sent_at", now).Error; err != nil {
		log.Printf("Could not mark receipt sent for order [%s]: %s\n", order.ID, err.Error())
	}
}

func (s *Orders) load(orderId string, preloads ...string) (*models.Order, error) {
	id, err := uuid.Parse(orderId)
	if err != nil {
		return nil, fmt.Errorf("order [%s]: %w", orderId, ErrNotFound)
	}
	var order models.Order
	q := s.db
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if err := q.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order [%s]: %w", orderId, ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func mergeProviderData(order *models.Order, data types.JSONB) {
	if len(data) == 0 {
		return
	}
	if order.PaymentProviderData == nil {
		order.PaymentProviderData = types.JSONB{}
	}
	for k, v := range data {
		order.PaymentProviderData[k] = v
	}
}

// SweepExpiredOrders cancels every processing order whose payment
// window has closed. Expiry is also enforced lazily on each order
// operation; the sweep keeps listings tidy between interactions.
func SweepExpiredOrders(db *gorm.DB) (int64, error) {
	res := db.Model(&models.Order{}).
		Where("status = ? AND payment_status = ?", types.ORDER_PROCESSING, types.PAYMENT_PENDING).
		Where("expires_at < ?", time.Now()).
		Updates(map[string]any{
			"status":         types.ORDER_CANCELLED,
			"payment_status": types.PAYMENT_FAILED,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
