package models

import (
	"etix/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Order struct {
	ID      uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	BuyerID uint      `gorm:"index" json:"buyer_id,omitempty"`
	EventID uint      `gorm:"index" json:"event_id,omitempty"`

	Subtotal int64 `json:"subtotal"`
	Fees     int64 `json:"fees"`
	Total    int64 `json:"total"`

	PaymentMethod       string              `gorm:"default:'momo'" json:"payment_method,omitempty"`
	PaymentStatus       types.PaymentStatus `gorm:"default:'pending'" json:"payment_status,omitempty"`
	PaymentProviderData types.JSONB         `gorm:"type:jsonb" json:"payment_provider_data,omitempty"`
	PaidAt              *time.Time          `json:"paid_at,omitempty"`

	Status types.OrderStatus `gorm:"default:'created'" json:"status,omitempty"`

	BuyerName  string `json:"buyer_name,omitempty"`
	BuyerEmail string `json:"buyer_email,omitempty"`
	BuyerPhone string `json:"buyer_phone,omitempty"`

	ExpiresAt     time.Time  `json:"expires_at,omitempty"`
	ReceiptSentAt *time.Time `json:"receipt_sent_at,omitempty"`

	Items   []OrderItem `gorm:"foreignKey:order_id" json:"items,omitempty"`
	Tickets []Ticket    `gorm:"foreignKey:order_id" json:"tickets,omitempty"`
	Event   *Event      `gorm:"foreignKey:event_id" json:"event,omitempty"`

	types.Timestamps
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// TotalQuantity is the number of ticket units the order should yield.
func (o *Order) TotalQuantity() int {
	qty := 0
	for _, item := range o.Items {
		qty += item.Quantity
	}
	return qty
}

func (o *Order) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// OrderItem snapshots a line at order-creation time. UnitPrice is the
// price charged even when the tier is repriced later.
type OrderItem struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	OrderID    uuid.UUID `gorm:"index;type:uuid" json:"order_id,omitempty"`
	TicketType string    `json:"ticket_type"`
	UnitPrice  int64     `json:"unit_price"`
	Quantity   int       `json:"quantity"`

	types.Timestamps
}
