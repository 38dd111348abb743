package models

import (
	"etix/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Ticket struct {
	ID          uuid.UUID          `gorm:"primarykey;type:uuid" json:"id"`
	OrderID     uuid.UUID          `gorm:"index;type:uuid" json:"order_id,omitempty"`
	EventID     uint               `gorm:"index" json:"event_id,omitempty"`
	OwnerID     uint               `gorm:"index" json:"owner_id,omitempty"`
	TicketType  string             `json:"ticket_type"`
	PricePaid   int64              `json:"price_paid"`
	QRCode      string             `gorm:"uniqueIndex" json:"qr_code,omitempty"`
	QRImageURL  *string            `json:"qr_image_url,omitempty"`
	Status      types.TicketStatus `gorm:"default:'valid'" json:"status,omitempty"`
	PurchasedAt time.Time          `json:"purchased_at,omitempty"`

	Event *Event `gorm:"foreignKey:event_id" json:"event,omitempty"`
	Owner *User  `gorm:"foreignKey:owner_id" json:"-"`

	types.Timestamps
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.PurchasedAt.IsZero() {
		t.PurchasedAt = time.Now()
	}
	return nil
}
