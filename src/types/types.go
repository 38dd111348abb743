package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	// postgres hands jsonb back as []byte, sqlite as string
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*a = nil
		return nil
	default:
		return errors.New("unsupported source type for JSONB")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type EventStatus string

const (
	EVENT_PENDING   EventStatus = "pending"
	EVENT_APPROVED  EventStatus = "approved"
	EVENT_REJECTED  EventStatus = "rejected"
	EVENT_CANCELLED EventStatus = "cancelled"
)

type OrderStatus string

const (
	ORDER_CREATED    OrderStatus = "created"
	ORDER_PROCESSING OrderStatus = "processing"
	ORDER_COMPLETED  OrderStatus = "completed"
	ORDER_CANCELLED  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PAYMENT_PENDING  PaymentStatus = "pending"
	PAYMENT_PAID     PaymentStatus = "paid"
	PAYMENT_FAILED   PaymentStatus = "failed"
	PAYMENT_REFUNDED PaymentStatus = "refunded"
)

type TicketStatus string

const (
	TICKET_VALID     TicketStatus = "valid"
	TICKET_USED      TicketStatus = "used"
	TICKET_CANCELLED TicketStatus = "cancelled"
	TICKET_REFUNDED  TicketStatus = "refunded"
)

const (
	PAYMENT_METHOD_MOMO = "momo"
)

type OrderItemInput struct {
	TicketType string `json:"ticketType" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
}

type BuyerInfoInput struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" binding:"omitempty,email"`
	Phone string `json:"phone,omitempty" binding:"omitempty,vnphone"`
}

type CreateOrderRequestBody struct {
	EventID   uint             `json:"event" binding:"required"`
	Items     []OrderItemInput `json:"items" binding:"required,min=1,dive"`
	BuyerInfo *BuyerInfoInput  `json:"buyerInfo,omitempty"`
}

type UpdateOrderRequestBody struct {
	Items     *[]OrderItemInput `json:"items,omitempty" binding:"omitempty,min=1,dive"`
	BuyerInfo *BuyerInfoInput   `json:"buyerInfo,omitempty"`
}

type PayOrderRequestBody struct {
	OrderID string `json:"orderId" binding:"required"`
	Amount  int64  `json:"amount,omitempty"`
}

type CheckInRequestBody struct {
	QRCode string `json:"qrCode" binding:"required"`
}

type SimpleIDParams struct {
	ID string `uri:"id" binding:"required"`
}

type EventIDParams struct {
	ID uint `uri:"id" binding:"required"`
}
