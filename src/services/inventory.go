package services

import (
	"fmt"

	"etix/src/models"

	"gorm.io/gorm"
)

// Inventory is the per-tier sale ledger. Capacity checks happen before
// an order is accepted; the sold counter only moves after a payment is
// reconciled, as a single atomic UPDATE per line.
type Inventory struct {
	db *gorm.DB
}

func NewInventory(db *gorm.DB) *Inventory {
	return &Inventory{db: db}
}

// CheckAvailability verifies the tier exists and can cover qty units.
func (i *Inventory) CheckAvailability(eventId uint, name string, qty int) (int, error) {
	var tier models.TicketType
	err := i.db.
		Where(&models.TicketType{EventID: eventId, Name: name}).
		First(&tier).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, fmt.Errorf("ticket type '%s': %w", name, ErrNotFound)
		}
		return 0, err
	}
	remaining := tier.Remaining()
	if qty > remaining {
		return remaining, &InsufficientInventoryError{TicketType: name, Remaining: remaining}
	}
	return remaining, nil
}

// IncrementSold moves the sold counters for every line of a paid order.
// sold = sold + qty in SQL keeps concurrent reconciliations additive;
// callers guarantee exactly one call per order.
func (i *Inventory) IncrementSold(eventId uint, items []models.OrderItem) error {
	for _, item := range items {
		err := i.db.
			Model(&models.TicketType{}).
			Where("event_id = ? AND name = ?", eventId, item.TicketType).
			UpdateColumn("sold", gorm.Expr("sold + ?", item.Quantity)).
			Error
		if err != nil {
			return fmt.Errorf("increment sold for '%s': %w", item.TicketType, err)
		}
	}
	return nil
}
