package models

import (
	"etix/src/types"
)

type User struct {
	ID    uint   `gorm:"primarykey" json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `gorm:"default:'user'" json:"role,omitempty"`

	Orders  []Order  `gorm:"foreignKey:buyer_id" json:"orders,omitempty"`
	Tickets []Ticket `gorm:"foreignKey:owner_id" json:"tickets,omitempty"`

	types.Timestamps
}
