package models

import (
	"etix/src/types"
	"time"

	"gorm.io/gorm"

	"github.com/gosimple/slug"
)

type Event struct {
	ID           uint              `gorm:"primarykey" json:"id"`
	Title        string            `json:"title"`
	Slug         string            `gorm:"index" json:"slug,omitempty"`
	Description  string            `json:"description,omitempty"`
	PosterURL    string            `json:"poster_url,omitempty"`
	VenueName    string            `json:"venue_name,omitempty"`
	VenueAddress string            `json:"venue_address,omitempty"`
	VenueCity    string            `json:"venue_city,omitempty"`
	VenueCountry string            `json:"venue_country,omitempty"`
	StartDate    time.Time         `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	Status       types.EventStatus `gorm:"default:'pending'" json:"status,omitempty"`
	OrganizerID  uint              `json:"organizer,omitempty"`

	TicketTypes []TicketType `gorm:"foreignKey:event_id" json:"ticket_types,omitempty"`

	types.Timestamps
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.Slug == "" {
		e.Slug = slug.Make(e.Title)
	}
	return nil
}

// TicketTypeByName resolves a sale tier on an event loaded with its
// TicketTypes association. Returns nil when the tier does not exist.
func (e *Event) TicketTypeByName(name string) *TicketType {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].Name == name {
			return &e.TicketTypes[i]
		}
	}
	return nil
}

type TicketType struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	EventID  uint   `gorm:"uniqueIndex:idx_event_ticket_type" json:"event_id,omitempty"`
	Name     string `gorm:"uniqueIndex:idx_event_ticket_type" json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Sold     int    `gorm:"default:0" json:"sold"`

	types.Timestamps
}

func (t *TicketType) Remaining() int {
	return t.Quantity - t.Sold
}
