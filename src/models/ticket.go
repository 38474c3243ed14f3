package models

import (
	"olympia/src/types"

	"gorm.io/gorm"
)

// Ticket is a ticket type of an event with its inventory counters.
type Ticket struct {
	ID                uint               `gorm:"primarykey" json:"id"`
	EventID           uint               `gorm:"index" json:"event_id"`
	Name              string             `json:"name"`
	Price             float64            `json:"price"`
	Currency          string             `gorm:"default:'PHP'" json:"currency,omitempty"`
	Quantity          uint               `json:"quantity"`
	RemainingQuantity uint               `json:"remaining_quantity"`
	Status            types.TicketStatus `gorm:"default:'active'" json:"status"`

	Event *Event `json:"event,omitempty"`

	types.Timestamps
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	t.RemainingQuantity = t.Quantity
	if t.Status == "" {
		t.Status = types.TICKET_ACTIVE
	}
	if t.Quantity == 0 {
		t.Status = types.TICKET_SOLD_OUT
	}
	return nil
}

func (t *Ticket) IsFree() bool {
	return t.Price <= 0
}
