package models

import (
	"olympia/src/types"
	"time"
)

type Event struct {
	ID          uint              `gorm:"primarykey" json:"id"`
	Title       string            `json:"title"`
	Location    string            `json:"location,omitempty"`
	StartsAt    time.Time         `json:"starts_at"`
	Status      types.EventStatus `gorm:"default:'draft'" json:"status"`
	OrganizerID uint              `json:"organizer,omitempty"`

	Tickets []Ticket `json:"tickets,omitempty"`

	types.Timestamps
}

func (e *Event) AcceptsPurchases() bool {
	return e.Status == types.EVENT_PUBLISHED
}
