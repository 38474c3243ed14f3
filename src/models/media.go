package models

import (
	"olympia/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Media records an evidence object written to the media store.
type Media struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key         string    `gorm:"index" json:"key"`
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Alt         string    `json:"alt,omitempty"`
	PurchaseID  uint      `gorm:"index" json:"purchase_id"`

	types.Timestamps
}

func (m *Media) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
