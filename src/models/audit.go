package models

import (
	"errors"
	"olympia/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAuditImmutable = errors.New("audit log entries are immutable")

// AuditLog is append-only. Updates and deletes are refused by hooks.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Action     types.AuditAction `gorm:"index" json:"action"`
	EntityType string            `gorm:"index:idx_audit_entity" json:"entity_type"`
	EntityID   string            `gorm:"index:idx_audit_entity" json:"entity_id"`
	Details    types.JSONB       `gorm:"type:jsonb" json:"details"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	CreatedBy  *uint             `json:"created_by,omitempty"`
	CreatedAt  time.Time         `gorm:"autoCreateTime:nano" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
