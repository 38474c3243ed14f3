package common

import (
	"context"
	"olympia/src/models"

	"gorm.io/gorm"
)

// AuditSink appends audit entries. Callers log failures and carry on.
type AuditSink interface {
	Append(ctx context.Context, entry *models.AuditLog) error
}

type DBAuditSink struct {
	db *gorm.DB
}

func NewDBAuditSink(db *gorm.DB) *DBAuditSink {
	return &DBAuditSink{db: db}
}

func (s *DBAuditSink) Append(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
