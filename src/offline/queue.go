package offline

import (
	"context"
	"errors"
	"olympia/src/models"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrEmptyCode = errors.New("redemption code is required")

// Migrate creates the device-local tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.OfflineRedemptionAttempt{},
		&models.CachedTicket{},
		&models.CachedEvent{},
	)
}

// Queue holds redemption attempts that still need a definitive answer from
// the server. Rows are appended and deleted, never updated.
type Queue struct {
	db *gorm.DB
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue durably appends an attempt and returns its local id. The zero
// capture time is replaced with the current time.
func (q *Queue) Enqueue(ctx context.Context, attempt *models.OfflineRedemptionAttempt) (uint, error) {
	attempt.RedemptionCode = strings.TrimSpace(attempt.RedemptionCode)
	if attempt.RedemptionCode == "" {
		return 0, ErrEmptyCode
	}
	if attempt.CapturedAtClientTime.IsZero() {
		attempt.CapturedAtClientTime = time.Now()
	}
	attempt.LocalID = 0
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(attempt).Error
	})
	if err != nil {
		return 0, err
	}
	return attempt.LocalID, nil
}

// ListPending returns every queued attempt in insertion order.
func (q *Queue) ListPending(ctx context.Context) ([]models.OfflineRedemptionAttempt, error) {
	var attempts []models.OfflineRedemptionAttempt
	if err := q.db.WithContext(ctx).Order("local_id asc").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// Remove deletes a resolved attempt. Removing an absent id is not an error.
func (q *Queue) Remove(ctx context.Context, localID uint) error {
	return q.db.WithContext(ctx).Delete(&models.OfflineRedemptionAttempt{}, localID).Error
}

func (q *Queue) Count(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&models.OfflineRedemptionAttempt{}).Count(&n).Error
	return n, err
}
