package offline

import (
	"context"
	"errors"
	"olympia/src/models"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotCached = errors.New("not in offline cache")

// Cache keeps read-only ticket and event snapshots for display while the
// device is offline. Nothing here decides whether a holder is admitted.
type Cache struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCache(db *gorm.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// PutEvent replaces the snapshot of an event and its tickets.
func (c *Cache) PutEvent(ctx context.Context, event models.CachedEvent, tickets []models.CachedTicket) error {
	at := c.now()
	event.CachedAt = at
	for i := range tickets {
		tickets[i].EventID = event.ID
		tickets[i].CachedAt = at
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&event).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.CachedTicket{}).Error; err != nil {
			return err
		}
		if len(tickets) == 0 {
			return nil
		}
		return tx.CreateInBatches(&tickets, 200).Error
	})
}

func (c *Cache) GetEvent(ctx context.Context, id uint) (*models.CachedEvent, error) {
	var event models.CachedEvent
	if err := c.db.WithContext(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	return &event, nil
}

func (c *Cache) GetTicket(ctx context.Context, code string) (*models.CachedTicket, error) {
	var ticket models.CachedTicket
	if err := c.db.WithContext(ctx).Where("redemption_code = ?", code).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	return &ticket, nil
}

// MarkCheckedIn reflects a local check-in in the display cache. Codes that
// were never cached are ignored.
func (c *Cache) MarkCheckedIn(ctx context.Context, code string, at time.Time) error {
	return c.db.WithContext(ctx).
		Model(&models.CachedTicket{}).
		Where("redemption_code = ?", code).
		Updates(map[string]any{"is_checked_in": true, "check_in_time": at}).
		Error
}
