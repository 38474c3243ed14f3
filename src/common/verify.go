package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"olympia/src/config"
	"olympia/src/models"
	"olympia/src/models/scopes"
	"olympia/src/types"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type VerifyResult struct {
	Valid    bool                   `json:"valid"`
	Message  string                 `json:"message"`
	Purchase *models.TicketPurchase `json:"purchase,omitempty"`
	Ticket   *models.Ticket         `json:"ticket,omitempty"`
	Event    *models.Event          `json:"event,omitempty"`
}

// VerifyService answers read-only validity checks. Only settled results
// are cached in redis; a redeemable purchase is always read from the database.
type VerifyService struct {
	db *gorm.DB
	rd *redis.Client
}

func NewVerifyService(db *gorm.DB, rd *redis.Client) *VerifyService {
	return &VerifyService{db: db, rd: rd}
}

func verifyCacheKey(code string) string {
	return fmt.Sprintf("verify:%s", code)
}

// settled reports whether no further transition can change the verdict.
func settled(p *models.TicketPurchase) bool {
	return p.IsCheckedIn ||
		p.Status == types.PURCHASE_CANCELLED ||
		p.Status == types.PURCHASE_REFUNDED
}

func (s *VerifyService) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	if s.rd != nil {
		if val, err := s.rd.Get(ctx, verifyCacheKey(code)).Result(); err == nil {
			var cached VerifyResult
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &cached, nil
			}
		} else if err != redis.Nil {
			log.Printf("[Verify] cache read failed: %s\n", err.Error())
		}
	}

	var purchase models.TicketPurchase
	err := s.db.WithContext(ctx).
		Scopes(scopes.WithRedemptionCode(code)).
		Preload("Ticket").
		Preload("Ticket.Event").
		First(&purchase).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Purchase: &purchase, Ticket: purchase.Ticket}
	if purchase.Ticket != nil {
		result.Event = purchase.Ticket.Event
	}
	switch {
	case purchase.IsCheckedIn:
		result.Message = "Ticket already checked in"
	case purchase.Status != types.PURCHASE_COMPLETED:
		result.Message = fmt.Sprintf("Ticket purchase is %s", purchase.Status)
	default:
		result.Valid = true
		result.Message = "Ticket is valid"
	}

	if s.rd != nil && settled(&purchase) {
		b, err := json.Marshal(result)
		if err != nil {
			log.Printf("[Verify] could not encode result for %s: %s\n", code, err.Error())
			return result, nil
		}
		if err := s.rd.SetEx(ctx, verifyCacheKey(code), string(b), config.VERIFY_CACHE_TTL).Err(); err != nil {
			log.Printf("[Verify] cache write failed: %s\n", err.Error())
		}
	}
	return result, nil
}

// CheckedIn drops the cached verification of a redeemed purchase.
func (s *VerifyService) CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool) {
	if s.rd == nil {
		return
	}
	if err := s.rd.Del(ctx, verifyCacheKey(p.RedemptionCode)).Err(); err != nil {
		log.Printf("[Verify] cache invalidation failed for %s: %s\n", p.RedemptionCode, err.Error())
	}
}

type SnapshotEntry struct {
	RedemptionCode string     `json:"redemptionCode"`
	PurchaseID     uint       `json:"purchaseId"`
	TicketID       uint       `json:"ticketId"`
	TicketName     string     `json:"ticketName"`
	Status         string     `json:"status"`
	IsCheckedIn    bool       `json:"isCheckedIn"`
	CheckInTime    *time.Time `json:"checkInTime,omitempty"`
}

type EventSnapshot struct {
	Event   models.Event    `json:"event"`
	Tickets []SnapshotEntry `json:"tickets"`
}

// Snapshot lists the purchases of an event for device-side caching.
func (s *VerifyService) Snapshot(ctx context.Context, eventID uint) (*EventSnapshot, error) {
	var snap EventSnapshot
	if err := s.db.WithContext(ctx).Scopes(scopes.WithID(eventID)).First(&snap.Event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var purchases []models.TicketPurchase
	if err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Preload("Ticket").
		Order("id asc").
		Find(&purchases).
		Error; err != nil {
		return nil, err
	}
	snap.Tickets = make([]SnapshotEntry, 0, len(purchases))
	for _, p := range purchases {
		e := SnapshotEntry{
			RedemptionCode: p.RedemptionCode,
			PurchaseID:     p.ID,
			TicketID:       p.TicketID,
			Status:         string(p.Status),
			IsCheckedIn:    p.IsCheckedIn,
			CheckInTime:    p.CheckInTime,
		}
		if p.Ticket != nil {
			e.TicketName = p.Ticket.Name
		}
		snap.Tickets = append(snap.Tickets, e)
	}
	return &snap, nil
}
