package common

import (
	"context"
	"errors"
	"log"
	"olympia/src/models"
	"olympia/src/models/scopes"
	"olympia/src/types"
	"olympia/src/utils"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

type RedeemInput struct {
	Code             string
	Photo            []byte
	ClientCapturedAt *time.Time
	OperatorID       uint
	IPAddress        string
	UserAgent        string
}

type RedemptionResult struct {
	Purchase       *models.TicketPurchase
	WasOfflineSync bool
}

// RedemptionService marks purchases as checked in. The conditional update
// on is_checked_in is the only arbiter between concurrent callers.
type RedemptionService struct {
	db     *gorm.DB
	media  MediaStore
	audit  AuditSink
	notify CheckInNotifier
	now    func() time.Time
}

func NewRedemptionService(db *gorm.DB, media MediaStore, audit AuditSink, notify CheckInNotifier) *RedemptionService {
	return &RedemptionService{
		db:     db,
		media:  media,
		audit:  audit,
		notify: notify,
		now:    time.Now,
	}
}

func (s *RedemptionService) Redeem(ctx context.Context, in RedeemInput) (*RedemptionResult, error) {
	in.Code = strings.TrimSpace(in.Code)
	now := s.now()

	var purchase models.TicketPurchase
	err := s.db.WithContext(ctx).Scopes(scopes.WithRedemptionCode(in.Code)).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logFailure(in, now, ErrNotFound)
		redemptionsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		s.logFailure(in, now, err)
		redemptionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if purchase.IsCheckedIn {
		return nil, s.conflict(ctx, in, now, &purchase)
	}
	if purchase.Status != types.PURCHASE_COMPLETED {
		s.appendAudit(ctx, in, &purchase, types.AUDIT_ACCESS_ATTEMPT, types.JSONB{
			"outcome":        "not_redeemable",
			"purchaseStatus": purchase.Status,
		})
		s.logFailure(in, now, ErrNotRedeemable)
		redemptionsTotal.WithLabelValues("not_redeemable").Inc()
		return nil, ErrNotRedeemable
	}

	var photoRef *string
	mediaKey := utils.CheckInMediaKey(in.Code, now)
	if len(in.Photo) > 0 && s.media != nil {
		ref, err := s.media.Put(ctx, mediaKey, in.Photo, "image/jpeg")
		if err != nil {
			log.Printf("[CheckIn] evidence upload failed for %s: %s\n", in.Code, err.Error())
			evidenceFailuresTotal.Inc()
		} else {
			photoRef = &ref
		}
	}

	won := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TicketPurchase{}).
			Where("redemption_code = ? AND is_checked_in = ?", in.Code, false).
			Updates(map[string]any{
				"is_checked_in":      true,
				"check_in_time":      now,
				"check_in_photo_ref": photoRef,
				"client_captured_at": in.ClientCapturedAt,
				"checked_in_by":      in.OperatorID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true
		if photoRef != nil {
			media := models.Media{
				Key:         mediaKey,
				Ref:         *photoRef,
				ContentType: "image/jpeg",
				Size:        len(in.Photo),
				PurchaseID:  purchase.ID,
			}
			if err := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(&media).Error
			}); err != nil {
				log.Printf("[CheckIn] could not record media for %s: %s\n", in.Code, err.Error())
			}
		}
		return tx.Scopes(scopes.WithID(purchase.ID)).First(&purchase).Error
	})
	if err != nil {
		s.discardEvidence(ctx, photoRef)
		s.logFailure(in, now, err)
		redemptionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if !won {
		s.discardEvidence(ctx, photoRef)
		var current models.TicketPurchase
		if err := s.db.WithContext(ctx).Scopes(scopes.WithID(purchase.ID)).First(&current).Error; err != nil {
			s.logFailure(in, now, err)
			return nil, err
		}
		return nil, s.conflict(ctx, in, now, &current)
	}

	wasOffline := in.ClientCapturedAt != nil
	details := types.JSONB{
		"outcome":        "checked_in",
		"field":          "isCheckedIn",
		"wasOfflineSync": wasOffline,
		"checkInTime":    now.Format(time.RFC3339Nano),
		"hasEvidence":    photoRef != nil,
	}
	if wasOffline {
		details["offlineCapturedAt"] = in.ClientCapturedAt.Format(time.RFC3339Nano)
	}
	s.appendAudit(ctx, in, &purchase, types.AUDIT_STATUS_CHANGE, details)

	redemptionsTotal.WithLabelValues("checked_in").Inc()
	if wasOffline {
		offlineRedemptionsTotal.Inc()
	}
	if s.notify != nil {
		s.notify.CheckedIn(ctx, &purchase, wasOffline)
	}
	log.Printf("[CheckIn] code=%s operator=%d at=%s: checked in (offline=%v)\n", in.Code, in.OperatorID, now.Format(time.RFC3339), wasOffline)

	return &RedemptionResult{Purchase: &purchase, WasOfflineSync: wasOffline}, nil
}

func (s *RedemptionService) conflict(ctx context.Context, in RedeemInput, now time.Time, p *models.TicketPurchase) error {
	e := alreadyRedeemed(p)
	details := types.JSONB{
		"outcome":             "already_checked_in",
		"existingCheckInTime": e.CheckInTime.Format(time.RFC3339Nano),
	}
	if in.ClientCapturedAt != nil {
		details["offlineCapturedAt"] = in.ClientCapturedAt.Format(time.RFC3339Nano)
	}
	s.appendAudit(ctx, in, p, types.AUDIT_ACCESS_ATTEMPT, details)
	s.logFailure(in, now, e)
	redemptionsTotal.WithLabelValues("already_checked_in").Inc()
	return e
}

func (s *RedemptionService) appendAudit(ctx context.Context, in RedeemInput, p *models.TicketPurchase, action types.AuditAction, details types.JSONB) {
	if s.audit == nil {
		return
	}
	details["redemptionCode"] = in.Code
	details["operatorId"] = in.OperatorID
	operator := in.OperatorID
	entry := &models.AuditLog{
		Action:     action,
		EntityType: "ticket-purchases",
		EntityID:   strconv.FormatUint(uint64(p.ID), 10),
		Details:    details,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		CreatedBy:  &operator,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		auditFailuresTotal.Inc()
		log.Printf("[Audit] failed to record %s for purchase %d: %s\n", action, p.ID, err.Error())
	}
}

func (s *RedemptionService) discardEvidence(ctx context.Context, ref *string) {
	if ref == nil || s.media == nil {
		return
	}
	if err := s.media.Delete(ctx, *ref); err != nil {
		log.Printf("[CheckIn] could not delete orphaned evidence %s: %s\n", *ref, err.Error())
	}
}

func (s *RedemptionService) logFailure(in RedeemInput, at time.Time, err error) {
	log.Printf("[CheckIn] code=%s operator=%d at=%s: %s\n", in.Code, in.OperatorID, at.Format(time.RFC3339), err.Error())
}
