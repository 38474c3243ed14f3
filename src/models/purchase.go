package models

import (
	"olympia/src/types"
	"olympia/src/utils"
	"time"

	"gorm.io/gorm"
)

// TicketPurchase is one row of the purchase ledger. RedemptionCode is
// generated once on create and is the only key a redemption looks up.
type TicketPurchase struct {
	ID               uint                 `gorm:"primarykey" json:"id"`
	PurchaseRef      string               `gorm:"uniqueIndex;size:32" json:"purchase_ref"`
	TicketID         uint                 `gorm:"index" json:"ticket_id"`
	EventID          uint                 `gorm:"index" json:"event_id"`
	PurchaserID      uint                 `gorm:"index" json:"purchaser_id"`
	Quantity         uint                 `json:"quantity"`
	UnitPrice        float64              `json:"unit_price"`
	TotalAmount      float64              `json:"total_amount"`
	Currency         string               `json:"currency,omitempty"`
	RedemptionCode   string               `gorm:"uniqueIndex;size:16;not null" json:"redemption_code"`
	Status           types.PurchaseStatus `gorm:"default:'pending'" json:"status"`
	IsCheckedIn      bool                 `gorm:"not null;default:false" json:"is_checked_in"`
	CheckInTime      *time.Time           `json:"check_in_time,omitempty"`
	CheckInPhotoRef  *string              `json:"check_in_photo,omitempty"`
	ClientCapturedAt *time.Time           `json:"client_captured_at,omitempty"`
	CheckedInBy      *uint                `json:"checked_in_by,omitempty"`

	Ticket *Ticket `json:"ticket,omitempty"`

	types.Timestamps
}

func (p *TicketPurchase) BeforeCreate(tx *gorm.DB) error {
	if p.RedemptionCode == "" {
		code, err := utils.GenerateRedemptionCode()
		if err != nil {
			return err
		}
		p.RedemptionCode = code
	}
	if p.PurchaseRef == "" {
		ref, err := utils.GeneratePurchaseRef(time.Now())
		if err != nil {
			return err
		}
		p.PurchaseRef = ref
	}
	if p.Status == "" {
		p.Status = types.PURCHASE_PENDING
	}
	return nil
}

func (p *TicketPurchase) Redeemable() bool {
	return p.Status == types.PURCHASE_COMPLETED && !p.IsCheckedIn
}
