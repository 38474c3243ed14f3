package models

import "time"

// Models below live in the device-local store only.

// OfflineRedemptionAttempt is a scan captured without a definitive server
// answer. Rows are never updated; presence means pending.
type OfflineRedemptionAttempt struct {
	LocalID              uint      `gorm:"primaryKey;autoIncrement" json:"local_id"`
	RedemptionCode       string    `gorm:"index;not null" json:"redemption_code"`
	EvidencePhoto        []byte    `json:"-"`
	CapturedAtClientTime time.Time `gorm:"not null" json:"captured_at"`
	OperatorUserID       uint      `json:"operator_user_id"`
	EventID              *uint     `json:"event_id,omitempty"`
	CreatedAt            time.Time `gorm:"autoCreateTime:nano" json:"created_at"`
}

type CachedTicket struct {
	RedemptionCode string     `gorm:"primaryKey" json:"redemption_code"`
	PurchaseID     uint       `json:"purchase_id"`
	TicketID       uint       `json:"ticket_id"`
	TicketName     string     `json:"ticket_name"`
	EventID        uint       `gorm:"index" json:"event_id"`
	Status         string     `json:"status"`
	IsCheckedIn    bool       `json:"is_checked_in"`
	CheckInTime    *time.Time `json:"check_in_time,omitempty"`
	CachedAt       time.Time  `json:"cached_at"`
}

type CachedEvent struct {
	ID       uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	Status   string    `json:"status"`
	CachedAt time.Time `json:"cached_at"`
}
