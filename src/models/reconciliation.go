package models

import (
	"olympia/src/types"
	"time"
)

// ReconciliationIssue flags a completed purchase whose inventory decrement
// did not apply cleanly. One issue per purchase.
type ReconciliationIssue struct {
	ID         uint              `gorm:"primarykey" json:"id"`
	Kind       types.IssueKind   `gorm:"index" json:"kind"`
	Status     types.IssueStatus `gorm:"index;default:'open'" json:"status"`
	PurchaseID uint              `gorm:"uniqueIndex" json:"purchase_id"`
	TicketID   uint              `gorm:"index" json:"ticket_id"`
	Quantity   uint              `json:"quantity"`
	Attempts   uint              `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	Note       string            `json:"note,omitempty"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy *uint             `json:"resolved_by,omitempty"`

	types.Timestamps
}
