package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*a = nil
		return nil
	default:
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Metadata map[string]any

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type Role string

const (
	ROLE_SUPERADMIN Role = "superadmin"
	ROLE_ORGANIZER  Role = "organizer"
	ROLE_VOLUNTEER  Role = "volunteer"
	ROLE_ATTENDEE   Role = "attendee"
)

// CheckInRoles may call the redemption endpoint.
var CheckInRoles = []Role{ROLE_SUPERADMIN, ROLE_ORGANIZER, ROLE_VOLUNTEER}

type EventStatus string

const (
	EVENT_DRAFT     EventStatus = "draft"
	EVENT_PUBLISHED EventStatus = "published"
	EVENT_CANCELED  EventStatus = "canceled"
	EVENT_COMPLETED EventStatus = "completed"
)

type TicketStatus string

const (
	TICKET_ACTIVE   TicketStatus = "active"
	TICKET_INACTIVE TicketStatus = "inactive"
	TICKET_SOLD_OUT TicketStatus = "sold-out"
)

type PurchaseStatus string

const (
	PURCHASE_PENDING   PurchaseStatus = "pending"
	PURCHASE_COMPLETED PurchaseStatus = "completed"
	PURCHASE_CANCELLED PurchaseStatus = "cancelled"
	PURCHASE_REFUNDED  PurchaseStatus = "refunded"
)

type AuditAction string

const (
	AUDIT_CREATE         AuditAction = "create"
	AUDIT_STATUS_CHANGE  AuditAction = "status_change"
	AUDIT_ACCESS_ATTEMPT AuditAction = "access_attempt"
)

type IssueKind string

const (
	// decrement statement failed; retried by the sweep
	ISSUE_DECREMENT_FAILED IssueKind = "decrement_failed"
	// counter was clamped at zero; needs a human
	ISSUE_OVERSOLD IssueKind = "oversold"
)

type IssueStatus string

const (
	ISSUE_OPEN     IssueStatus = "open"
	ISSUE_RESOLVED IssueStatus = "resolved"
)

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

// CheckInRequestBody accepts either ticketId or redemptionCode for the code.
type CheckInRequestBody struct {
	TicketID         string  `json:"ticketId" binding:"omitempty,redemptioncode"`
	RedemptionCode   string  `json:"redemptionCode" binding:"omitempty,redemptioncode"`
	PhotoData        string  `json:"photoData,omitempty"`
	OfflineTimestamp *string `json:"offlineTimestamp,omitempty"`
	UserID           *uint   `json:"userId,omitempty"`
	EventID          *uint   `json:"eventId,omitempty"`
}

func (b *CheckInRequestBody) Code() string {
	if b.RedemptionCode != "" {
		return b.RedemptionCode
	}
	return b.TicketID
}

type VerifyTicketRequestBody struct {
	RedemptionCode string `json:"redemptionCode" binding:"required,redemptioncode"`
}

type CreateTicketRequestBody struct {
	Name     string  `json:"name" binding:"required"`
	EventID  uint    `json:"event" binding:"required"`
	Price    float64 `json:"price" binding:"gte=0"`
	Currency string  `json:"currency,omitempty"`
	Quantity uint    `json:"quantity" binding:"required,gte=1"`
}

type CreateEventRequestBody struct {
	Title    string `json:"title" binding:"required"`
	Location string `json:"location,omitempty"`
	// StartsAt uses TIME_PARSE_FORMAT
	StartsAt string `json:"starts_at" binding:"required"`
}

type CreatePurchaseRequestBody struct {
	Quantity uint `json:"quantity" binding:"required,gte=1"`
}

type ResolveIssueRequestBody struct {
	Note string `json:"note,omitempty"`
}

type Handler func(payload string)
