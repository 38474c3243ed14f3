package common

import (
	"errors"
	"fmt"
	"olympia/src/models"
	"time"
)

var (
	ErrNotFound              = errors.New("ticket not found")
	ErrAlreadyRedeemed       = errors.New("ticket already checked in")
	ErrNotRedeemable         = errors.New("ticket purchase is not redeemable")
	ErrInventoryOversell     = errors.New("inventory oversell")
	ErrTicketUnavailable     = errors.New("ticket is not available for purchase")
	ErrInsufficientInventory = errors.New("not enough tickets remaining")
	ErrInvalidTransition     = errors.New("invalid purchase status transition")
	ErrIssueNotFound         = errors.New("reconciliation issue not found")
)

// AlreadyRedeemedError carries the check-in that won.
type AlreadyRedeemedError struct {
	Purchase    *models.TicketPurchase
	CheckInTime time.Time
	PhotoRef    *string
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("%s at %s", ErrAlreadyRedeemed.Error(), e.CheckInTime.Format(time.RFC3339))
}

func (e *AlreadyRedeemedError) Unwrap() error {
	return ErrAlreadyRedeemed
}

func alreadyRedeemed(p *models.TicketPurchase) *AlreadyRedeemedError {
	e := &AlreadyRedeemedError{Purchase: p, PhotoRef: p.CheckInPhotoRef}
	if p.CheckInTime != nil {
		e.CheckInTime = *p.CheckInTime
	}
	return e
}
