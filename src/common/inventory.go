package common

import (
	"context"
	"errors"
	"log"
	"olympia/src/models"
	"olympia/src/models/scopes"
	"olympia/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decrement applies a completed purchase of qty units to a ticket. The
// counter never goes below zero: when fewer than qty units remain it is
// clamped to zero, the ticket is marked sold-out and oversold is true.
func Decrement(tx *gorm.DB, ticketID uint, qty uint) (oversold bool, err error) {
	res := tx.Model(&models.Ticket{}).
		Where("id = ? AND remaining_quantity >= ?", ticketID, qty).
		Updates(map[string]any{
			"remaining_quantity": gorm.Expr("remaining_quantity - ?", qty),
			"status":             gorm.Expr("CASE WHEN remaining_quantity = ? THEN ? ELSE status END", qty, types.TICKET_SOLD_OUT),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return false, nil
	}
	res = tx.Model(&models.Ticket{}).
		Scopes(scopes.WithID(ticketID)).
		Updates(map[string]any{
			"remaining_quantity": 0,
			"status":             types.TICKET_SOLD_OUT,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}
	return true, nil
}

// InventoryService owns ticket counters and the purchase lifecycle that
// drives them.
type InventoryService struct {
	db  *gorm.DB
	rec *ReconciliationService
}

func NewInventoryService(db *gorm.DB, rec *ReconciliationService) *InventoryService {
	return &InventoryService{db: db, rec: rec}
}

func (s *InventoryService) CreateTicket(ctx context.Context, body *types.CreateTicketRequestBody) (*models.Ticket, error) {
	ticket := models.Ticket{
		EventID:  body.EventID,
		Name:     body.Name,
		Price:    body.Price,
		Currency: body.Currency,
		Quantity: body.Quantity,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Scopes(scopes.WithID(body.EventID)).First(&event).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return tx.Create(&ticket).Error
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *InventoryService) GetTicket(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).Scopes(scopes.WithID(id)).First(&ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// CreatePurchase opens a purchase for qty units. Free tickets complete
// immediately; paid ones stay pending until CompletePurchase.
func (s *InventoryService) CreatePurchase(ctx context.Context, ticketID uint, purchaserID uint, qty uint) (*models.TicketPurchase, error) {
	var purchase models.TicketPurchase
	var issue *models.ReconciliationIssue
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(scopes.WithID(ticketID)).
			First(&ticket).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if ticket.Status != types.TICKET_ACTIVE {
			return ErrTicketUnavailable
		}
		if ticket.RemainingQuantity < qty {
			return ErrInsufficientInventory
		}
		var event models.Event
		if err := tx.Scopes(scopes.WithID(ticket.EventID)).First(&event).Error; err != nil {
			return err
		}
		if !event.AcceptsPurchases() {
			return ErrTicketUnavailable
		}

		purchase = models.TicketPurchase{
			TicketID:    ticket.ID,
			EventID:     ticket.EventID,
			PurchaserID: purchaserID,
			Quantity:    qty,
			UnitPrice:   ticket.Price,
			TotalAmount: ticket.Price * float64(qty),
			Currency:    ticket.Currency,
			Status:      types.PURCHASE_PENDING,
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return err
		}
		if !ticket.IsFree() {
			return nil
		}
		var err error
		completed, issue, err = s.completeInTx(tx, &purchase)
		if err != nil {
			return err
		}
		return tx.Scopes(scopes.WithID(purchase.ID)).First(&purchase).Error
	})
	if err != nil {
		return nil, err
	}
	s.afterCompletion(ctx, completed, issue)
	return &purchase, nil
}

// CompletePurchase moves a pending purchase to completed and decrements
// inventory in the same transaction. Completing an already completed
// purchase is a no-op.
func (s *InventoryService) CompletePurchase(ctx context.Context, purchaseID uint) (*models.TicketPurchase, error) {
	var purchase models.TicketPurchase
	var issue *models.ReconciliationIssue
	completed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(scopes.WithID(purchaseID)).First(&purchase).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		switch purchase.Status {
		case types.PURCHASE_COMPLETED:
			return nil
		case types.PURCHASE_PENDING:
		default:
			return ErrInvalidTransition
		}
		var err error
		completed, issue, err = s.completeInTx(tx, &purchase)
		if err != nil {
			return err
		}
		return tx.Scopes(scopes.WithID(purchase.ID)).First(&purchase).Error
	})
	if err != nil {
		return nil, err
	}
	s.afterCompletion(ctx, completed, issue)
	return &purchase, nil
}

func (s *InventoryService) CancelPurchase(ctx context.Context, purchaseID uint) (*models.TicketPurchase, error) {
	var purchase models.TicketPurchase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TicketPurchase{}).
			Scopes(scopes.WithID(purchaseID), scopes.WithPendingStatus).
			Update("status", types.PURCHASE_CANCELLED)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.Scopes(scopes.WithID(purchaseID)).First(&purchase).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if res.RowsAffected == 0 && purchase.Status != types.PURCHASE_CANCELLED {
			return ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// completeInTx is the only path into completed. The gated status update
// makes the decrement fire once per purchase. A failed decrement rolls back
// to a savepoint and is recorded as a reconciliation issue instead, so the
// purchase still completes.
func (s *InventoryService) completeInTx(tx *gorm.DB, p *models.TicketPurchase) (bool, *models.ReconciliationIssue, error) {
	res := tx.Model(&models.TicketPurchase{}).
		Scopes(scopes.WithID(p.ID), scopes.WithPendingStatus).
		Update("status", types.PURCHASE_COMPLETED)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil, nil
	}

	oversold := false
	decErr := tx.Transaction(func(inner *gorm.DB) error {
		var err error
		oversold, err = Decrement(inner, p.TicketID, p.Quantity)
		return err
	})
	switch {
	case decErr != nil:
		log.Printf("[Inventory] decrement failed for purchase %d: %s\n", p.ID, decErr.Error())
		issue, err := s.rec.record(tx, types.ISSUE_DECREMENT_FAILED, p, decErr.Error())
		return true, issue, err
	case oversold:
		log.Printf("[Inventory] ticket %d oversold by purchase %d\n", p.TicketID, p.ID)
		issue, err := s.rec.record(tx, types.ISSUE_OVERSOLD, p, ErrInventoryOversell.Error())
		return true, issue, err
	}
	return true, nil, nil
}

func (s *InventoryService) afterCompletion(ctx context.Context, completed bool, issue *models.ReconciliationIssue) {
	if completed {
		purchasesCompletedTotal.Inc()
	}
	if issue != nil {
		s.rec.alert(ctx, issue)
	}
}
