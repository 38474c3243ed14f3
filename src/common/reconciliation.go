package common

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"olympia/src/config"
	"olympia/src/lib"
	"olympia/src/models"
	"olympia/src/models/scopes"
	"olympia/src/types"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

// IssueAlerter is told about each recorded reconciliation issue.
type IssueAlerter interface {
	IssueRecorded(ctx context.Context, issue *models.ReconciliationIssue) error
}

type IssueAlerters []IssueAlerter

func (a IssueAlerters) IssueRecorded(ctx context.Context, issue *models.ReconciliationIssue) error {
	var errs []error
	for _, alerter := range a {
		errs = append(errs, alerter.IssueRecorded(ctx, issue))
	}
	return errors.Join(errs...)
}

func issuePayload(issue *models.ReconciliationIssue) map[string]any {
	return map[string]any{
		"issueId":    issue.ID,
		"kind":       issue.Kind,
		"purchaseId": issue.PurchaseID,
		"ticketId":   issue.TicketID,
		"quantity":   issue.Quantity,
		"lastError":  issue.LastError,
	}
}

// SQSIssueAlerter sends issues to the reconciliation queue.
type SQSIssueAlerter struct {
	Queue string
}

func (a SQSIssueAlerter) IssueRecorded(ctx context.Context, issue *models.ReconciliationIssue) error {
	b, err := json.Marshal(issuePayload(issue))
	if err != nil {
		return err
	}
	return lib.SQSSendMessage(ctx, a.Queue, string(b))
}

// KafkaIssueAlerter streams issues to the inventory-oversell topic.
type KafkaIssueAlerter struct{}

func (KafkaIssueAlerter) IssueRecorded(ctx context.Context, issue *models.ReconciliationIssue) error {
	return lib.KafkaProduceMessage(config.KAFKA_INVENTORY_PRODUCER, config.TOPIC_INVENTORY_OVERSELL, issuePayload(issue))
}

func DefaultIssueAlerters() IssueAlerters {
	var a IssueAlerters
	if config.SQSEnabled() {
		a = append(a, SQSIssueAlerter{Queue: config.QUEUE_RECONCILIATION})
	}
	if config.KafkaEnabled() {
		a = append(a, KafkaIssueAlerter{})
	}
	return a
}

// ReconciliationService keeps the list of purchases whose inventory effect
// needs attention. Decrement failures are retried; oversells wait for a
// human to resolve them.
type ReconciliationService struct {
	db      *gorm.DB
	alerter IssueAlerter
	now     func() time.Time
}

func NewReconciliationService(db *gorm.DB, alerter IssueAlerter) *ReconciliationService {
	return &ReconciliationService{db: db, alerter: alerter, now: time.Now}
}

func (s *ReconciliationService) record(tx *gorm.DB, kind types.IssueKind, p *models.TicketPurchase, lastErr string) (*models.ReconciliationIssue, error) {
	issue := models.ReconciliationIssue{
		Kind:       kind,
		Status:     types.ISSUE_OPEN,
		PurchaseID: p.ID,
		TicketID:   p.TicketID,
		Quantity:   p.Quantity,
		LastError:  lastErr,
	}
	if err := tx.Create(&issue).Error; err != nil {
		return nil, err
	}
	inventoryIssuesTotal.WithLabelValues(string(kind)).Inc()
	return &issue, nil
}

func (s *ReconciliationService) alert(ctx context.Context, issue *models.ReconciliationIssue) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.IssueRecorded(ctx, issue); err != nil {
		log.Printf("[Reconciliation] alert for issue %d failed: %s\n", issue.ID, err.Error())
	}
}

func (s *ReconciliationService) List(ctx context.Context, status types.IssueStatus) ([]models.ReconciliationIssue, error) {
	var issues []models.ReconciliationIssue
	q := s.db.WithContext(ctx).Model(&models.ReconciliationIssue{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("id asc").Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

// Retry re-applies the decrement of an open decrement_failed issue. It
// reports whether the issue was resolved.
func (s *ReconciliationService) Retry(ctx context.Context, id uint) (bool, error) {
	resolved := false
	var issue models.ReconciliationIssue
	var decErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ReconciliationIssue{}).
			Scopes(scopes.WithID(id), scopes.WithOpenStatus).
			Where("kind = ?", types.ISSUE_DECREMENT_FAILED).
			Update("attempts", gorm.Expr("attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIssueNotFound
		}
		if err := tx.Scopes(scopes.WithID(id)).First(&issue).Error; err != nil {
			return err
		}

		oversold := false
		decErr = tx.Transaction(func(inner *gorm.DB) error {
			var err error
			oversold, err = Decrement(inner, issue.TicketID, issue.Quantity)
			return err
		})
		updates := map[string]any{}
		switch {
		case decErr != nil:
			updates["last_error"] = decErr.Error()
		case oversold:
			updates["kind"] = types.ISSUE_OVERSOLD
			updates["last_error"] = ErrInventoryOversell.Error()
		default:
			updates["status"] = types.ISSUE_RESOLVED
			updates["resolved_at"] = s.now()
			resolved = true
		}
		return tx.Model(&models.ReconciliationIssue{}).Scopes(scopes.WithID(id)).Updates(updates).Error
	})
	if err != nil {
		return false, err
	}
	if decErr != nil {
		log.Printf("[Reconciliation] retry of issue %d failed: %s\n", id, decErr.Error())
	}
	return resolved, nil
}

// RetryOpen retries every open decrement_failed issue and returns how many
// were resolved.
func (s *ReconciliationService) RetryOpen(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&models.ReconciliationIssue{}).
		Scopes(scopes.WithOpenStatus).
		Where("kind = ?", types.ISSUE_DECREMENT_FAILED).
		Order("id asc").
		Limit(100).
		Pluck("id", &ids).
		Error; err != nil {
		return 0, err
	}
	resolved := 0
	for _, id := range ids {
		ok, err := s.Retry(ctx, id)
		if err != nil && !errors.Is(err, ErrIssueNotFound) {
			log.Printf("[Reconciliation] issue %d: %s\n", id, err.Error())
			continue
		}
		if ok {
			resolved++
		}
	}
	if len(ids) > 0 {
		log.Printf("[Reconciliation] sweep resolved %d of %d issues\n", resolved, len(ids))
	}
	return resolved, nil
}

// Resolve closes an open issue by hand.
func (s *ReconciliationService) Resolve(ctx context.Context, id uint, by uint, note string) (*models.ReconciliationIssue, error) {
	var issue models.ReconciliationIssue
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ReconciliationIssue{}).
			Scopes(scopes.WithID(id), scopes.WithOpenStatus).
			Updates(map[string]any{
				"status":      types.ISSUE_RESOLVED,
				"resolved_at": s.now(),
				"resolved_by": by,
				"note":        note,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIssueNotFound
		}
		return tx.Scopes(scopes.WithID(id)).First(&issue).Error
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// HandleAlertMessage retries the issue named in a queue message.
func (s *ReconciliationService) HandleAlertMessage(payload string) {
	id := gjson.Get(payload, "issueId").Uint()
	if id == 0 || gjson.Get(payload, "kind").String() != string(types.ISSUE_DECREMENT_FAILED) {
		return
	}
	if _, err := s.Retry(context.Background(), uint(id)); err != nil && !errors.Is(err, ErrIssueNotFound) {
		log.Printf("[Reconciliation] queued retry of issue %d failed: %s\n", id, err.Error())
	}
}
