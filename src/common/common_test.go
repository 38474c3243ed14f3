package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"olympia/src/db"
	"olympia/src/models"
	"olympia/src/types"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := db.OpenLocal(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Ticket{},
		&models.TicketPurchase{},
		&models.Media{},
		&models.AuditLog{},
		&models.ReconciliationIssue{},
	))
	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return d
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func seedEvent(t *testing.T, d *gorm.DB, status types.EventStatus) *models.Event {
	t.Helper()
	e := models.Event{Title: "Olympia Open", Status: status}
	require.NoError(t, d.Create(&e).Error)
	return &e
}

func seedTicket(t *testing.T, d *gorm.DB, eventID uint, qty uint, price float64) *models.Ticket {
	t.Helper()
	tk := models.Ticket{EventID: eventID, Name: "General Admission", Quantity: qty, Price: price, Currency: "PHP"}
	require.NoError(t, d.Create(&tk).Error)
	return &tk
}

func seedPurchase(t *testing.T, d *gorm.DB, tk *models.Ticket, status types.PurchaseStatus) *models.TicketPurchase {
	t.Helper()
	p := models.TicketPurchase{
		TicketID:    tk.ID,
		EventID:     tk.EventID,
		PurchaserID: 1,
		Quantity:    1,
		UnitPrice:   tk.Price,
		TotalAmount: tk.Price,
		Status:      status,
	}
	require.NoError(t, d.Create(&p).Error)
	return &p
}

func reloadTicket(t *testing.T, d *gorm.DB, id uint) models.Ticket {
	t.Helper()
	var tk models.Ticket
	require.NoError(t, d.First(&tk, id).Error)
	return tk
}

func reloadPurchase(t *testing.T, d *gorm.DB, id uint) models.TicketPurchase {
	t.Helper()
	var p models.TicketPurchase
	require.NoError(t, d.First(&p, id).Error)
	return p
}

type memMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	failPut bool
}

func newMemMedia() *memMedia {
	return &memMedia{objects: map[string][]byte{}}
}

func (m *memMedia) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return "", errors.New("media store down")
	}
	m.seq++
	ref := fmt.Sprintf("mem://%d/%s", m.seq, key)
	m.objects[ref] = data
	return ref, nil
}

func (m *memMedia) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref)
	return nil
}

func (m *memMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type recordingNotifier struct {
	mu      sync.Mutex
	codes   []string
	offline []bool
}

func (n *recordingNotifier) CheckedIn(ctx context.Context, p *models.TicketPurchase, wasOffline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, p.RedemptionCode)
	n.offline = append(n.offline, wasOffline)
}

type failingAudit struct{}

func (failingAudit) Append(ctx context.Context, entry *models.AuditLog) error {
	return errors.New("audit store down")
}

type recordingAlerter struct {
	mu     sync.Mutex
	issues []models.ReconciliationIssue
}

func (a *recordingAlerter) IssueRecorded(ctx context.Context, issue *models.ReconciliationIssue) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issues = append(a.issues, *issue)
	return nil
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.issues)
}
