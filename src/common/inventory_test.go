package common

import (
	"context"
	"sync"
	"testing"

	"olympia/src/models"
	"olympia/src/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventory(t *testing.T) (*InventoryService, *recordingAlerter, *models.Event) {
	d := newTestDB(t)
	alerter := &recordingAlerter{}
	svc := NewInventoryService(d, NewReconciliationService(d, alerter))
	return svc, alerter, seedEvent(t, d, types.EVENT_PUBLISHED)
}

func TestTicketStartsWithFullInventory(t *testing.T) {
	svc, _, event := newInventory(t)
	tk, err := svc.CreateTicket(context.Background(), &types.CreateTicketRequestBody{
		Name: "VIP", EventID: event.ID, Price: 1500, Quantity: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, uint(25), tk.RemainingQuantity)
	assert.Equal(t, types.TICKET_ACTIVE, tk.Status)

	_, err = svc.CreateTicket(context.Background(), &types.CreateTicketRequestBody{
		Name: "Ghost", EventID: 9999, Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	svc, _, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 3, 100)

	oversold, err := Decrement(svc.db, tk.ID, 2)
	require.NoError(t, err)
	assert.False(t, oversold)
	got := reloadTicket(t, svc.db, tk.ID)
	assert.Equal(t, uint(1), got.RemainingQuantity)
	assert.Equal(t, types.TICKET_ACTIVE, got.Status)

	oversold, err = Decrement(svc.db, tk.ID, 1)
	require.NoError(t, err)
	assert.False(t, oversold)
	got = reloadTicket(t, svc.db, tk.ID)
	assert.Equal(t, uint(0), got.RemainingQuantity)
	assert.Equal(t, types.TICKET_SOLD_OUT, got.Status)

	oversold, err = Decrement(svc.db, tk.ID, 4)
	require.NoError(t, err)
	assert.True(t, oversold)
	got = reloadTicket(t, svc.db, tk.ID)
	assert.Equal(t, uint(0), got.RemainingQuantity)
	assert.Equal(t, types.TICKET_SOLD_OUT, got.Status)

	_, err = Decrement(svc.db, 9999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecrementStatements(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "tickets" SET .*"remaining_quantity"=remaining_quantity - \$\d+.*CASE WHEN remaining_quantity = \$\d+ THEN \$\d+ ELSE status END.* WHERE \(?id = \$\d+ AND remaining_quantity >= \$\d+\)?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "tickets" SET .*"remaining_quantity"=\$\d+.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	oversold, err := Decrement(d, 4, 2)
	require.NoError(t, err)
	assert.True(t, oversold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFreePurchaseCompletesImmediately(t *testing.T) {
	svc, _, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 5, 0)

	p, err := svc.CreatePurchase(context.Background(), tk.ID, 11, 2)
	require.NoError(t, err)
	assert.Equal(t, types.PURCHASE_COMPLETED, p.Status)
	assert.Regexp(t, `^TIX-[A-Z0-9]{8}$`, p.RedemptionCode)
	assert.Regexp(t, `^PUR-\d+-\d{4}$`, p.PurchaseRef)
	assert.Equal(t, uint(3), reloadTicket(t, svc.db, tk.ID).RemainingQuantity)
}

func TestPaidPurchaseDecrementsOnceOnCompletion(t *testing.T) {
	svc, _, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 5, 750)

	p, err := svc.CreatePurchase(context.Background(), tk.ID, 11, 2)
	require.NoError(t, err)
	assert.Equal(t, types.PURCHASE_PENDING, p.Status)
	assert.Equal(t, float64(1500), p.TotalAmount)
	assert.Equal(t, uint(5), reloadTicket(t, svc.db, tk.ID).RemainingQuantity)

	done, err := svc.CompletePurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PURCHASE_COMPLETED, done.Status)
	assert.Equal(t, uint(3), reloadTicket(t, svc.db, tk.ID).RemainingQuantity)

	_, err = svc.CompletePurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), reloadTicket(t, svc.db, tk.ID).RemainingQuantity)
}

func TestCreatePurchaseRejections(t *testing.T) {
	svc, _, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 1, 100)

	_, err := svc.CreatePurchase(context.Background(), tk.ID, 1, 2)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	_, err = svc.CreatePurchase(context.Background(), 9999, 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.db.Model(&models.Ticket{}).Where("id = ?", tk.ID).Update("status", types.TICKET_INACTIVE).Error)
	_, err = svc.CreatePurchase(context.Background(), tk.ID, 1, 1)
	assert.ErrorIs(t, err, ErrTicketUnavailable)

	draft := seedEvent(t, svc.db, types.EVENT_DRAFT)
	draftTicket := seedTicket(t, svc.db, draft.ID, 10, 0)
	_, err = svc.CreatePurchase(context.Background(), draftTicket.ID, 1, 1)
	assert.ErrorIs(t, err, ErrTicketUnavailable)
}

func TestCancelPurchase(t *testing.T) {
	svc, _, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 2, 100)
	p, err := svc.CreatePurchase(context.Background(), tk.ID, 1, 1)
	require.NoError(t, err)

	cancelled, err := svc.CancelPurchase(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PURCHASE_CANCELLED, cancelled.Status)

	_, err = svc.CompletePurchase(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, uint(2), reloadTicket(t, svc.db, tk.ID).RemainingQuantity)

	free := seedTicket(t, svc.db, event.ID, 2, 0)
	done, err := svc.CreatePurchase(context.Background(), free.ID, 1, 1)
	require.NoError(t, err)
	_, err = svc.CancelPurchase(context.Background(), done.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLastUnitRaceFlagsOversell(t *testing.T) {
	svc, alerter, event := newInventory(t)
	tk := seedTicket(t, svc.db, event.ID, 1, 500)

	a, err := svc.CreatePurchase(context.Background(), tk.ID, 1, 1)
	require.NoError(t, err)
	b, err := svc.CreatePurchase(context.Background(), tk.ID, 2, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uint{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = svc.CompletePurchase(context.Background(), id)
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got := reloadTicket(t, svc.db, tk.ID)
	assert.Equal(t, uint(0), got.RemainingQuantity)
	assert.Equal(t, types.TICKET_SOLD_OUT, got.Status)
	assert.Equal(t, types.PURCHASE_COMPLETED, reloadPurchase(t, svc.db, a.ID).Status)
	assert.Equal(t, types.PURCHASE_COMPLETED, reloadPurchase(t, svc.db, b.ID).Status)

	issues, err := svc.rec.List(context.Background(), types.ISSUE_OPEN)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, types.ISSUE_OVERSOLD, issues[0].Kind)
	assert.Equal(t, 1, alerter.count())
}
