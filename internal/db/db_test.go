package db_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/db/dbtest"
	"ms-qrinventory/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// seedBundle stores an assigned bundle of n UNSOLD QRs.
func seedBundle(t *testing.T, store *db.DB, seq int64, agent string, n int) *models.Bundle {
	t.Helper()
	ctx := context.Background()

	b := &models.Bundle{
		BundleID:   fmt.Sprintf("BND-%06d", seq),
		Sequence:   seq,
		QRTypeID:   "standard",
		CreatedBy:  "admin",
		Status:     models.BundleUnassigned,
		PricePerQR: decimal.NewFromInt(100),
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
	var qrs []*models.QR
	for i := 0; i < n; i++ {
		qr := &models.QR{
			ID:                uuid.NewString(),
			SerialNumber:      fmt.Sprintf("QR%06d%04d", seq, i),
			BundleID:          b.BundleID,
			State:             models.QRStateUnsold,
			VoiceCallsAllowed: true,
			CreatedAt:         t0,
			UpdatedAt:         t0,
		}
		qrs = append(qrs, qr)
		b.QRIDs = append(b.QRIDs, qr.ID)
	}
	b.QRCount = n
	require.NoError(t, store.InsertBundle(ctx, b))
	require.NoError(t, store.InsertQRs(ctx, qrs))

	if agent != "" {
		n, err := store.AssignBundle(ctx, b.BundleID, agent, models.DeliveryDigital, t0)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}
	return b
}

func TestGetNotFound(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	_, err := store.GetQR(ctx, "missing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	_, err = store.GetBundle(ctx, "BND-000404")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	_, err = store.GetTicket(ctx, "PT-0-000000")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
	_, err = store.GetAgent(ctx, "nobody")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestBundleRoundTripAndSequence(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	seq, err := store.NextBundleSequence(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	b := seedBundle(t, store, 1, "", 3)

	seq, err = store.NextBundleSequence(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)

	got, err := store.GetBundle(ctx, b.BundleID)
	require.NoError(t, err)
	assert.Equal(t, b.QRIDs, got.QRIDs)
	assert.True(t, got.PricePerQR.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, models.BundleUnassigned, got.Status)

	n, err := store.AssignBundle(ctx, b.BundleID, "agent-1", models.DeliveryPhysical, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.AssignBundle(ctx, b.BundleID, "agent-2", models.DeliveryPhysical, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "second assignment must not match")

	list, err := store.ListBundles(ctx, models.BundleFilter{AssignedTo: "agent-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.BundleID, list[0].BundleID)
}

func TestReserveQRsIsConditional(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 3)

	n, err := store.ReserveQRs(ctx, b.QRIDs[:2], "PT-1", "agent-1", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = store.ReserveQRs(ctx, b.QRIDs[1:], "PT-2", "agent-1", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only the untouched QR is reservable")

	qr, err := store.GetQR(ctx, b.QRIDs[1])
	require.NoError(t, err)
	assert.Equal(t, "PT-1", qr.TicketID)
	assert.Equal(t, models.QRStateReserved, qr.State)
}

func TestConcurrentReservationsInTx(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 4)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticketID := fmt.Sprintf("PT-%d", i)
			err := store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
				n, err := tx.ReserveQRs(ctx, b.QRIDs[1:3], ticketID, "agent-1", t0)
				if err != nil {
					return err
				}
				if n != 2 {
					return apperr.Conflict(apperr.ReasonQRsUnavailable, "taken")
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	counts, err := store.CountQRStates(ctx, db.QRCountFilter{BundleID: b.BundleID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.QRStateReserved])
	assert.Equal(t, 2, counts[models.QRStateUnsold])
}

func TestInTxRollsBack(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 2)

	err := store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		if _, err := tx.ReserveQRs(ctx, b.QRIDs, "PT-1", "agent-1", t0); err != nil {
			return err
		}
		return apperr.Conflict(apperr.ReasonQRsUnavailable, "abort")
	})
	require.Error(t, err)

	counts, err := store.CountQRStates(ctx, db.QRCountFilter{BundleID: b.BundleID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.QRStateUnsold])
}

func TestCountQRStatesByAgent(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b1 := seedBundle(t, store, 1, "agent-1", 3)
	seedBundle(t, store, 2, "agent-1", 2)
	seedBundle(t, store, 3, "agent-2", 4)
	seedBundle(t, store, 4, "", 5)

	_, err := store.ReserveQRs(ctx, b1.QRIDs[:1], "PT-1", "agent-1", t0)
	require.NoError(t, err)

	counts, err := store.CountQRStates(ctx, db.QRCountFilter{AgentRef: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Total())
	assert.Equal(t, 4, counts[models.QRStateUnsold])
	assert.Equal(t, 1, counts[models.QRStateReserved])

	bundles, err := store.CountBundlesByAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 2, bundles)
}

func TestReassignAndTouchBundle(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 1)

	n, err := store.TouchBundleForAgent(ctx, b.BundleID, "agent-2", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = store.ReassignBundle(ctx, b.BundleID, "agent-2", "agent-3", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "wrong source agent")

	n, err = store.ReassignBundle(ctx, b.BundleID, "agent-1", "agent-2", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.TouchBundleForAgent(ctx, b.BundleID, "agent-2", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTicketDecisionIsConditional(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	ticket := &models.PaymentTicket{
		TicketID:       "PT-1",
		SalespersonRef: "agent-1",
		CustomerName:   "Asha",
		CustomerPhone:  "9999999999",
		QRIDs:          []string{"a", "b"},
		BundleID:       "BND-000001",
		Amount:         decimal.NewFromInt(200),
		PaymentMethod:  models.PaymentCash,
		Status:         models.TicketPending,
		CreatedAt:      t0,
		UpdatedAt:      t0,
	}
	require.NoError(t, store.InsertTicket(ctx, ticket))

	n, err := store.UpdateTicketDecision(ctx, "PT-1", models.TicketPending, models.TicketRejected, "no proof", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.UpdateTicketDecision(ctx, "PT-1", models.TicketPending, models.TicketApproved, "", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := store.GetTicket(ctx, "PT-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketRejected, got.Status)
	assert.Equal(t, "no proof", got.AdminNotes)
	assert.False(t, got.ApprovedAt.IsZero())
	assert.Equal(t, []string{"a", "b"}, got.QRIDs)
}

func TestAgentCounter(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAgent(ctx, &models.Agent{ID: "agent-1", Name: "Ravi", Active: true, CreatedAt: t0, UpdatedAt: t0}))
	_, err := store.IncrementAgentSold(ctx, "agent-1", 2, t0)
	require.NoError(t, err)
	_, err = store.IncrementAgentSold(ctx, "agent-1", 3, t0)
	require.NoError(t, err)

	a, err := store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 5, a.TotalQRsSold)

	_, err = store.SetAgentActive(ctx, "agent-1", false, t0)
	require.NoError(t, err)
	a, err = store.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.False(t, a.Active)
}

func TestCallLogArena(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 2)
	qrID := b.QRIDs[0]
	_, err := store.SellQRDirect(ctx, qrID, "agent-1", models.Customer{Name: "Asha", Phone: "9999999999"}, t0)
	require.NoError(t, err)

	old := &models.CallLogEntry{QRID: qrID, At: t0.Add(-48 * time.Hour), Connected: true, FromNumber: "8888888888"}
	require.NoError(t, store.AppendCallLog(ctx, old, time.Time{}))

	fresh := &models.CallLogEntry{QRID: qrID, At: t0, Connected: false}
	require.NoError(t, store.AppendCallLog(ctx, fresh, t0.Add(-24*time.Hour)))
	require.NotZero(t, fresh.ID)

	entries, err := store.ListCallLogs(ctx, qrID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "entries past retention are pruned")
	assert.Equal(t, fresh.ID, entries[0].ID)

	qr, err := store.GetQR(ctx, qrID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, qr.LastCallLogID)

	candidates, err := store.ListActiveWindowCandidates(ctx, t0.Add(-30*time.Second), 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	n, err := store.ClaimCallLog(ctx, fresh.ID, "7777777777", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.ClaimCallLog(ctx, fresh.ID, "6666666666", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "an entry is claimed once")

	entries, err = store.ListCallLogs(ctx, qrID)
	require.NoError(t, err)
	assert.True(t, entries[0].Connected)
	assert.Equal(t, "7777777777", entries[0].FromNumber)
}

func TestSuffixAndFallbackQueries(t *testing.T) {
	store := dbtest.New(t)
	ctx := context.Background()
	b := seedBundle(t, store, 1, "agent-1", 2)

	customer := models.Customer{Name: "Asha", Phone: "9999999999"}
	n, err := store.SellQRDirect(ctx, b.QRIDs[1], "agent-1", customer, t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	qr, err := store.FindVoiceQRBySuffix(ctx, "0001")
	require.NoError(t, err)
	require.NotNil(t, qr)
	assert.Equal(t, b.QRIDs[1], qr.ID)

	qr, err = store.FindVoiceQRBySuffix(ctx, "0000")
	require.NoError(t, err)
	assert.Nil(t, qr, "QRs without a registered phone never match")

	ids, err := store.ListVoiceQRIDsByPhone(ctx, "9999999999")
	require.NoError(t, err)
	assert.Equal(t, []string{b.QRIDs[1]}, ids)

	qr, err = store.LatestConnectedQR(ctx)
	require.NoError(t, err)
	assert.Nil(t, qr)

	require.NoError(t, store.AppendCallLog(ctx, &models.CallLogEntry{
		QRID: b.QRIDs[1], At: t0, Connected: true, FromNumber: "8888888888",
	}, time.Time{}))

	qr, err = store.LatestConnectedQR(ctx)
	require.NoError(t, err)
	require.NotNil(t, qr)
	assert.Equal(t, b.QRIDs[1], qr.ID)

	entry, err := store.FindRecentConnectedCall(ctx, ids, t0.Add(-time.Hour), "9999999999")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "8888888888", entry.FromNumber)

	entry, err = store.FindRecentConnectedCall(ctx, ids, t0.Add(time.Minute), "")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
