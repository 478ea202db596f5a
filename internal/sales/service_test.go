package sales_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/db/dbtest"
	"ms-qrinventory/internal/inventory"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/qrimage"
	"ms-qrinventory/internal/sales"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type stubImages struct{}

func (stubImages) Render(qr *models.QR) ([]byte, error) { return []byte(qr.ID), nil }

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, _ []byte, folder, _ string) (string, error) {
	return "https://cdn.test/" + folder + "/qr.png", nil
}

// racingStore runs before() ahead of every transaction, standing in for a
// competing writer that lands between the availability check and the write.
type racingStore struct {
	db.Store
	before func()
}

func (r *racingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Querier) error) error {
	if r.before != nil {
		r.before()
	}
	return r.Store.InTx(ctx, fn)
}

type fixture struct {
	store  *db.DB
	inv    *inventory.Service
	sales  *sales.Service
	tokens *qrimage.Generator
	bundle *models.Bundle
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := dbtest.New(t)
	clock := func() time.Time { return t0 }

	inv := inventory.NewService(store, stubImages{}, stubUploader{}, nil, logger.Discard())
	inv.Now = clock
	tokens := qrimage.NewGenerator("test-secret", "https://qr.test/activate", 128)
	svc := sales.NewService(store, nil, tokens, logger.Discard())
	svc.Now = clock

	for _, id := range []string{"agent-x", "agent-y"} {
		_, err := inv.RegisterAgent(ctx, inventory.RegisterAgentInput{ID: id, Name: id})
		require.NoError(t, err)
	}
	b, err := inv.CreateBundle(ctx, inventory.CreateBundleInput{Count: 5, PricePerQR: decimal.NewFromInt(100)})
	require.NoError(t, err)
	b, err = inv.AssignBundle(ctx, b.BundleID, "agent-x", models.DeliveryPhysical)
	require.NoError(t, err)

	return &fixture{store: store, inv: inv, sales: svc, tokens: tokens, bundle: b}
}

func customer() models.Customer {
	return models.Customer{Name: "Asha Rao", Phone: "+91 99999 99999", Email: "asha@example.com"}
}

func (f *fixture) ticketInput(qrIDs ...string) sales.CreateTicketInput {
	return sales.CreateTicketInput{
		AgentRef:      "agent-x",
		Customer:      customer(),
		QRIDs:         qrIDs,
		BundleID:      f.bundle.BundleID,
		Amount:        decimal.NewFromInt(int64(100 * len(qrIDs))),
		PaymentMethod: models.PaymentCash,
	}
}

func (f *fixture) state(t *testing.T, qrID string) models.QRState {
	t.Helper()
	qr, err := f.store.GetQR(context.Background(), qrID)
	require.NoError(t, err)
	return qr.State
}

func TestCreatePaymentTicketReservesQRs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := f.bundle.QRIDs[:2]

	ticket, err := f.sales.CreatePaymentTicket(ctx, f.ticketInput(ids...))
	require.NoError(t, err)
	assert.Regexp(t, `^PT-[0-9]+-[0-9]{6}$`, ticket.TicketID)
	assert.Equal(t, models.TicketPending, ticket.Status)
	assert.Equal(t, "9999999999", ticket.CustomerPhone)

	for _, id := range ids {
		qr, err := f.store.GetQR(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QRStateReserved, qr.State)
		assert.Equal(t, models.QRStatusPendingPayment, qr.Status())
		assert.Equal(t, ticket.TicketID, qr.TicketID)
	}

	inv, err := f.inv.AgentInventory(ctx, "agent-x")
	require.NoError(t, err)
	assert.Equal(t, 3, inv.AvailableQRs)
	assert.Equal(t, 2, inv.PendingQRs)
	assert.Zero(t, inv.TotalQRsSold)

	// the same QRs cannot back a second pending ticket
	_, err = f.sales.CreatePaymentTicket(ctx, f.ticketInput(ids[1], f.bundle.QRIDs[2]))
	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonQRsUnavailable))
	assert.Equal(t, []string{ids[1]}, apperr.As(err).IDs())
	assert.Equal(t, models.QRStateUnsold, f.state(t, f.bundle.QRIDs[2]))
}

func TestCreatePaymentTicketValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs

	empty := f.ticketInput()
	_, err := f.sales.CreatePaymentTicket(ctx, empty)
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingField))

	dup := f.ticketInput(q[0], q[0])
	_, err = f.sales.CreatePaymentTicket(ctx, dup)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	zero := f.ticketInput(q[0])
	zero.Amount = decimal.Zero
	_, err = f.sales.CreatePaymentTicket(ctx, zero)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	method := f.ticketInput(q[0])
	method.PaymentMethod = "BITCOIN"
	_, err = f.sales.CreatePaymentTicket(ctx, method)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	badPhone := f.ticketInput(q[0])
	badPhone.Customer.Phone = "12345"
	_, err = f.sales.CreatePaymentTicket(ctx, badPhone)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	tickets, err := f.store.ListTickets(ctx, models.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Equal(t, models.QRStateUnsold, f.state(t, q[0]))
}

func TestCreatePaymentTicketOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := f.ticketInput(f.bundle.QRIDs[0])
	other.AgentRef = "agent-y"
	_, err := f.sales.CreatePaymentTicket(ctx, other)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	assert.True(t, apperr.HasReason(err, apperr.ReasonBundleNotOwned))

	foreign, err := f.inv.CreateBundle(ctx, inventory.CreateBundleInput{Count: 1, PricePerQR: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = f.sales.CreatePaymentTicket(ctx, f.ticketInput(f.bundle.QRIDs[0], foreign.QRIDs[0]))
	assert.True(t, apperr.HasReason(err, apperr.ReasonQRsUnavailable))
	assert.Equal(t, []string{foreign.QRIDs[0]}, apperr.As(err).IDs())
}

func TestConcurrentOverlappingTickets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs

	inputs := []sales.CreateTicketInput{
		f.ticketInput(q[0], q[1]),
		f.ticketInput(q[1], q[2]),
	}
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sales.CreatePaymentTicket(ctx, inputs[i])
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
		}
	}
	assert.Equal(t, 1, failures)

	pending, err := f.store.ListTickets(ctx, models.TicketFilter{Status: models.TicketPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	reserved := 0
	for _, id := range q[:3] {
		if f.state(t, id) == models.QRStateReserved {
			reserved++
		}
	}
	assert.Equal(t, 2, reserved)
}

func TestCreatePaymentTicketRollsBackPartialReservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs

	f.sales.Store = &racingStore{Store: f.store, before: func() {
		n, err := f.store.ReserveQRs(ctx, []string{q[1]}, "PT-1-000001", "agent-x", t0)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}}

	_, err := f.sales.CreatePaymentTicket(ctx, f.ticketInput(q[0], q[1]))
	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonQRsUnavailable))
	assert.Equal(t, []string{q[1]}, apperr.As(err).IDs())

	assert.Equal(t, models.QRStateUnsold, f.state(t, q[0]))
	tickets, err := f.store.ListTickets(ctx, models.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestSellQRDirect(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs

	qr, err := f.sales.SellQRDirect(ctx, q[0], "agent-x", customer())
	require.NoError(t, err)
	assert.Equal(t, models.QRStateSoldActive, qr.State)
	assert.Equal(t, models.QRStatusActive, qr.Status())
	assert.True(t, qr.IsSold())
	assert.Equal(t, "phone:9999999999", qr.OwnerRef)
	assert.Equal(t, "agent-x", qr.SoldByAgentRef)

	_, err = f.sales.SellQRDirect(ctx, q[0], "agent-x", customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonQRsUnavailable))

	_, err = f.sales.SellQRDirect(ctx, q[1], "agent-y", customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonBundleNotOwned))

	_, err = f.sales.SellQRDirect(ctx, q[1], "agent-x", models.Customer{Name: "No Phone"})
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingField))

	_, err = f.sales.CreatePaymentTicket(ctx, f.ticketInput(q[2]))
	require.NoError(t, err)
	_, err = f.sales.SellQRDirect(ctx, q[2], "agent-x", customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonQRsUnavailable))

	agent, err := f.store.GetAgent(ctx, "agent-x")
	require.NoError(t, err)
	assert.Equal(t, 1, agent.TotalQRsSold)
}

func TestActivateQRGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs
	qrs, err := f.store.GetQRsByIDs(ctx, q)
	require.NoError(t, err)
	serial := map[string]string{}
	for _, qr := range qrs {
		serial[qr.ID] = qr.SerialNumber
	}

	// UNSOLD
	_, err = f.sales.ActivateQR(ctx, serial[q[0]], customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonForbiddenTransition))

	// RESERVED
	ticket, err := f.sales.CreatePaymentTicket(ctx, f.ticketInput(q[1], q[2]))
	require.NoError(t, err)
	_, err = f.sales.ActivateQR(ctx, serial[q[1]], customer())
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))
	assert.True(t, apperr.HasReason(err, apperr.ReasonForbiddenTransition))

	// REJECTED
	_, err = f.store.RejectQRs(ctx, []string{q[2]}, ticket.TicketID, t0)
	require.NoError(t, err)
	_, err = f.sales.ActivateQR(ctx, serial[q[2]], customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonForbiddenTransition))

	// SOLD_PENDING_ACTIVATION
	n, err := f.store.ApproveQRs(ctx, []string{q[1]}, ticket.TicketID, models.QRStateReserved, "agent-x", customer(), t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	activated, err := f.sales.ActivateQR(ctx, serial[q[1]], models.Customer{ID: "cust-1", Name: "Asha", Phone: "9999999999"})
	require.NoError(t, err)
	assert.Equal(t, models.QRStateSoldActive, activated.State)
	assert.Equal(t, models.QRStatusActive, activated.Status())
	assert.Equal(t, "cust-1", activated.OwnerRef)

	_, err = f.sales.ActivateQR(ctx, serial[q[1]], customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonAlreadyTerminal))

	_, err = f.sales.ActivateQR(ctx, "qr12", customer())
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidSerial))

	_, err = f.sales.ActivateQR(ctx, "QR0000000000", customer())
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUpdateContactPreferences(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := f.bundle.QRIDs
	off := false

	_, err := f.sales.UpdateContactPreferences(ctx, q[0], "phone:9999999999", models.ContactPreferences{VoiceCallsAllowed: &off})
	assert.Equal(t, apperr.CodeInvalidState, apperr.CodeOf(err))

	sold, err := f.sales.SellQRDirect(ctx, q[0], "agent-x", customer())
	require.NoError(t, err)

	_, err = f.sales.UpdateContactPreferences(ctx, q[0], sold.OwnerRef, models.ContactPreferences{})
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingField))

	_, err = f.sales.UpdateContactPreferences(ctx, q[0], "someone-else", models.ContactPreferences{VoiceCallsAllowed: &off})
	assert.True(t, apperr.HasReason(err, apperr.ReasonNotOwner))

	updated, err := f.sales.UpdateContactPreferences(ctx, q[0], sold.OwnerRef, models.ContactPreferences{VoiceCallsAllowed: &off})
	require.NoError(t, err)
	assert.False(t, updated.VoiceCallsAllowed)
	assert.True(t, updated.TextMessagesAllowed)
}

func TestScanQR(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	qr, err := f.store.GetQR(ctx, f.bundle.QRIDs[0])
	require.NoError(t, err)

	token, err := f.tokens.Encrypt(qrimage.Payload{QRID: qr.ID, SerialNumber: qr.SerialNumber, BundleID: qr.BundleID})
	require.NoError(t, err)
	scanned, err := f.sales.ScanQR(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, qr.ID, scanned.ID)

	forged, err := f.tokens.Encrypt(qrimage.Payload{QRID: qr.ID, SerialNumber: "QR0000000000"})
	require.NoError(t, err)
	_, err = f.sales.ScanQR(ctx, forged)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidSerial))

	_, err = f.sales.ScanQR(ctx, "not-a-token")
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
