// Package sales covers the agent and customer side of a QR sale: direct
// sales, payment ticket creation, activation and owner preferences.
package sales

import (
	"context"
	"fmt"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/lifecycle"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/phone"
	"ms-qrinventory/internal/qrimage"
	"ms-qrinventory/internal/utils"
	"ms-qrinventory/internal/validation"

	"github.com/shopspring/decimal"
)

type Locker interface {
	LockAll(ctx context.Context, keys []string, owner string) (bool, error)
	UnlockAll(ctx context.Context, keys []string, owner string) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type TokenDecoder interface {
	Decrypt(token string) (qrimage.Payload, error)
}

type Service struct {
	Store    db.Store
	Locker   Locker // optional
	Notifier Notifier
	Tokens   TokenDecoder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(store db.Store, notifier Notifier, tokens TokenDecoder, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Notifier: notifier,
		Tokens:   tokens,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func normalizeCustomer(c models.Customer) (models.Customer, error) {
	if err := validation.Struct(c); err != nil {
		return c, err
	}
	c.Phone, _ = phone.Normalize(c.Phone)
	return c, nil
}

// SellQRDirect sells one UNSOLD QR from the agent's bundle straight to an
// owner, bypassing payment approval.
func (s *Service) SellQRDirect(ctx context.Context, qrID, agentRef string, customer models.Customer) (*models.QR, error) {
	customer, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}
	qr, err := s.Store.GetQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if qr.State != models.QRStateUnsold {
		return nil, unavailable(qrID)
	}
	if err := s.requireBundleOwner(ctx, qr.BundleID, agentRef); err != nil {
		return nil, err
	}

	now := s.Now()
	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		n, err := tx.TouchBundleForAgent(ctx, qr.BundleID, agentRef, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return notOwned(qr.BundleID, agentRef)
		}
		if n, err = tx.SellQRDirect(ctx, qrID, agentRef, customer, now); err != nil {
			return err
		}
		if n == 0 {
			return unavailable(qrID)
		}
		_, err = tx.IncrementAgentSold(ctx, agentRef, 1, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogQR("SELL", qrID, fmt.Sprintf("direct sale by %s to %s", agentRef, customer.Ref()))
	return s.Store.GetQR(ctx, qrID)
}

type CreateTicketInput struct {
	AgentRef        string               `json:"-" validate:"required"`
	Customer        models.Customer      `json:"customer"`
	QRIDs           []string             `json:"qr_ids" validate:"required,min=1,unique,dive,required"`
	BundleID        string               `json:"bundle_id" validate:"required"`
	Amount          decimal.Decimal      `json:"amount"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"required"`
	PaymentProofRef string               `json:"payment_proof_ref"`
}

// CreatePaymentTicket reserves the QRs for a PENDING ticket. The ticket
// insert and every reservation commit together or not at all.
func (s *Service) CreatePaymentTicket(ctx context.Context, in CreateTicketInput) (*models.PaymentTicket, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation(apperr.ReasonInvalidField,
			fmt.Sprintf("amount must be positive, got %s", in.Amount)).WithIDs("amount")
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.Validation(apperr.ReasonInvalidField,
			fmt.Sprintf("unsupported payment method %q", in.PaymentMethod)).WithIDs("payment_method")
	}
	customer, err := normalizeCustomer(in.Customer)
	if err != nil {
		return nil, err
	}

	bundle, err := s.Store.GetBundle(ctx, in.BundleID)
	if err != nil {
		return nil, err
	}
	if bundle.Status != models.BundleAssigned || bundle.AssignedTo != in.AgentRef {
		return nil, notOwned(in.BundleID, in.AgentRef)
	}
	var foreign []string
	for _, id := range in.QRIDs {
		if !bundle.Contains(id) {
			foreign = append(foreign, id)
		}
	}
	if len(foreign) > 0 {
		return nil, apperr.Conflict(apperr.ReasonQRsUnavailable,
			fmt.Sprintf("qrs are not part of bundle %s", in.BundleID), foreign...)
	}

	// fast rejection; the conditional reservation below is what decides
	current, err := s.Store.GetQRsByIDs(ctx, in.QRIDs)
	if err != nil {
		return nil, err
	}
	if taken := unavailableIDs(current, func(qr *models.QR) bool { return lifecycle.Available(qr.State) }); len(taken) > 0 {
		return nil, apperr.Conflict(apperr.ReasonQRsUnavailable, "qrs are not available for sale", taken...)
	}

	now := s.Now()
	ticket := &models.PaymentTicket{
		TicketID:        utils.GenerateTicketID(now),
		SalespersonRef:  in.AgentRef,
		CustomerName:    customer.Name,
		CustomerPhone:   customer.Phone,
		CustomerEmail:   customer.Email,
		QRIDs:           in.QRIDs,
		BundleID:        in.BundleID,
		Amount:          in.Amount,
		PaymentMethod:   in.PaymentMethod,
		PaymentProofRef: in.PaymentProofRef,
		Status:          models.TicketPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	release, err := s.lockQRs(ctx, in.QRIDs, ticket.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		n, err := tx.TouchBundleForAgent(ctx, in.BundleID, in.AgentRef, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return notOwned(in.BundleID, in.AgentRef)
		}
		if err := tx.InsertTicket(ctx, ticket); err != nil {
			return err
		}
		reserved, err := tx.ReserveQRs(ctx, in.QRIDs, ticket.TicketID, in.AgentRef, now)
		if err != nil {
			return err
		}
		if reserved == int64(len(in.QRIDs)) {
			return nil
		}
		after, err := tx.GetQRsByIDs(ctx, in.QRIDs)
		if err != nil {
			return err
		}
		taken := unavailableIDs(after, func(qr *models.QR) bool {
			return qr.State == models.QRStateReserved && qr.TicketID == ticket.TicketID
		})
		return apperr.Conflict(apperr.ReasonQRsUnavailable, "qrs were reserved by another ticket", taken...)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogTicket("CREATE", ticket.TicketID, fmt.Sprintf("%d qrs from %s for %s (%s %s)",
		len(ticket.QRIDs), ticket.BundleID, ticket.SalespersonRef, ticket.Amount, ticket.PaymentMethod))
	s.notify(ctx, models.Notification{
		Kind:    models.NotifyTicketCreated,
		Targets: []string{"back-office"},
		Title:   fmt.Sprintf("Payment ticket %s awaiting approval", ticket.TicketID),
		Body:    fmt.Sprintf("%s collected %s via %s", ticket.SalespersonRef, ticket.Amount, ticket.PaymentMethod),
		Data:    map[string]string{"ticket_id": ticket.TicketID, "bundle_id": ticket.BundleID},
	})
	return ticket, nil
}

// ActivateQR hands a SOLD_PENDING_ACTIVATION QR to the customer scanning it.
func (s *Service) ActivateQR(ctx context.Context, serial string, customer models.Customer) (*models.QR, error) {
	if err := lifecycle.ValidateSerial(serial); err != nil {
		return nil, err
	}
	customer, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}
	qr, err := s.Store.GetQRBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if _, err := lifecycle.Next(qr.State, lifecycle.EventActivate); err != nil {
		return nil, withID(err, qr.ID)
	}

	n, err := s.Store.ActivateQR(ctx, serial, customer, s.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// lost a race; report whatever state won
		if qr, err = s.Store.GetQRBySerial(ctx, serial); err != nil {
			return nil, err
		}
		if _, err := lifecycle.Next(qr.State, lifecycle.EventActivate); err != nil {
			return nil, withID(err, qr.ID)
		}
		return nil, apperr.Conflict(apperr.ReasonInProgress, "qr changed during activation", qr.ID)
	}

	s.Logger.LogQR("ACTIVATE", qr.ID, "owner "+customer.Ref())
	s.notify(ctx, models.Notification{
		Kind:    models.NotifyQRActivated,
		Targets: []string{customer.Ref()},
		Title:   fmt.Sprintf("QR %s is active", serial),
		Data:    map[string]string{"qr_id": qr.ID, "serial_number": serial},
	})
	return s.Store.GetQR(ctx, qr.ID)
}

// UpdateContactPreferences lets the owner of an active QR switch channels.
func (s *Service) UpdateContactPreferences(ctx context.Context, qrID, ownerRef string, prefs models.ContactPreferences) (*models.QR, error) {
	if prefs.VoiceCallsAllowed == nil && prefs.TextMessagesAllowed == nil && prefs.VideoCallsAllowed == nil {
		return nil, apperr.Validation(apperr.ReasonMissingField, "no preference given")
	}
	qr, err := s.Store.GetQR(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if qr.State != models.QRStateSoldActive {
		return nil, apperr.InvalidState(apperr.ReasonForbiddenTransition, "qr is not active").WithIDs(qrID)
	}
	if qr.OwnerRef == "" || qr.OwnerRef != ownerRef {
		return nil, apperr.Forbidden(apperr.ReasonNotOwner, "only the owner may change preferences").WithIDs(qrID)
	}
	n, err := s.Store.UpdatePreferences(ctx, qrID, ownerRef, prefs, s.Now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.Forbidden(apperr.ReasonNotOwner, "only the owner may change preferences").WithIDs(qrID)
	}
	return s.Store.GetQR(ctx, qrID)
}

func (s *Service) GetQR(ctx context.Context, qrID string) (*models.QR, error) {
	return s.Store.GetQR(ctx, qrID)
}

func (s *Service) GetQRBySerial(ctx context.Context, serial string) (*models.QR, error) {
	if err := lifecycle.ValidateSerial(serial); err != nil {
		return nil, err
	}
	return s.Store.GetQRBySerial(ctx, serial)
}

// ScanQR resolves the token printed in a QR image back to its record.
func (s *Service) ScanQR(ctx context.Context, token string) (*models.QR, error) {
	p, err := s.Tokens.Decrypt(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, apperr.ReasonInvalidField, err, "unreadable qr token")
	}
	qr, err := s.Store.GetQR(ctx, p.QRID)
	if err != nil {
		return nil, err
	}
	if qr.SerialNumber != p.SerialNumber {
		return nil, apperr.Validation(apperr.ReasonInvalidSerial, "qr token does not match its record").WithIDs(qr.ID)
	}
	return qr, nil
}

func (s *Service) requireBundleOwner(ctx context.Context, bundleID, agentRef string) error {
	if bundleID == "" {
		return notOwned(bundleID, agentRef)
	}
	bundle, err := s.Store.GetBundle(ctx, bundleID)
	if err != nil {
		return err
	}
	if bundle.Status != models.BundleAssigned || bundle.AssignedTo != agentRef {
		return notOwned(bundleID, agentRef)
	}
	return nil
}

func (s *Service) lockQRs(ctx context.Context, qrIDs []string, owner string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	keys := make([]string, len(qrIDs))
	for i, id := range qrIDs {
		keys[i] = "qr:" + id
	}
	ok, err := s.Locker.LockAll(ctx, keys, owner)
	if err != nil {
		return nil, apperr.Dependency("", err, "lock service unavailable")
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ReasonQRsUnavailable, "qrs are being reserved by another request", qrIDs...)
	}
	return func() {
		if err := s.Locker.UnlockAll(context.Background(), keys, owner); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("failed to release qr locks for %s: %v", owner, err))
		}
	}, nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.Notifier == nil {
		return
	}
	n.At = s.Now()
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("%s dropped: %v", n.Kind, err))
	}
}

// unavailableIDs lists the ids of QRs failing ok.
func unavailableIDs(qrs []*models.QR, ok func(*models.QR) bool) []string {
	var ids []string
	for _, qr := range qrs {
		if !ok(qr) {
			ids = append(ids, qr.ID)
		}
	}
	return ids
}

func unavailable(qrID string) error {
	return apperr.Conflict(apperr.ReasonQRsUnavailable, "qr is not available for sale", qrID)
}

func notOwned(bundleID, agentRef string) error {
	return apperr.Forbidden(apperr.ReasonBundleNotOwned,
		fmt.Sprintf("bundle %s is not assigned to %s", bundleID, agentRef)).WithIDs(bundleID)
}

func withID(err error, id string) error {
	if typed := apperr.As(err); typed != nil {
		return typed.WithIDs(id)
	}
	return err
}
