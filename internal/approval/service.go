// Package approval is the back-office side of a payment ticket: it decides
// PENDING (or previously rejected) tickets and moves the reserved QRs with
// the decision.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/db"
	"ms-qrinventory/internal/lifecycle"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"

	"github.com/google/uuid"
)

type Locker interface {
	Lock(ctx context.Context, key, owner string) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Service struct {
	Store    db.Store
	Locker   Locker // optional
	Notifier Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(store db.Store, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Notifier: notifier,
		Logger:   log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// DecideTicket applies an APPROVE or REJECT decision. The ticket status
// change and every QR move commit in one transaction; a QR that is no
// longer held by the ticket fails the whole decision.
func (s *Service) DecideTicket(ctx context.Context, ticketID string, decision models.Decision, notes string) (*models.PaymentTicket, error) {
	ticket, err := s.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	to, err := lifecycle.NextTicketStatus(ticket.Status, decision)
	if err != nil {
		return nil, withID(err, ticketID)
	}

	release, err := s.lock(ctx, "ticket:"+ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	from := ticket.Status
	qrFrom := lifecycle.QRSourceForTicket(from)
	now := s.Now()
	want := int64(len(ticket.QRIDs))

	err = s.Store.InTx(ctx, func(ctx context.Context, tx db.Querier) error {
		n, err := tx.UpdateTicketDecision(ctx, ticketID, from, to, notes, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return s.lostRace(ctx, tx, ticketID, decision)
		}

		switch decision {
		case models.DecisionApprove:
			moved, err := tx.ApproveQRs(ctx, ticket.QRIDs, ticketID, qrFrom, ticket.SalespersonRef, ticket.Customer(), now)
			if err != nil {
				return err
			}
			if moved != want {
				return unheld(ctx, tx, ticket, models.QRStateSoldPendingActivation)
			}
			_, err = tx.IncrementAgentSold(ctx, ticket.SalespersonRef, len(ticket.QRIDs), now)
			return err
		default:
			moved, err := tx.RejectQRs(ctx, ticket.QRIDs, ticketID, now)
			if err != nil {
				return err
			}
			if moved != want {
				return unheld(ctx, tx, ticket, models.QRStateRejected)
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogTicket(string(decision), ticketID, fmt.Sprintf("%s -> %s, %d qrs", from, to, len(ticket.QRIDs)))
	s.notify(ctx, models.Notification{
		Kind:    models.NotifyTicketDecided,
		Targets: []string{ticket.SalespersonRef},
		Title:   fmt.Sprintf("Payment ticket %s %s", ticketID, to),
		Body:    notes,
		Data:    map[string]string{"ticket_id": ticketID, "status": string(to)},
	})
	return s.Store.GetTicket(ctx, ticketID)
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (*models.PaymentTicket, error) {
	return s.Store.GetTicket(ctx, ticketID)
}

func (s *Service) ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.PaymentTicket, error) {
	return s.Store.ListTickets(ctx, filter)
}

// lostRace reports why the conditional status update matched nothing, from
// the perspective of the ticket's current state.
func (s *Service) lostRace(ctx context.Context, tx db.Querier, ticketID string, decision models.Decision) error {
	current, err := tx.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if _, err := lifecycle.NextTicketStatus(current.Status, decision); err != nil {
		return withID(err, ticketID)
	}
	return apperr.Conflict(apperr.ReasonInProgress, "ticket was decided concurrently", ticketID)
}

// unheld lists the ticket's QRs that did not reach target.
func unheld(ctx context.Context, tx db.Querier, ticket *models.PaymentTicket, target models.QRState) error {
	qrs, err := tx.GetQRsByIDs(ctx, ticket.QRIDs)
	if err != nil {
		return err
	}
	var ids []string
	for _, qr := range qrs {
		if qr.State != target || qr.TicketID != ticket.TicketID {
			ids = append(ids, qr.ID)
		}
	}
	return apperr.Conflict(apperr.ReasonQRsUnavailable,
		fmt.Sprintf("qrs are no longer held by ticket %s", ticket.TicketID), ids...)
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	owner := uuid.NewString()
	ok, err := s.Locker.Lock(ctx, key, owner)
	if err != nil {
		return nil, apperr.Dependency("", err, "lock service unavailable")
	}
	if !ok {
		return nil, apperr.Conflict(apperr.ReasonInProgress, "ticket decision already in progress", strings.TrimPrefix(key, "ticket:"))
	}
	return func() {
		if err := s.Locker.Unlock(context.Background(), key, owner); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("failed to release %s: %v", key, err))
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

func withID(err error, id string) error {
	if typed := apperr.As(err); typed != nil {
		return typed.WithIDs(id)
	}
	return err
}
