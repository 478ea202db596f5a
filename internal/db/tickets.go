package db

import (
	"context"
	"time"

	"ms-qrinventory/internal/models"
)

func (q *Queries) InsertTicket(ctx context.Context, t *models.PaymentTicket) error {
	_, err := q.db.NewInsert().Model(t).Exec(ctx)
	return err
}

func (q *Queries) GetTicket(ctx context.Context, id string) (*models.PaymentTicket, error) {
	var t models.PaymentTicket
	err := q.db.NewSelect().Model(&t).Where("pt.ticket_id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "payment ticket", id)
	}
	return &t, nil
}

func (q *Queries) ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.PaymentTicket, error) {
	tickets := []*models.PaymentTicket{}
	query := q.db.NewSelect().Model(&tickets).Order("pt.created_at DESC")
	if filter.Status != "" {
		query = query.Where("pt.status = ?", filter.Status)
	}
	if filter.SalespersonRef != "" {
		query = query.Where("pt.salesperson_ref = ?", filter.SalespersonRef)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	err := query.Scan(ctx)
	return tickets, err
}

// UpdateTicketDecision moves a ticket from the observed status to the
// decided one. Zero rows means another decision won.
func (q *Queries) UpdateTicketDecision(ctx context.Context, id string, from, to models.TicketStatus, notes string, now time.Time) (int64, error) {
	query := q.db.NewUpdate().Model((*models.PaymentTicket)(nil)).
		Set("status = ?", to).
		Set("approved_at = ?", now).
		Set("updated_at = ?", now)
	if notes != "" {
		query = query.Set("admin_notes = ?", notes)
	}
	return affected(query.
		Where("ticket_id = ?", id).
		Where("status = ?", from).
		Exec(ctx))
}
