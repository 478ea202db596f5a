package db

import (
	"context"
	"time"

	"ms-qrinventory/internal/models"

	"github.com/uptrace/bun"
)

func (q *Queries) InsertQRs(ctx context.Context, qrs []*models.QR) error {
	if len(qrs) == 0 {
		return nil
	}
	_, err := q.db.NewInsert().Model(&qrs).Exec(ctx)
	return err
}

func (q *Queries) GetQR(ctx context.Context, id string) (*models.QR, error) {
	var qr models.QR
	err := q.db.NewSelect().Model(&qr).Where("qr.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "qr", id)
	}
	return &qr, nil
}

func (q *Queries) GetQRBySerial(ctx context.Context, serial string) (*models.QR, error) {
	var qr models.QR
	err := q.db.NewSelect().Model(&qr).Where("qr.serial_number = ?", serial).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "qr", serial)
	}
	return &qr, nil
}

func (q *Queries) GetQRsByIDs(ctx context.Context, ids []string) ([]*models.QR, error) {
	qrs := make([]*models.QR, 0, len(ids))
	if len(ids) == 0 {
		return qrs, nil
	}
	err := q.db.NewSelect().Model(&qrs).Where("qr.id IN (?)", bun.In(ids)).Scan(ctx)
	return qrs, err
}

func (q *Queries) ListQRsByBundle(ctx context.Context, bundleID string) ([]*models.QR, error) {
	var qrs []*models.QR
	err := q.db.NewSelect().Model(&qrs).
		Where("qr.bundle_id = ?", bundleID).
		Order("qr.serial_number ASC").
		Scan(ctx)
	return qrs, err
}

func (q *Queries) ListQRIDsByState(ctx context.Context, bundleID string, state models.QRState) ([]string, error) {
	var ids []string
	err := q.db.NewSelect().Model((*models.QR)(nil)).
		ColumnExpr("qr.id").
		Where("qr.bundle_id = ?", bundleID).
		Where("qr.state = ?", state).
		Order("qr.id ASC").
		Scan(ctx, &ids)
	return ids, err
}

// CountQRStates groups QRs by state, scoped to a bundle or to every bundle
// currently assigned to an agent.
func (q *Queries) CountQRStates(ctx context.Context, filter QRCountFilter) (models.QRStateCounts, error) {
	var rows []struct {
		State models.QRState `bun:"state"`
		N     int            `bun:"n"`
	}
	query := q.db.NewSelect().Model((*models.QR)(nil)).
		ColumnExpr("qr.state AS state").
		ColumnExpr("COUNT(*) AS n").
		GroupExpr("qr.state")
	if filter.BundleID != "" {
		query = query.Where("qr.bundle_id = ?", filter.BundleID)
	}
	if filter.AgentRef != "" {
		assigned := q.db.NewSelect().Model((*models.Bundle)(nil)).
			ColumnExpr("b.bundle_id").
			Where("b.assigned_to = ?", filter.AgentRef).
			Where("b.status = ?", models.BundleAssigned)
		query = query.Where("qr.bundle_id IN (?)", assigned)
	}
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	counts := models.QRStateCounts{}
	for _, r := range rows {
		counts[r.State] = r.N
	}
	return counts, nil
}

// ReserveQRs moves UNSOLD or REJECTED QRs to RESERVED for a ticket.
func (q *Queries) ReserveQRs(ctx context.Context, ids []string, ticketID, agentRef string, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("state = ?", models.QRStateReserved).
		Set("ticket_id = ?", ticketID).
		Set("sold_by_agent_ref = ?", agentRef).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("state IN (?)", bun.In([]models.QRState{models.QRStateUnsold, models.QRStateRejected})).
		Exec(ctx))
}

// ApproveQRs sells the ticket's QRs. from is RESERVED for a pending ticket
// and REJECTED when a rejected ticket is approved later.
func (q *Queries) ApproveQRs(ctx context.Context, ids []string, ticketID string, from models.QRState, agentRef string, customer models.Customer, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("state = ?", models.QRStateSoldPendingActivation).
		Set("sold_by_agent_ref = ?", agentRef).
		Set("customer_name = ?", customer.Name).
		Set("customer_phone = ?", customer.Phone).
		Set("customer_email = ?", nullable(customer.Email)).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("state = ?", from).
		Where("ticket_id = ?", ticketID).
		Exec(ctx))
}

func (q *Queries) RejectQRs(ctx context.Context, ids []string, ticketID string, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("state = ?", models.QRStateRejected).
		Set("sold_by_agent_ref = NULL").
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids)).
		Where("state = ?", models.QRStateReserved).
		Where("ticket_id = ?", ticketID).
		Exec(ctx))
}

func (q *Queries) SellQRDirect(ctx context.Context, id, agentRef string, customer models.Customer, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("state = ?", models.QRStateSoldActive).
		Set("owner_ref = ?", customer.Ref()).
		Set("sold_by_agent_ref = ?", agentRef).
		Set("customer_name = ?", customer.Name).
		Set("customer_phone = ?", customer.Phone).
		Set("customer_email = ?", nullable(customer.Email)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("state = ?", models.QRStateUnsold).
		Exec(ctx))
}

// ActivateQR hands a sold QR to the activating customer. Customer contact
// fields are only overwritten when given.
func (q *Queries) ActivateQR(ctx context.Context, serial string, customer models.Customer, now time.Time) (int64, error) {
	query := q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("state = ?", models.QRStateSoldActive).
		Set("owner_ref = ?", customer.Ref()).
		Set("updated_at = ?", now)
	if customer.Name != "" {
		query = query.Set("customer_name = ?", customer.Name)
	}
	if customer.Phone != "" {
		query = query.Set("customer_phone = ?", customer.Phone)
	}
	if customer.Email != "" {
		query = query.Set("customer_email = ?", customer.Email)
	}
	return affected(query.
		Where("serial_number = ?", serial).
		Where("state = ?", models.QRStateSoldPendingActivation).
		Exec(ctx))
}

func (q *Queries) UpdatePreferences(ctx context.Context, id, ownerRef string, prefs models.ContactPreferences, now time.Time) (int64, error) {
	query := q.db.NewUpdate().Model((*models.QR)(nil)).Set("updated_at = ?", now)
	if prefs.VoiceCallsAllowed != nil {
		query = query.Set("voice_calls_allowed = ?", *prefs.VoiceCallsAllowed)
	}
	if prefs.TextMessagesAllowed != nil {
		query = query.Set("text_messages_allowed = ?", *prefs.TextMessagesAllowed)
	}
	if prefs.VideoCallsAllowed != nil {
		query = query.Set("video_calls_allowed = ?", *prefs.VideoCallsAllowed)
	}
	return affected(query.
		Where("id = ?", id).
		Where("state = ?", models.QRStateSoldActive).
		Where("owner_ref = ?", ownerRef).
		Exec(ctx))
}

func (q *Queries) StampDelivery(ctx context.Context, bundleID string, delivery models.DeliveryType, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("delivery_type = ?", delivery).
		Set("order_status = ?", delivery.OrderStatus()).
		Set("updated_at = ?", now).
		Where("bundle_id = ?", bundleID).
		Exec(ctx))
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
