package db

import (
	"context"
	"time"

	"ms-qrinventory/internal/models"
)

// NextBundleSequence is the store-side fallback when no redis counter is
// configured. The unique index on sequence rejects a concurrent duplicate.
func (q *Queries) NextBundleSequence(ctx context.Context) (int64, error) {
	var max int64
	err := q.db.NewSelect().Model((*models.Bundle)(nil)).
		ColumnExpr("COALESCE(MAX(b.sequence), 0)").
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (q *Queries) InsertBundle(ctx context.Context, b *models.Bundle) error {
	_, err := q.db.NewInsert().Model(b).Exec(ctx)
	return err
}

func (q *Queries) GetBundle(ctx context.Context, id string) (*models.Bundle, error) {
	var b models.Bundle
	err := q.db.NewSelect().Model(&b).Where("b.bundle_id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "bundle", id)
	}
	return &b, nil
}

func (q *Queries) ListBundles(ctx context.Context, filter models.BundleFilter) ([]*models.Bundle, error) {
	bundles := []*models.Bundle{}
	query := q.db.NewSelect().Model(&bundles).Order("b.sequence ASC")
	if filter.Status != "" {
		query = query.Where("b.status = ?", filter.Status)
	}
	if filter.AssignedTo != "" {
		query = query.Where("b.assigned_to = ?", filter.AssignedTo)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	err := query.Scan(ctx)
	return bundles, err
}

func (q *Queries) AssignBundle(ctx context.Context, id, agentRef string, delivery models.DeliveryType, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.Bundle)(nil)).
		Set("assigned_to = ?", agentRef).
		Set("delivery_type = ?", delivery).
		Set("status = ?", models.BundleAssigned).
		Set("assigned_at = ?", now).
		Set("updated_at = ?", now).
		Where("bundle_id = ?", id).
		Where("status = ?", models.BundleUnassigned).
		Exec(ctx))
}

func (q *Queries) ReassignBundle(ctx context.Context, id, fromAgent, toAgent string, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.Bundle)(nil)).
		Set("assigned_to = ?", toAgent).
		Set("updated_at = ?", now).
		Where("bundle_id = ?", id).
		Where("assigned_to = ?", fromAgent).
		Where("status = ?", models.BundleAssigned).
		Exec(ctx))
}

// TouchBundleForAgent takes the bundle row lock and confirms the agent still
// holds it. Ticket creation and transfer both go through the row first.
func (q *Queries) TouchBundleForAgent(ctx context.Context, id, agentRef string, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.Bundle)(nil)).
		Set("updated_at = ?", now).
		Where("bundle_id = ?", id).
		Where("assigned_to = ?", agentRef).
		Where("status = ?", models.BundleAssigned).
		Exec(ctx))
}

func (q *Queries) CountBundlesByAgent(ctx context.Context, agentRef string) (int, error) {
	return q.db.NewSelect().Model((*models.Bundle)(nil)).
		Where("b.assigned_to = ?", agentRef).
		Where("b.status = ?", models.BundleAssigned).
		Count(ctx)
}
