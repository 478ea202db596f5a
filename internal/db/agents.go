package db

import (
	"context"
	"time"

	"ms-qrinventory/internal/models"
)

func (q *Queries) InsertAgent(ctx context.Context, a *models.Agent) error {
	_, err := q.db.NewInsert().Model(a).Exec(ctx)
	return err
}

func (q *Queries) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := q.db.NewSelect().Model(&a).Where("a.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "agent", id)
	}
	return &a, nil
}

func (q *Queries) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	agents := []*models.Agent{}
	err := q.db.NewSelect().Model(&agents).Order("a.name ASC").Scan(ctx)
	return agents, err
}

func (q *Queries) SetAgentActive(ctx context.Context, id string, active bool, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.Agent)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx))
}

// IncrementAgentSold must run in the transaction that sold the QRs.
func (q *Queries) IncrementAgentSold(ctx context.Context, id string, n int, now time.Time) (int64, error) {
	return affected(q.db.NewUpdate().Model((*models.Agent)(nil)).
		Set("total_qrs_sold = total_qrs_sold + ?", n).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx))
}
