// Package db is the bun-backed store. Every state-changing method is a
// conditional update that reports how many rows matched its precondition.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/models"

	"github.com/uptrace/bun"
)

// Querier is the set of queries available both on the pool and inside a
// transaction.
type Querier interface {
	// QRs
	InsertQRs(ctx context.Context, qrs []*models.QR) error
	GetQR(ctx context.Context, id string) (*models.QR, error)
	GetQRBySerial(ctx context.Context, serial string) (*models.QR, error)
	GetQRsByIDs(ctx context.Context, ids []string) ([]*models.QR, error)
	ListQRsByBundle(ctx context.Context, bundleID string) ([]*models.QR, error)
	ListQRIDsByState(ctx context.Context, bundleID string, state models.QRState) ([]string, error)
	CountQRStates(ctx context.Context, filter QRCountFilter) (models.QRStateCounts, error)
	ReserveQRs(ctx context.Context, ids []string, ticketID, agentRef string, now time.Time) (int64, error)
	ApproveQRs(ctx context.Context, ids []string, ticketID string, from models.QRState, agentRef string, customer models.Customer, now time.Time) (int64, error)
	RejectQRs(ctx context.Context, ids []string, ticketID string, now time.Time) (int64, error)
	SellQRDirect(ctx context.Context, id, agentRef string, customer models.Customer, now time.Time) (int64, error)
	ActivateQR(ctx context.Context, serial string, customer models.Customer, now time.Time) (int64, error)
	UpdatePreferences(ctx context.Context, id, ownerRef string, prefs models.ContactPreferences, now time.Time) (int64, error)
	StampDelivery(ctx context.Context, bundleID string, delivery models.DeliveryType, now time.Time) (int64, error)

	// Bundles
	NextBundleSequence(ctx context.Context) (int64, error)
	InsertBundle(ctx context.Context, b *models.Bundle) error
	GetBundle(ctx context.Context, id string) (*models.Bundle, error)
	ListBundles(ctx context.Context, filter models.BundleFilter) ([]*models.Bundle, error)
	AssignBundle(ctx context.Context, id, agentRef string, delivery models.DeliveryType, now time.Time) (int64, error)
	ReassignBundle(ctx context.Context, id, fromAgent, toAgent string, now time.Time) (int64, error)
	TouchBundleForAgent(ctx context.Context, id, agentRef string, now time.Time) (int64, error)
	CountBundlesByAgent(ctx context.Context, agentRef string) (int, error)

	// Payment tickets
	InsertTicket(ctx context.Context, t *models.PaymentTicket) error
	GetTicket(ctx context.Context, id string) (*models.PaymentTicket, error)
	ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.PaymentTicket, error)
	UpdateTicketDecision(ctx context.Context, id string, from, to models.TicketStatus, notes string, now time.Time) (int64, error)

	// Agents
	InsertAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	SetAgentActive(ctx context.Context, id string, active bool, now time.Time) (int64, error)
	IncrementAgentSold(ctx context.Context, id string, n int, now time.Time) (int64, error)

	// Call log
	AppendCallLog(ctx context.Context, entry *models.CallLogEntry, pruneBefore time.Time) error
	ClaimCallLog(ctx context.Context, id int64, from string, now time.Time) (int64, error)
	FindVoiceQRBySuffix(ctx context.Context, suffix string) (*models.QR, error)
	ListVoiceQRIDsByPhone(ctx context.Context, phone string) ([]string, error)
	FindRecentConnectedCall(ctx context.Context, qrIDs []string, since time.Time, excludeFrom string) (*models.CallLogEntry, error)
	ListActiveWindowCandidates(ctx context.Context, since time.Time, limit int) ([]*models.CallLogEntry, error)
	LatestConnectedQR(ctx context.Context) (*models.QR, error)
	ListCallLogs(ctx context.Context, qrID string) ([]*models.CallLogEntry, error)
}

// Store is a Querier that can also open a transaction.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error
}

type QRCountFilter struct {
	AgentRef string
	BundleID string
}

// Queries runs against either the pool or an open transaction.
type Queries struct {
	db bun.IDB
}

type DB struct {
	*Queries
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Queries: &Queries{db: bunDB}, Bun: bunDB}
}

// InTx runs fn in one transaction. Any error returned by fn rolls back
// every write made through tx.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Queries{db: tx})
	})
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.Bun.Close()
}

var schemaModels = []interface{}{
	(*models.Agent)(nil),
	(*models.Bundle)(nil),
	(*models.QR)(nil),
	(*models.PaymentTicket)(nil),
	(*models.CallLogEntry)(nil),
}

// CreateSchema builds tables and indexes from the models. Production runs
// the SQL migrations instead.
func (d *DB) CreateSchema(ctx context.Context) error {
	for _, m := range schemaModels {
		if _, err := d.Bun.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.QR)(nil), "idx_qrs_bundle_state", []string{"bundle_id", "state"}},
		{(*models.QR)(nil), "idx_qrs_customer_phone", []string{"customer_phone"}},
		{(*models.CallLogEntry)(nil), "idx_call_logs_qr_at", []string{"qr_id", "at"}},
		{(*models.PaymentTicket)(nil), "idx_tickets_status", []string{"status"}},
		{(*models.Bundle)(nil), "idx_bundles_assigned_to", []string{"assigned_to"}},
	}
	for _, idx := range indexes {
		if _, err := d.Bun.NewCreateIndex().Model(idx.model).Index(idx.name).
			IfNotExists().Column(idx.columns...).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return err
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
