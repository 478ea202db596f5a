package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-qrinventory/internal/models"

	"github.com/uptrace/bun"
)

// AppendCallLog inserts the entry, points the QR cursor at it and prunes
// that QR's entries older than pruneBefore.
func (q *Queries) AppendCallLog(ctx context.Context, entry *models.CallLogEntry, pruneBefore time.Time) error {
	if _, err := q.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return err
	}
	if _, err := q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("last_call_log_id = ?", entry.ID).
		Set("updated_at = ?", entry.At).
		Where("id = ?", entry.QRID).
		Exec(ctx); err != nil {
		return err
	}
	if pruneBefore.IsZero() {
		return nil
	}
	_, err := q.db.NewDelete().Model((*models.CallLogEntry)(nil)).
		Where("qr_id = ?", entry.QRID).
		Where("at < ?", pruneBefore).
		Where("id <> ?", entry.ID).
		Exec(ctx)
	return err
}

// ClaimCallLog flips an unanswered entry to connected. Zero rows means a
// concurrent inbound leg claimed it first.
func (q *Queries) ClaimCallLog(ctx context.Context, id int64, from string, now time.Time) (int64, error) {
	n, err := affected(q.db.NewUpdate().Model((*models.CallLogEntry)(nil)).
		Set("connected = ?", true).
		Set("from_number = ?", nullable(from)).
		Where("id = ?", id).
		Where("connected = ?", false).
		Exec(ctx))
	if err != nil || n == 0 {
		return n, err
	}
	claimed := q.db.NewSelect().Model((*models.CallLogEntry)(nil)).
		ColumnExpr("cl.qr_id").
		Where("cl.id = ?", id)
	_, err = q.db.NewUpdate().Model((*models.QR)(nil)).
		Set("updated_at = ?", now).
		Where("id IN (?)", claimed).
		Exec(ctx)
	return n, err
}

// FindVoiceQRBySuffix returns the most recently updated voice-enabled QR
// with a registered phone whose serial ends in suffix, or nil.
func (q *Queries) FindVoiceQRBySuffix(ctx context.Context, suffix string) (*models.QR, error) {
	var qr models.QR
	err := q.db.NewSelect().Model(&qr).
		Where("qr.serial_number LIKE ?", "%"+suffix).
		Where("qr.voice_calls_allowed = ?", true).
		Where("qr.customer_phone IS NOT NULL").
		Where("qr.customer_phone <> ''").
		Order("qr.updated_at DESC").
		Limit(1).
		Scan(ctx)
	return optional(&qr, err)
}

func (q *Queries) ListVoiceQRIDsByPhone(ctx context.Context, phone string) ([]string, error) {
	var ids []string
	err := q.db.NewSelect().Model((*models.QR)(nil)).
		ColumnExpr("qr.id").
		Where("qr.customer_phone = ?", phone).
		Where("qr.voice_calls_allowed = ?", true).
		Scan(ctx, &ids)
	return ids, err
}

func (q *Queries) FindRecentConnectedCall(ctx context.Context, qrIDs []string, since time.Time, excludeFrom string) (*models.CallLogEntry, error) {
	if len(qrIDs) == 0 {
		return nil, nil
	}
	var entry models.CallLogEntry
	query := q.db.NewSelect().Model(&entry).
		Where("cl.qr_id IN (?)", bun.In(qrIDs)).
		Where("cl.connected = ?", true).
		Where("cl.at >= ?", since).
		Where("cl.from_number IS NOT NULL").
		Where("cl.from_number <> ''")
	if excludeFrom != "" {
		query = query.Where("cl.from_number <> ?", excludeFrom)
	}
	err := query.Order("cl.at DESC", "cl.id DESC").Limit(1).Scan(ctx)
	return optional(&entry, err)
}

// ListActiveWindowCandidates returns unanswered entries newer than since on
// voice-enabled QRs with a registered phone, newest first.
func (q *Queries) ListActiveWindowCandidates(ctx context.Context, since time.Time, limit int) ([]*models.CallLogEntry, error) {
	entries := []*models.CallLogEntry{}
	query := q.db.NewSelect().Model(&entries).
		Join("JOIN qrs AS qr ON qr.id = cl.qr_id").
		Where("cl.connected = ?", false).
		Where("cl.at >= ?", since).
		Where("qr.voice_calls_allowed = ?", true).
		Where("qr.customer_phone IS NOT NULL").
		Where("qr.customer_phone <> ''").
		Order("cl.at DESC", "cl.id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(ctx)
	return entries, err
}

// LatestConnectedQR is the fallback target: the most recently updated
// voice-enabled QR whose newest call entry connected with a known caller.
func (q *Queries) LatestConnectedQR(ctx context.Context) (*models.QR, error) {
	var qr models.QR
	err := q.db.NewSelect().Model(&qr).
		Join("JOIN call_logs AS cl ON cl.id = qr.last_call_log_id").
		Where("cl.connected = ?", true).
		Where("cl.from_number IS NOT NULL").
		Where("cl.from_number <> ''").
		Where("qr.voice_calls_allowed = ?", true).
		Where("qr.customer_phone IS NOT NULL").
		Where("qr.customer_phone <> ''").
		Order("qr.updated_at DESC", "cl.at DESC").
		Limit(1).
		Scan(ctx)
	return optional(&qr, err)
}

func (q *Queries) ListCallLogs(ctx context.Context, qrID string) ([]*models.CallLogEntry, error) {
	entries := []*models.CallLogEntry{}
	err := q.db.NewSelect().Model(&entries).
		Where("cl.qr_id = ?", qrID).
		Order("cl.at ASC", "cl.id ASC").
		Scan(ctx)
	return entries, err
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
