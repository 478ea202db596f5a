package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CallLogEntry is one call attempt against a QR. Entries live in their own
// table keyed by QR id; the QR keeps a cursor to its newest entry.
type CallLogEntry struct {
	bun.BaseModel `bun:"table:call_logs,alias:cl"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	QRID       string    `bun:"qr_id,notnull" json:"qr_id"`
	At         time.Time `bun:"at,notnull" json:"at"`
	Connected  bool      `bun:"connected,notnull" json:"connected"`
	FromNumber string    `bun:"from_number,nullzero" json:"from,omitempty"`
}
