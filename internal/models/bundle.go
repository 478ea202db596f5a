package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BundleStatus string

const (
	BundleUnassigned BundleStatus = "UNASSIGNED"
	BundleAssigned   BundleStatus = "ASSIGNED"
)

type Bundle struct {
	bun.BaseModel `bun:"table:bundles,alias:b"`

	BundleID     string          `bun:"bundle_id,pk" json:"bundle_id"`
	Sequence     int64           `bun:"sequence,unique,notnull" json:"sequence"`
	QRTypeID     string          `bun:"qr_type_id,notnull" json:"qr_type_id"`
	QRCount      int             `bun:"qr_count,notnull" json:"qr_count"`
	QRIDs        []string        `bun:"qr_ids,notnull" json:"qr_ids"`
	CreatedBy    string          `bun:"created_by,notnull" json:"created_by"`
	AssignedTo   string          `bun:"assigned_to,nullzero" json:"assigned_to,omitempty"`
	DeliveryType DeliveryType    `bun:"delivery_type,nullzero" json:"delivery_type,omitempty"`
	Status       BundleStatus    `bun:"status,notnull" json:"status"`
	PricePerQR   decimal.Decimal `bun:"price_per_qr,notnull" json:"price_per_qr"`
	CreatedAt    time.Time       `bun:"created_at,notnull" json:"created_at"`
	AssignedAt   time.Time       `bun:"assigned_at,nullzero" json:"assigned_at,omitempty"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// Contains reports whether the QR id is a member of the bundle.
func (b *Bundle) Contains(qrID string) bool {
	for _, id := range b.QRIDs {
		if id == qrID {
			return true
		}
	}
	return false
}

type BundleFilter struct {
	Status     BundleStatus
	AssignedTo string
	Limit      int
}
