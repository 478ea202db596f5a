package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Agent struct {
	bun.BaseModel `bun:"table:agents,alias:a"`

	ID           string    `bun:"id,pk" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Phone        string    `bun:"phone,nullzero" json:"phone,omitempty"`
	Active       bool      `bun:"active,notnull" json:"active"`
	TotalQRsSold int       `bun:"total_qrs_sold,notnull" json:"total_qrs_sold"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// QRStateCounts maps each lifecycle state to the number of QRs in it.
type QRStateCounts map[QRState]int

func (c QRStateCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Inventory is derived from QR and bundle state on every read.
type Inventory struct {
	AgentID          string `json:"agent_id,omitempty"`
	BundleID         string `json:"bundle_id,omitempty"`
	BundlesAssigned  int    `json:"bundles_assigned"`
	TotalQRsAssigned int    `json:"total_qrs_assigned"`
	AvailableQRs     int    `json:"available_qrs"`
	SoldQRs          int    `json:"sold_qrs"`
	PendingQRs       int    `json:"pending_qrs"`
	RejectedQRs      int    `json:"rejected_qrs"`
	TotalQRsSold     int    `json:"total_qrs_sold"`
}

func NewInventory(counts QRStateCounts) Inventory {
	return Inventory{
		TotalQRsAssigned: counts.Total(),
		AvailableQRs:     counts[QRStateUnsold],
		SoldQRs:          counts[QRStateSoldActive] + counts[QRStateSoldPendingActivation],
		PendingQRs:       counts[QRStateReserved],
		RejectedQRs:      counts[QRStateRejected],
	}
}
