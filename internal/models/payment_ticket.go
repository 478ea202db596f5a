package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending  TicketStatus = "PENDING"
	TicketApproved TicketStatus = "APPROVED"
	TicketRejected TicketStatus = "REJECTED"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentUPI          PaymentMethod = "UPI"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCheque       PaymentMethod = "CHEQUE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentUPI, PaymentBankTransfer, PaymentCheque:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

type PaymentTicket struct {
	bun.BaseModel `bun:"table:payment_tickets,alias:pt"`

	TicketID        string          `bun:"ticket_id,pk" json:"ticket_id"`
	SalespersonRef  string          `bun:"salesperson_ref,notnull" json:"salesperson_ref"`
	CustomerName    string          `bun:"customer_name,notnull" json:"customer_name"`
	CustomerPhone   string          `bun:"customer_phone,notnull" json:"customer_phone"`
	CustomerEmail   string          `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	QRIDs           []string        `bun:"qr_ids,notnull" json:"qr_ids"`
	BundleID        string          `bun:"bundle_id,notnull" json:"bundle_id"`
	Amount          decimal.Decimal `bun:"amount,notnull" json:"amount"`
	PaymentMethod   PaymentMethod   `bun:"payment_method,notnull" json:"payment_method"`
	PaymentProofRef string          `bun:"payment_proof_ref,nullzero" json:"payment_proof_ref,omitempty"`
	Status          TicketStatus    `bun:"status,notnull" json:"status"`
	AdminNotes      string          `bun:"admin_notes,nullzero" json:"admin_notes,omitempty"`
	ApprovedAt      time.Time       `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *PaymentTicket) Customer() Customer {
	return Customer{Name: t.CustomerName, Phone: t.CustomerPhone, Email: t.CustomerEmail}
}

type TicketFilter struct {
	Status         TicketStatus
	SalespersonRef string
	Limit          int
}
