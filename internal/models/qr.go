package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// QRState is the single lifecycle state of a QR. It replaces the older
// (status, isSold) pair, which is still exposed through Status and IsSold.
type QRState string

const (
	QRStateUnsold                QRState = "UNSOLD"
	QRStateReserved              QRState = "RESERVED"
	QRStateSoldPendingActivation QRState = "SOLD_PENDING_ACTIVATION"
	QRStateSoldActive            QRState = "SOLD_ACTIVE"
	QRStateRejected              QRState = "REJECTED"
)

type QRStatus string

const (
	QRStatusInactive       QRStatus = "INACTIVE"
	QRStatusPendingPayment QRStatus = "PENDING_PAYMENT"
	QRStatusActive         QRStatus = "ACTIVE"
	QRStatusRejected       QRStatus = "REJECTED"
)

type DeliveryType string

const (
	DeliveryDigital  DeliveryType = "DIGITAL"
	DeliveryPhysical DeliveryType = "PHYSICAL"
)

// OrderStatus is the fulfilment label stamped on QRs at assignment.
func (d DeliveryType) OrderStatus() string {
	if d == DeliveryDigital {
		return "delivered"
	}
	return "shipped"
}

func (d DeliveryType) Valid() bool {
	return d == DeliveryDigital || d == DeliveryPhysical
}

type QR struct {
	bun.BaseModel `bun:"table:qrs,alias:qr"`

	ID                  string       `bun:"id,pk" json:"id"`
	SerialNumber        string       `bun:"serial_number,unique,notnull" json:"serial_number"`
	BundleID            string       `bun:"bundle_id,nullzero" json:"bundle_id,omitempty"`
	State               QRState      `bun:"state,notnull" json:"state"`
	SoldByAgentRef      string       `bun:"sold_by_agent_ref,nullzero" json:"sold_by_agent_ref,omitempty"`
	OwnerRef            string       `bun:"owner_ref,nullzero" json:"owner_ref,omitempty"`
	TicketID            string       `bun:"ticket_id,nullzero" json:"ticket_id,omitempty"`
	CustomerName        string       `bun:"customer_name,nullzero" json:"customer_name,omitempty"`
	CustomerPhone       string       `bun:"customer_phone,nullzero" json:"customer_phone,omitempty"`
	CustomerEmail       string       `bun:"customer_email,nullzero" json:"customer_email,omitempty"`
	VoiceCallsAllowed   bool         `bun:"voice_calls_allowed,notnull" json:"voice_calls_allowed"`
	TextMessagesAllowed bool         `bun:"text_messages_allowed,notnull" json:"text_messages_allowed"`
	VideoCallsAllowed   bool         `bun:"video_calls_allowed,notnull" json:"video_calls_allowed"`
	DeliveryType        DeliveryType `bun:"delivery_type,nullzero" json:"delivery_type,omitempty"`
	OrderStatus         string       `bun:"order_status,nullzero" json:"order_status,omitempty"`
	ImageURL            string       `bun:"image_url,nullzero" json:"image_url,omitempty"`
	LastCallLogID       int64        `bun:"last_call_log_id,nullzero" json:"last_call_log_id,omitempty"`
	CreatedAt           time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

func (q QR) Status() QRStatus {
	switch q.State {
	case QRStateReserved:
		return QRStatusPendingPayment
	case QRStateSoldActive:
		return QRStatusActive
	case QRStateRejected:
		return QRStatusRejected
	default:
		return QRStatusInactive
	}
}

func (q QR) IsSold() bool {
	return q.State == QRStateSoldPendingActivation || q.State == QRStateSoldActive
}

func (q QR) MarshalJSON() ([]byte, error) {
	type plain QR
	return json.Marshal(struct {
		plain
		Status QRStatus `json:"status"`
		IsSold bool     `json:"is_sold"`
	}{plain: plain(q), Status: q.Status(), IsSold: q.IsSold()})
}

// Customer identifies the end customer on a sale, ticket or activation.
type Customer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required,phone_in"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// Ref is the owner reference recorded on the QR.
func (c Customer) Ref() string {
	if c.ID != "" {
		return c.ID
	}
	return "phone:" + c.Phone
}

// ContactPreferences are the owner-controlled channel switches on a QR.
type ContactPreferences struct {
	VoiceCallsAllowed   *bool `json:"voice_calls_allowed,omitempty"`
	TextMessagesAllowed *bool `json:"text_messages_allowed,omitempty"`
	VideoCallsAllowed   *bool `json:"video_calls_allowed,omitempty"`
}
