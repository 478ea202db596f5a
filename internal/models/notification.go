package models

import "time"

type NotificationKind string

const (
	NotifyBundleCreated  NotificationKind = "bundle.created"
	NotifyBundleAssigned NotificationKind = "bundle.assigned"
	NotifyTicketCreated  NotificationKind = "ticket.created"
	NotifyTicketDecided  NotificationKind = "ticket.decided"
	NotifyQRActivated    NotificationKind = "qr.activated"
)

// Notification is a fire-and-forget message for the delivery collaborator.
type Notification struct {
	Kind    NotificationKind  `json:"kind"`
	Targets []string          `json:"targets"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	At      time.Time         `json:"at"`
}
