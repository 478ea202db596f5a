// Package lifecycle holds the QR and payment ticket state machines. Stores
// apply these transitions as conditional updates whose precondition is the
// source state returned by Sources.
package lifecycle

import (
	"fmt"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/models"
)

type Event string

const (
	EventReserve    Event = "reserve"
	EventDirectSale Event = "direct_sale"
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventActivate   Event = "activate"
)

var qrTransitions = map[models.QRState]map[Event]models.QRState{
	models.QRStateUnsold: {
		EventReserve:    models.QRStateReserved,
		EventDirectSale: models.QRStateSoldActive,
	},
	models.QRStateReserved: {
		EventApprove: models.QRStateSoldPendingActivation,
		EventReject:  models.QRStateRejected,
	},
	models.QRStateRejected: {
		EventReserve: models.QRStateReserved,
		EventApprove: models.QRStateSoldPendingActivation,
	},
	models.QRStateSoldPendingActivation: {
		EventActivate: models.QRStateSoldActive,
	},
}

// Next returns the state a QR moves to when ev happens in state from.
func Next(from models.QRState, ev Event) (models.QRState, error) {
	if to, ok := qrTransitions[from][ev]; ok {
		return to, nil
	}
	if ev == EventActivate {
		switch from {
		case models.QRStateReserved, models.QRStateRejected:
			return "", apperr.InvalidState(apperr.ReasonForbiddenTransition,
				"qr payment has not been approved")
		case models.QRStateUnsold:
			return "", apperr.InvalidState(apperr.ReasonForbiddenTransition,
				"qr has not been sold")
		case models.QRStateSoldActive:
			return "", apperr.InvalidState(apperr.ReasonAlreadyTerminal,
				"qr is already active")
		}
	}
	return "", apperr.InvalidState(apperr.ReasonInvalidStateTransition,
		fmt.Sprintf("qr cannot %s from %s", ev, from))
}

// Sources lists every state from which ev is legal.
func Sources(ev Event) []models.QRState {
	var states []models.QRState
	for _, from := range []models.QRState{
		models.QRStateUnsold,
		models.QRStateReserved,
		models.QRStateRejected,
		models.QRStateSoldPendingActivation,
		models.QRStateSoldActive,
	} {
		if _, ok := qrTransitions[from][ev]; ok {
			states = append(states, from)
		}
	}
	return states
}

// Available reports whether a QR may be put on a new payment ticket.
func Available(state models.QRState) bool {
	_, ok := qrTransitions[state][EventReserve]
	return ok
}

// NextTicketStatus applies an admin decision to a ticket status.
// PENDING goes to APPROVED or REJECTED, REJECTED may still be approved,
// APPROVED is terminal.
func NextTicketStatus(from models.TicketStatus, d models.Decision) (models.TicketStatus, error) {
	if d != models.DecisionApprove && d != models.DecisionReject {
		return "", apperr.Validation(apperr.ReasonInvalidField, fmt.Sprintf("unknown decision %q", d))
	}
	switch from {
	case models.TicketApproved:
		return "", apperr.InvalidState(apperr.ReasonAlreadyTerminal, "ticket is already approved")
	case models.TicketPending:
		if d == models.DecisionApprove {
			return models.TicketApproved, nil
		}
		return models.TicketRejected, nil
	case models.TicketRejected:
		if d == models.DecisionApprove {
			return models.TicketApproved, nil
		}
	}
	return "", apperr.InvalidState(apperr.ReasonInvalidStateTransition,
		fmt.Sprintf("ticket cannot %s from %s", d, from))
}

// QRSourceForTicket is the state the ticket's QRs must be in for a decision
// taken while the ticket is in status from.
func QRSourceForTicket(from models.TicketStatus) models.QRState {
	if from == models.TicketRejected {
		return models.QRStateRejected
	}
	return models.QRStateReserved
}
