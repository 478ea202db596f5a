package api

import (
	"net/http"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/auth"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/sales"
	"ms-qrinventory/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type sellRequest struct {
	Customer models.Customer `json:"customer"`
}

type createTicketRequest struct {
	Customer        models.Customer      `json:"customer"`
	QRIDs           []string             `json:"qr_ids"`
	BundleID        string               `json:"bundle_id"`
	Amount          decimal.Decimal      `json:"amount"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	PaymentProofRef string               `json:"payment_proof_ref"`
}

type decisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Notes    string          `json:"notes"`
}

func (h *Handler) GetQR(w http.ResponseWriter, r *http.Request) {
	qr, err := h.Sales.GetQR(r.Context(), chi.URLParam(r, "qrId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "qr", qr)
}

func (h *Handler) GetQRBySerial(w http.ResponseWriter, r *http.Request) {
	qr, err := h.Sales.GetQRBySerial(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "qr", publicView(qr))
}

func (h *Handler) ScanQR(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("t")
	if token == "" {
		h.writeError(w, r, apperr.Validation(apperr.ReasonMissingField, "t is required").WithIDs("t"))
		return
	}
	qr, err := h.Sales.ScanQR(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "qr", publicView(qr))
}

func (h *Handler) SellQRDirect(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	qr, err := h.Sales.SellQRDirect(r.Context(), chi.URLParam(r, "qrId"), auth.UserID(r.Context()), req.Customer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "qr sold", qr)
}

func (h *Handler) ActivateQR(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := decode(r, &customer); err != nil {
		h.writeError(w, r, err)
		return
	}
	qr, err := h.Sales.ActivateQR(r.Context(), chi.URLParam(r, "serial"), customer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "qr activated", qr)
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.ContactPreferences
	if err := decode(r, &prefs); err != nil {
		h.writeError(w, r, err)
		return
	}
	qr, err := h.Sales.UpdateContactPreferences(r.Context(), chi.URLParam(r, "qrId"), auth.UserID(r.Context()), prefs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "preferences updated", qr)
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ticket, err := h.Sales.CreatePaymentTicket(r.Context(), sales.CreateTicketInput{
		AgentRef:        auth.UserID(r.Context()),
		Customer:        req.Customer,
		QRIDs:           req.QRIDs,
		BundleID:        req.BundleID,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PaymentProofRef: req.PaymentProofRef,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "payment ticket created", ticket)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	tickets, err := h.Approval.ListTickets(r.Context(), models.TicketFilter{
		Status:         models.TicketStatus(q.Get("status")),
		SalespersonRef: q.Get("agent"),
		Limit:          limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "payment tickets", tickets)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Approval.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "payment ticket", ticket)
}

func (h *Handler) DecideTicket(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ticket, err := h.Approval.DecideTicket(r.Context(), chi.URLParam(r, "ticketId"), req.Decision, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "payment ticket decided", ticket)
}

// publicView hides owner contact details from unauthenticated lookups.
func publicView(qr *models.QR) map[string]interface{} {
	return map[string]interface{}{
		"id":                    qr.ID,
		"serial_number":         qr.SerialNumber,
		"status":                qr.Status(),
		"is_sold":               qr.IsSold(),
		"voice_calls_allowed":   qr.VoiceCallsAllowed,
		"text_messages_allowed": qr.TextMessagesAllowed,
		"video_calls_allowed":   qr.VideoCallsAllowed,
	}
}
