package api

import (
	"net/http"

	"ms-qrinventory/internal/validation"

	"github.com/go-chi/chi/v5"
)

type inboundCallRequest struct {
	DID    string `json:"did"`
	From   string `json:"from" validate:"required"`
	Suffix string `json:"suffix" validate:"omitempty,numeric,max=10"`
}

// ResolveInboundCall is the telephony webhook. A no-match result is still
// a 200 so the provider plays the generic prompt.
func (h *Handler) ResolveInboundCall(w http.ResponseWriter, r *http.Request) {
	var req inboundCallRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Calls.ResolveInboundCall(r.Context(), req.DID, req.From, req.Suffix)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	message := "call routed"
	if res.NoMatch {
		message = "no destination"
	}
	h.respond(w, http.StatusOK, message, res)
}

func (h *Handler) RecordOutboundCall(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Calls.RecordOutboundCallAttempt(r.Context(), chi.URLParam(r, "qrId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "outbound call recorded", entry)
}

func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Calls.CallHistory(r.Context(), chi.URLParam(r, "qrId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "call history", entries)
}
