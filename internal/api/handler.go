// Package api binds the inventory, sale, approval and routing services to
// HTTP with chi. Errors are rendered from the typed taxonomy.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ms-qrinventory/internal/apperr"
	"ms-qrinventory/internal/auth"
	"ms-qrinventory/internal/inventory"
	"ms-qrinventory/internal/logger"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/routing"
	"ms-qrinventory/internal/sales"
	"ms-qrinventory/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type InventoryService interface {
	CreateBundle(ctx context.Context, in inventory.CreateBundleInput) (*models.Bundle, error)
	AssignBundle(ctx context.Context, bundleID, agentRef string, delivery models.DeliveryType) (*models.Bundle, error)
	TransferBundle(ctx context.Context, bundleID, fromAgent, toAgent string) (*models.Bundle, error)
	GetBundle(ctx context.Context, bundleID string) (*models.Bundle, error)
	ListBundles(ctx context.Context, filter models.BundleFilter) ([]*models.Bundle, error)
	ListBundleQRs(ctx context.Context, bundleID string) ([]*models.QR, error)
	AgentInventory(ctx context.Context, agentRef string) (models.Inventory, error)
	BundleInventory(ctx context.Context, bundleID string) (models.Inventory, error)
	RegisterAgent(ctx context.Context, in inventory.RegisterAgentInput) (*models.Agent, error)
	SetAgentActive(ctx context.Context, agentRef string, active bool) (*models.Agent, error)
	GetAgent(ctx context.Context, agentRef string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
}

type SalesService interface {
	SellQRDirect(ctx context.Context, qrID, agentRef string, customer models.Customer) (*models.QR, error)
	CreatePaymentTicket(ctx context.Context, in sales.CreateTicketInput) (*models.PaymentTicket, error)
	ActivateQR(ctx context.Context, serial string, customer models.Customer) (*models.QR, error)
	UpdateContactPreferences(ctx context.Context, qrID, ownerRef string, prefs models.ContactPreferences) (*models.QR, error)
	GetQR(ctx context.Context, qrID string) (*models.QR, error)
	GetQRBySerial(ctx context.Context, serial string) (*models.QR, error)
	ScanQR(ctx context.Context, token string) (*models.QR, error)
}

type ApprovalService interface {
	DecideTicket(ctx context.Context, ticketID string, decision models.Decision, notes string) (*models.PaymentTicket, error)
	GetTicket(ctx context.Context, ticketID string) (*models.PaymentTicket, error)
	ListTickets(ctx context.Context, filter models.TicketFilter) ([]*models.PaymentTicket, error)
}

type CallRouter interface {
	ResolveInboundCall(ctx context.Context, did, from, suffix string) (routing.Result, error)
	RecordOutboundCallAttempt(ctx context.Context, qrID string) (*models.CallLogEntry, error)
	CallHistory(ctx context.Context, qrID string) ([]*models.CallLogEntry, error)
}

type Handler struct {
	Inventory InventoryService
	Sales     SalesService
	Approval  ApprovalService
	Calls     CallRouter
	Logger    *logger.Logger
	// AdminRole gates agent management, bundle creation, assignment,
	// transfer and ticket decisions. Empty disables the check.
	AdminRole string
}

// Routes builds the router. authMW guards every route except the health
// check, the telephony webhook and the customer-facing activation and scan.
func (h *Handler) Routes(authMW func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/calls/inbound", h.ResolveInboundCall)
		r.Post("/qrs/activate/{serial}", h.ActivateQR)
		r.Get("/qrs/scan", h.ScanQR)
		r.Get("/qrs/serial/{serial}", h.GetQRBySerial)

		r.Group(func(r chi.Router) {
			if authMW != nil {
				r.Use(authMW)
			}

			r.Group(func(r chi.Router) {
				if h.AdminRole != "" {
					r.Use(auth.RequireRole(h.AdminRole, h.Logger))
				}
				r.Post("/agents", h.RegisterAgent)
				r.Put("/agents/{agentId}/active", h.SetAgentActive)
				r.Post("/bundles", h.CreateBundle)
				r.Post("/bundles/{bundleId}/assign", h.AssignBundle)
				r.Post("/bundles/{bundleId}/transfer", h.TransferBundle)
				r.Post("/tickets/{ticketId}/decision", h.DecideTicket)
			})

			r.Get("/agents", h.ListAgents)
			r.Get("/agents/{agentId}", h.GetAgent)
			r.Get("/agents/{agentId}/inventory", h.AgentInventory)

			r.Get("/bundles", h.ListBundles)
			r.Get("/bundles/{bundleId}", h.GetBundle)
			r.Get("/bundles/{bundleId}/qrs", h.ListBundleQRs)
			r.Get("/bundles/{bundleId}/inventory", h.BundleInventory)

			r.Get("/qrs/{qrId}", h.GetQR)
			r.Post("/qrs/{qrId}/sell", h.SellQRDirect)
			r.Put("/qrs/{qrId}/preferences", h.UpdatePreferences)
			r.Post("/qrs/{qrId}/outbound-call", h.RecordOutboundCall)
			r.Get("/qrs/{qrId}/calls", h.CallHistory)

			r.Post("/tickets", h.CreateTicket)
			r.Get("/tickets", h.ListTickets)
			r.Get("/tickets/{ticketId}", h.GetTicket)
		})
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.Logger.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), time.Since(start).String())
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, utils.SuccessResponse(message, data))
}

// writeError renders typed errors with their status and offending ids.
// Anything untyped is logged and reported as an internal error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	typed := apperr.As(err)
	if typed == nil {
		h.Logger.Error("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		meta := apperr.MetadataFor(apperr.CodeInternal)
		writeJSON(w, meta.HTTPStatus, utils.TypedErrorResponse(meta.PublicMessage, "",
			string(apperr.CodeInternal), "", nil))
		return
	}
	meta := apperr.MetadataFor(typed.Code())
	if meta.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	writeJSON(w, meta.HTTPStatus, utils.TypedErrorResponse(typed.Message(), meta.PublicMessage,
		string(typed.Code()), string(typed.Reason()), typed.IDs()))
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, apperr.ReasonInvalidField, err, "invalid request body")
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(apperr.ReasonInvalidField, key+" must be a non-negative integer").WithIDs(key)
	}
	return n, nil
}
