package api

import (
	"net/http"

	"ms-qrinventory/internal/auth"
	"ms-qrinventory/internal/inventory"
	"ms-qrinventory/internal/models"
	"ms-qrinventory/internal/validation"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createBundleRequest struct {
	QRTypeID   string          `json:"qr_type_id"`
	Count      int             `json:"count"`
	PricePerQR decimal.Decimal `json:"price_per_qr"`
}

type assignBundleRequest struct {
	AgentID      string              `json:"agent_id" validate:"required"`
	DeliveryType models.DeliveryType `json:"delivery_type" validate:"required,oneof=DIGITAL PHYSICAL"`
}

type transferBundleRequest struct {
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id" validate:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) CreateBundle(w http.ResponseWriter, r *http.Request) {
	var req createBundleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	bundle, err := h.Inventory.CreateBundle(r.Context(), inventory.CreateBundleInput{
		QRTypeID:   req.QRTypeID,
		Count:      req.Count,
		PricePerQR: req.PricePerQR,
		Issuer:     auth.UserID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "bundle created", bundle)
}

func (h *Handler) ListBundles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	bundles, err := h.Inventory.ListBundles(r.Context(), models.BundleFilter{
		Status:     models.BundleStatus(q.Get("status")),
		AssignedTo: q.Get("assigned_to"),
		Limit:      limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundles", bundles)
}

func (h *Handler) GetBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.Inventory.GetBundle(r.Context(), chi.URLParam(r, "bundleId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundle", bundle)
}

func (h *Handler) ListBundleQRs(w http.ResponseWriter, r *http.Request) {
	qrs, err := h.Inventory.ListBundleQRs(r.Context(), chi.URLParam(r, "bundleId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundle qrs", qrs)
}

func (h *Handler) BundleInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Inventory.BundleInventory(r.Context(), chi.URLParam(r, "bundleId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundle inventory", inv)
}

func (h *Handler) AssignBundle(w http.ResponseWriter, r *http.Request) {
	var req assignBundleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	bundle, err := h.Inventory.AssignBundle(r.Context(), chi.URLParam(r, "bundleId"), req.AgentID, req.DeliveryType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundle assigned", bundle)
}

func (h *Handler) TransferBundle(w http.ResponseWriter, r *http.Request) {
	var req transferBundleRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	bundle, err := h.Inventory.TransferBundle(r.Context(), chi.URLParam(r, "bundleId"), req.FromAgentID, req.ToAgentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "bundle transferred", bundle)
}

func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req inventory.RegisterAgentInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	agent, err := h.Inventory.RegisterAgent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "agent registered", agent)
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Inventory.ListAgents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "agents", agents)
}

func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Inventory.GetAgent(r.Context(), agentParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "agent", agent)
}

func (h *Handler) SetAgentActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}
	agent, err := h.Inventory.SetAgentActive(r.Context(), agentParam(r), *req.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "agent updated", agent)
}

func (h *Handler) AgentInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Inventory.AgentInventory(r.Context(), agentParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "agent inventory", inv)
}

// agentParam resolves the "me" alias to the authenticated caller.
func agentParam(r *http.Request) string {
	id := chi.URLParam(r, "agentId")
	if id == "me" {
		return auth.UserID(r.Context())
	}
	return id
}
