package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/audit"
	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/trust"
	"github.com/dmitrymomot/credvault/internal/webhookengine"
)

// AdminHandlers groups the supplemented operator-facing routes: trust store
// issuer management, webhook subscription CRUD, and the raw audit trail —
// none of which spec.md's §6 gives a transport, but all of which §6 itself
// describes as "the subset that bounds the core".
type AdminHandlers struct {
	trust   *trust.Store
	subs    *webhookengine.SubscriptionManager
	audit   audit.Writer
}

// NewAdminHandlers builds an AdminHandlers bundle.
func NewAdminHandlers(trustStore *trust.Store, subs *webhookengine.SubscriptionManager, auditWriter audit.Writer) *AdminHandlers {
	return &AdminHandlers{trust: trustStore, subs: subs, audit: auditWriter}
}

type registerIssuerRequest struct {
	Issuer string      `json:"issuer" validate:"required"`
	Keys   []trust.JWK `json:"keys" validate:"required,min=1"`
}

// RegisterIssuer handles POST /admin/issuers.
func (h *AdminHandlers) RegisterIssuer(w http.ResponseWriter, r *http.Request) {
	var req registerIssuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Issuer == "" || len(req.Keys) == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "issuer and at least one key are required")
		return
	}
	if err := h.trust.RegisterIssuer(req.Issuer, req.Keys); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"issuer": req.Issuer})
}

// RemoveIssuer handles DELETE /admin/issuers/{issuer}.
func (h *AdminHandlers) RemoveIssuer(w http.ResponseWriter, r *http.Request) {
	issuer := chi.URLParam(r, "issuer")
	h.trust.RemoveIssuer(issuer)
	w.WriteHeader(http.StatusNoContent)
}

// ListIssuers handles GET /admin/issuers.
func (h *AdminHandlers) ListIssuers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.trust.Status())
}

type createSubscriptionRequest struct {
	TenantID  string                     `json:"tenant_id" validate:"required"`
	Name      string                     `json:"name" validate:"required"`
	TargetURL string                     `json:"target_url" validate:"required,url"`
	Events    []domain.WebhookEventType  `json:"events" validate:"required,min=1"`
	Secret    string                     `json:"secret"`
	Retry     *domain.RetryPolicy        `json:"retry,omitempty"`
}

// CreateSubscription handles POST /webhook-subscriptions.
func (h *AdminHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "malformed request body")
		return
	}

	tenantID, crossTenant := resolveTenant(principal, req.TenantID)
	if crossTenant {
		writeError(w, r, http.StatusForbidden, "CROSS_TENANT", "cannot create subscriptions for another tenant")
		return
	}

	sub := h.subs.Create(r.Context(), webhookengine.CreateSubscriptionInput{
		TenantID: tenantID, Name: req.Name, TargetURL: req.TargetURL,
		Events: req.Events, Secret: req.Secret, Retry: req.Retry,
	})
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /webhook-subscriptions.
func (h *AdminHandlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	tenantID, crossTenant := resolveTenant(principal, r.URL.Query().Get("tenant_id"))
	if crossTenant {
		writeError(w, r, http.StatusForbidden, "CROSS_TENANT", "cannot list another tenant's subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, h.subs.List(r.Context(), tenantID))
}

// DeactivateSubscription handles PATCH /webhook-subscriptions/{id}.
func (h *AdminHandlers) DeactivateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "invalid subscription id")
		return
	}
	if err := h.subs.Deactivate(r.Context(), id); err != nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSubscription handles DELETE /webhook-subscriptions/{id}.
func (h *AdminHandlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "invalid subscription id")
		return
	}
	h.subs.Delete(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// AuditTrail handles GET /authorizations/{id}/audit: the raw event list,
// separate from the evidence pack which bundles the same trail into an
// archive.
func (h *AdminHandlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "invalid authorization id")
		return
	}
	tenantID, ok := scopeOrTenantParam(w, r, principal)
	if !ok {
		return
	}

	trail, err := h.audit.Trail(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load audit trail")
		return
	}
	if _, err := h.audit.LogEvent(r.Context(), tenantID, &id, domain.EventRead, nil); err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to audit trail read")
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset > len(trail) {
		offset = len(trail)
	}
	end := offset + limit
	if end > len(trail) {
		end = len(trail)
	}

	writeJSON(w, http.StatusOK, auditTrailResponse{Items: trail[offset:end], TotalCount: len(trail)})
}

type auditTrailResponse struct {
	Items      []domain.AuditEvent `json:"items"`
	TotalCount int                 `json:"total_count"`
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
