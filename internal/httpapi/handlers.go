package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/evidence"
	"github.com/dmitrymomot/credvault/internal/inbound"
	"github.com/dmitrymomot/credvault/internal/lifecycle"
	"github.com/dmitrymomot/credvault/internal/store"
)

// Handlers groups every route's dependencies. Constructed once at startup
// and wired into the router in router.go.
type Handlers struct {
	coordinator *lifecycle.Coordinator
	store       store.Store
	evidence    *evidence.Builder
	evidenceS3  *evidence.S3Uploader
	inbound     *inbound.Receiver
	metrics     *Metrics
	log         *slog.Logger
	validate    *validator.Validate
}

// NewHandlers builds a Handlers bundle.
func NewHandlers(coordinator *lifecycle.Coordinator, st store.Store, evidenceBuilder *evidence.Builder, receiver *inbound.Receiver, metrics *Metrics, log *slog.Logger) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		store:       st,
		evidence:    evidenceBuilder,
		inbound:     receiver,
		metrics:     metrics,
		log:         log,
		validate:    validator.New(),
	}
}

// WithEvidenceS3Uploader enables best-effort S3 offload of built evidence
// packs alongside the streamed response, for deployments that also want a
// durable copy in object storage.
func (h *Handlers) WithEvidenceS3Uploader(uploader *evidence.S3Uploader) *Handlers {
	h.evidenceS3 = uploader
	return h
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// CreateAuthorization handles POST /authorizations.
func (h *Handlers) CreateAuthorization(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req createAuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}

	tenantID, crossTenant := resolveTenant(principal, req.TenantID)
	if crossTenant {
		writeError(w, r, http.StatusForbidden, "CROSS_TENANT", "cannot create authorizations for another tenant")
		return
	}

	auth, err := h.coordinator.Create(r.Context(), lifecycle.CreateInput{
		TenantID:      tenantID,
		Envelope:      req.toEnvelope(),
		RawPayload:    req.rawPayload(),
		RetentionDays: req.RetentionDays,
		CreatedBy:     principal.TenantID,
	})
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	h.metrics.VerificationOutcomes.WithLabelValues(string(auth.Protocol), string(auth.VerificationStatus)).Inc()
	writeJSON(w, http.StatusCreated, toAuthorizationResponse(auth))
}

// GetAuthorization handles GET /authorizations/{id}.
func (h *Handlers) GetAuthorization(w http.ResponseWriter, r *http.Request) {
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

	auth, err := h.coordinator.Read(r.Context(), tenantID, id)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorizationResponse(auth))
}

// VerifyAuthorization handles POST /authorizations/{id}/verify.
func (h *Handlers) VerifyAuthorization(w http.ResponseWriter, r *http.Request) {
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

	auth, err := h.coordinator.Reverify(r.Context(), tenantID, id)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	h.metrics.VerificationOutcomes.WithLabelValues(string(auth.Protocol), string(auth.VerificationStatus)).Inc()
	writeJSON(w, http.StatusOK, toAuthorizationResponse(auth))
}

// RevokeAuthorization handles DELETE /authorizations/{id}.
func (h *Handlers) RevokeAuthorization(w http.ResponseWriter, r *http.Request) {
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

	var req revokeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	auth, err := h.coordinator.Revoke(r.Context(), tenantID, id, req.Reason)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorizationResponse(auth))
}

// SearchAuthorizations handles POST /authorizations/search.
func (h *Handlers) SearchAuthorizations(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", err.Error())
		return
	}

	tenantID, crossTenant := resolveTenant(principal, req.TenantID)
	if crossTenant {
		writeError(w, r, http.StatusForbidden, "CROSS_TENANT", "cannot search another tenant's authorizations")
		return
	}

	page, err := h.store.Search(r.Context(), req.toFilter(tenantID, principal.IsAdmin()))
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}

	items := make([]authorizationResponse, len(page.Items))
	for i, a := range page.Items {
		items[i] = toAuthorizationResponse(a)
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, TotalCount: page.TotalCount})
}

// EvidencePack handles GET /authorizations/{id}/evidence-pack.
func (h *Handlers) EvidencePack(w http.ResponseWriter, r *http.Request) {
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

	archive, filename, err := h.evidence.BuildPack(r.Context(), tenantID, id)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}

	if h.evidenceS3 != nil {
		if _, err := h.evidenceS3.Upload(r.Context(), filename, archive); err != nil {
			h.log.ErrorContext(r.Context(), "httpapi: s3 evidence offload failed", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// InboundWebhook handles POST /acp/webhook.
func (h *Handlers) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("X-ACP-Signature")
	body, err := readAll(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "unreadable request body")
		return
	}

	result, err := h.inbound.Process(r.Context(), body, sig)
	if err != nil {
		writeDomainError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": result.Status})
}

// scopeOrTenantParam resolves the tenant id a single-resource operation
// should scope to. A tenant caller is always scoped to its own tenant id —
// the store has no tenant-less lookup, so an administrator must name the
// owning tenant via a ?tenant_id= query parameter; its absence is a 400,
// not a 403, since the administrator is still authorized, just missing a
// required parameter.
func scopeOrTenantParam(w http.ResponseWriter, r *http.Request, p Principal) (string, bool) {
	if !p.IsAdmin() {
		return p.TenantID, true
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_REQUIRED_FIELD", "administrator requests require a tenant_id query parameter")
		return "", false
	}
	return tenantID, true
}

func readAll(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}
