package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/credvault/internal/inbound"
	"github.com/dmitrymomot/credvault/internal/lifecycle"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/internal/trust"
	"github.com/dmitrymomot/credvault/internal/webhookengine"
)

// errorResponse is the uniform JSON body for every non-2xx response: a code
// and a message only, so no internal error detail reaches a client.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

// writeDomainError maps an internal error to the taxonomy in spec §7: a
// validation-shaped error becomes 400, a not-found becomes 404, anything
// unrecognized becomes a generic 500 with no internal detail leaked to the
// client. No error maps to 503: a failed upstream dependency (database,
// key fetch) falls through to the generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, webhookengine.ErrSubscriptionNotFound), errors.Is(err, inbound.ErrTokenNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, store.ErrNotSoftDeleted):
		writeError(w, r, http.StatusBadRequest, "INVALID_STATE", "authorization is not soft-deleted")
	case errors.Is(err, store.ErrLimitExceeded):
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "limit exceeds maximum of 1000")
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusBadRequest, "CONFLICT", "authorization already exists")
	case errors.Is(err, lifecycle.ErrVerificationFailed):
		writeError(w, r, http.StatusBadRequest, "VERIFICATION_FAILED", "credential verification did not succeed")
	case errors.Is(err, lifecycle.ErrTenantNotFound):
		writeError(w, r, http.StatusForbidden, "TENANT_NOT_FOUND", "tenant not found")
	case errors.Is(err, lifecycle.ErrAlreadyTerminal):
		writeError(w, r, http.StatusBadRequest, "ALREADY_TERMINAL", "authorization is soft-deleted")
	case errors.Is(err, trust.ErrIssuerUnknown), errors.Is(err, trust.ErrUnresolvableIssuer):
		writeError(w, r, http.StatusBadRequest, "ISSUER_UNKNOWN", "issuer is not trusted")
	case errors.Is(err, inbound.ErrBadSignature):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid webhook signature")
	case errors.Is(err, inbound.ErrUnsupportedEventType):
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "unsupported event type")
	default:
		log.ErrorContext(r.Context(), "httpapi: unhandled error", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "an unexpected error occurred")
	}
}
