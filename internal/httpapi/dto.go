package httpapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/store"
	"github.com/dmitrymomot/credvault/internal/verify"
)

// createAuthorizationRequest is the POST /authorizations body.
type createAuthorizationRequest struct {
	Protocol      domain.Protocol        `json:"protocol" validate:"required,oneof=JWT-VC DelegatedToken"`
	TenantID      string                 `json:"tenant_id" validate:"required"`
	RetentionDays int                    `json:"retention_days" validate:"gte=0,lte=365"`
	Payload       json.RawMessage        `json:"payload" validate:"required"`
	ExpectedScope map[string]any         `json:"expected_scope,omitempty"`
}

// authorizationResponse is the JSON shape returned for every authorization
// the API surfaces, independent of internal field layout.
type authorizationResponse struct {
	ID                  uuid.UUID          `json:"id"`
	TenantID            string             `json:"tenant_id"`
	Protocol            domain.Protocol    `json:"protocol"`
	Issuer              string             `json:"issuer"`
	Subject             string             `json:"subject"`
	Scope               map[string]any     `json:"scope,omitempty"`
	AmountLimit         *domain.Money      `json:"amount_limit,omitempty"`
	Currency            string             `json:"currency,omitempty"`
	ExpiresAt           time.Time          `json:"expires_at"`
	Status              domain.Status      `json:"status"`
	VerificationStatus  domain.VerificationStatus `json:"verification_status"`
	VerificationReason  string             `json:"verification_reason,omitempty"`
	VerifiedAt          time.Time          `json:"verified_at"`
	RetentionDays       int                `json:"retention_days"`
	SoftDeleteAt        *time.Time         `json:"soft_delete_at,omitempty"`
	RevokedAt           *time.Time         `json:"revoked_at,omitempty"`
	RevokedReason       string             `json:"revoked_reason,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func toAuthorizationResponse(a domain.Authorization) authorizationResponse {
	return authorizationResponse{
		ID:                 a.ID,
		TenantID:           a.TenantID,
		Protocol:           a.Protocol,
		Issuer:             a.Issuer,
		Subject:            a.Subject,
		Scope:              a.Scope,
		AmountLimit:        a.AmountLimit,
		Currency:           a.Currency,
		ExpiresAt:          a.ExpiresAt,
		Status:             a.EffectiveStatus(time.Now()),
		VerificationStatus: a.VerificationStatus,
		VerificationReason: a.VerificationReason,
		VerifiedAt:         a.VerifiedAt,
		RetentionDays:      a.RetentionDays,
		SoftDeleteAt:       a.SoftDeleteAt,
		RevokedAt:          a.RevokedAt,
		RevokedReason:      a.RevokedReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func (req createAuthorizationRequest) toEnvelope() verify.CredentialEnvelope {
	env := verify.CredentialEnvelope{Protocol: req.Protocol, ExpectedScope: req.ExpectedScope}
	if req.Protocol == domain.ProtocolJWTVC {
		env.VCJWT = req.vcJWT()
	} else {
		env.Payload = req.Payload
	}
	return env
}

// vcJWT unwraps the compact JWS string from the request's JSON payload field.
func (req createAuthorizationRequest) vcJWT() string {
	var vcJWT string
	_ = json.Unmarshal(req.Payload, &vcJWT)
	return vcJWT
}

// rawPayload returns the exact bytes stored verbatim on the Authorization
// row: the bare compact JWS for JWT-VC (not JSON-quoted), or the JSON object
// bytes as submitted for DelegatedToken.
func (req createAuthorizationRequest) rawPayload() []byte {
	if req.Protocol == domain.ProtocolJWTVC {
		return []byte(req.vcJWT())
	}
	return req.Payload
}

// searchRequest mirrors store.Filter for the wire, using string/pointer
// fields so zero values are distinguishable from "not set".
type searchRequest struct {
	TenantID       string  `json:"tenant_id,omitempty"`
	Protocol       *string `json:"protocol,omitempty"`
	Issuer         *string `json:"issuer,omitempty"`
	Subject        *string `json:"subject,omitempty"`
	Status         *string `json:"status,omitempty"`
	Currency       *string `json:"currency,omitempty"`
	ScopeMerchant  *string `json:"scope_merchant,omitempty"`
	ScopeCategory  *string `json:"scope_category,omitempty"`
	ScopeItem      *string `json:"scope_item,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
	Limit          int     `json:"limit,omitempty" validate:"lte=1000"`
	Offset         int     `json:"offset,omitempty"`
	SortBy         string  `json:"sort_by,omitempty"`
	SortDir        string  `json:"sort_dir,omitempty"`
}

func (req searchRequest) toFilter(tenantID string, isAdmin bool) store.Filter {
	f := store.Filter{
		TenantID:       tenantID,
		IsAdmin:        isAdmin,
		Issuer:         req.Issuer,
		Subject:        req.Subject,
		Currency:       req.Currency,
		ScopeMerchant:  req.ScopeMerchant,
		ScopeCategory:  req.ScopeCategory,
		ScopeItem:      req.ScopeItem,
		IncludeDeleted: req.IncludeDeleted,
		Limit:          req.Limit,
		Offset:         req.Offset,
		SortBy:         store.SortField(req.SortBy),
		SortDir:        store.SortDirection(req.SortDir),
	}
	if req.Protocol != nil {
		p := domain.Protocol(*req.Protocol)
		f.Protocol = &p
	}
	if req.Status != nil {
		s := domain.Status(*req.Status)
		f.Status = &s
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	return f
}

type searchResponse struct {
	Items      []authorizationResponse `json:"items"`
	TotalCount int                     `json:"total_count"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type webhookEnvelopeRequest struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
