package verify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrymomot/credvault/internal/domain"
	"github.com/dmitrymomot/credvault/internal/trust"
)

// SignatureVerifier is the subset of *trust.Store a JWT-VC verifier depends
// on, narrowed to ease testing with a stub.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, token, issuer string) (trust.SignatureStatus, error)
}

// jwtvcHeader is the unverified JOSE header, decoded before signature checks
// solely to discover structure — it carries no trust decision on its own.
type jwtvcHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// jwtvcClaims is the subset of the JWT-VC payload the vault cares about. The
// credential's own amount/currency live in a freeform "amount_limit" claim,
// parsed by the lifecycle coordinator rather than here.
type jwtvcClaims struct {
	Issuer    string         `json:"iss"`
	Subject   string         `json:"sub"`
	IssuedAt  *int64         `json:"iat"`
	ExpiresAt *int64         `json:"exp"`
	Scope     map[string]any `json:"scope"`
	AmountLim string         `json:"amount_limit"`
}

// JWTVCVerifier verifies W3C-style JWT verifiable credentials: a compact JWS
// whose payload carries the standard claim set plus a scope and amount
// limit.
type JWTVCVerifier struct {
	trust SignatureVerifier
	now   func() time.Time
}

// NewJWTVCVerifier builds a verifier backed by trust for signature checks.
func NewJWTVCVerifier(t SignatureVerifier) *JWTVCVerifier {
	return &JWTVCVerifier{trust: t, now: time.Now}
}

// VerifyOptions carries caller-supplied constraints a verifier enforces in
// addition to the protocol's own rules.
type VerifyOptions struct {
	// ExpectedScope, when non-nil, is compared for equality against the
	// credential's own scope claim.
	ExpectedScope map[string]any
}

// Verify runs the ordered JWT-VC verification steps against a compact JWS
// token, short-circuiting on the first failure.
func (v *JWTVCVerifier) Verify(ctx context.Context, token string, opts VerifyOptions) domain.VerificationResult {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return invalidFormat("token must have exactly three dot-separated segments")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return invalidFormat("header is not valid base64url")
	}
	var h jwtvcHeader
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return invalidFormat("header is not valid JSON")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return invalidFormat("payload is not valid base64url")
	}
	var raw map[string]any
	if err := json.Unmarshal(payloadBytes, &raw); err != nil {
		return invalidFormat("payload is not valid JSON")
	}

	var missing []string
	for _, claim := range []string{"iss", "sub", "iat", "exp"} {
		if _, ok := raw[claim]; !ok {
			missing = append(missing, claim)
		}
	}
	if len(missing) > 0 {
		return domain.VerificationResult{
			Status:  domain.VerificationMissingRequiredField,
			Reason:  "missing required claims: " + strings.Join(missing, ", "),
			Details: map[string]any{"missing_claims": missing},
		}
	}

	var claims jwtvcClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return invalidFormat("payload does not match expected claim types")
	}

	status, err := v.trust.VerifySignature(ctx, token, claims.Issuer)
	if err != nil || status == trust.SignatureIssuerNotTrusted {
		detail := map[string]any{}
		if err != nil {
			detail["error"] = err.Error()
		}
		return domain.VerificationResult{
			Status:  domain.VerificationIssuerUnknown,
			Reason:  "issuer is not trusted",
			Issuer:  claims.Issuer,
			Subject: claims.Subject,
			Details: detail,
		}
	}
	if status != trust.SignatureValid {
		return domain.VerificationResult{
			Status:  domain.VerificationSigInvalid,
			Reason:  "signature verification failed",
			Issuer:  claims.Issuer,
			Subject: claims.Subject,
		}
	}

	expiresAt := time.Unix(*claims.ExpiresAt, 0).UTC()
	if !expiresAt.After(v.now()) {
		return domain.VerificationResult{
			Status:    domain.VerificationExpired,
			Reason:    "credential has expired",
			Issuer:    claims.Issuer,
			Subject:   claims.Subject,
			ExpiresAt: &expiresAt,
			Scope:     claims.Scope,
		}
	}

	if opts.ExpectedScope != nil && !scopeEquals(claims.Scope, opts.ExpectedScope) {
		return domain.VerificationResult{
			Status:    domain.VerificationScopeInvalid,
			Reason:    "credential scope does not match expected scope",
			Issuer:    claims.Issuer,
			Subject:   claims.Subject,
			ExpiresAt: &expiresAt,
			Scope:     claims.Scope,
		}
	}

	return domain.VerificationResult{
		Status:     domain.VerificationValid,
		Reason:     "verified",
		Issuer:     claims.Issuer,
		Subject:    claims.Subject,
		AmountText: claims.AmountLim,
		ExpiresAt:  &expiresAt,
		Scope:      claims.Scope,
	}
}

func scopeEquals(a, b map[string]any) bool {
	return reflect.DeepEqual(a, b)
}

func invalidFormat(reason string) domain.VerificationResult {
	return domain.VerificationResult{
		Status: domain.VerificationInvalidFormat,
		Reason: reason,
	}
}
