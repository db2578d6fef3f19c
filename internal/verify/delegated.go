package verify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// forbiddenChars mirrors the spec's identifier sanitation rule: no angle
// brackets, quotes, backslash, NUL, CR, or LF.
const forbiddenChars = "<>\"'\\\x00\r\n"

// delegatedTokenPayload is the wire shape of a delegated token submission.
type delegatedTokenPayload struct {
	TokenID     string         `json:"token_id"`
	PSPID       string         `json:"psp_id"`
	MerchantID  string         `json:"merchant_id"`
	MaxAmount   string         `json:"max_amount"`
	Currency    string         `json:"currency"`
	ExpiresAt   string         `json:"expires_at"`
	Constraints map[string]any `json:"constraints"`
}

// DelegatedTokenVerifier validates PSP-issued delegated tokens. Unlike
// JWT-VC, no signature is checked: trust is derived from the presenter's
// already-authenticated session.
type DelegatedTokenVerifier struct {
	now     func() time.Time
	enabled bool
	allowed map[string]struct{}
}

// DelegatedTokenOption configures a DelegatedTokenVerifier.
type DelegatedTokenOption func(*DelegatedTokenVerifier)

// WithDisabled turns feature.delegated_token.enabled off: every submission
// is rejected regardless of its contents, for deployments that only accept
// JWT-VC credentials.
func WithDisabled() DelegatedTokenOption {
	return func(v *DelegatedTokenVerifier) { v.enabled = false }
}

// WithPSPAllowlist restricts accepted psp_id values to allowlist. An empty
// allowlist accepts any PSP, matching feature.delegated_token.psp_allowlist's
// default of "no restriction."
func WithPSPAllowlist(allowlist []string) DelegatedTokenOption {
	return func(v *DelegatedTokenVerifier) {
		set := make(map[string]struct{}, len(allowlist))
		for _, id := range allowlist {
			set[id] = struct{}{}
		}
		v.allowed = set
	}
}

// NewDelegatedTokenVerifier builds a verifier using the real clock, enabled
// by default with no PSP restriction.
func NewDelegatedTokenVerifier(opts ...DelegatedTokenOption) *DelegatedTokenVerifier {
	v := &DelegatedTokenVerifier{now: time.Now, enabled: true}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the ordered delegated-token validation steps.
func (v *DelegatedTokenVerifier) Verify(raw []byte) domain.VerificationResult {
	if !v.enabled {
		return domain.VerificationResult{
			Status: domain.VerificationInvalidFormat,
			Reason: "delegated token protocol is disabled",
		}
	}

	var p delegatedTokenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalidFormat("payload is not a valid JSON object")
	}

	if len(v.allowed) > 0 {
		if _, ok := v.allowed[p.PSPID]; !ok {
			return domain.VerificationResult{
				Issuer:    p.PSPID,
				Status:    domain.VerificationIssuerUnknown,
				ErrorCode: "PSP_NOT_ALLOWED",
				Reason:    fmt.Sprintf("psp_id %q is not on the allowlist", p.PSPID),
			}
		}
	}

	amount, err := domain.ParseMoney(p.MaxAmount)
	if err != nil {
		return invalidFormat(fmt.Sprintf("max_amount is invalid: %v", err))
	}
	if amount <= 0 {
		return invalidFormat("max_amount must be greater than zero")
	}

	if msg := validateSchema(p); msg != "" {
		return invalidFormat(msg)
	}

	expiresAt, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return invalidFormat("expires_at is not a parseable instant")
	}

	result := domain.VerificationResult{
		Issuer:     p.PSPID,
		Subject:    p.MerchantID,
		Amount:     &amount,
		Currency:   p.Currency,
		ExpiresAt:  &expiresAt,
		AmountText: p.MaxAmount,
		Scope:      p.Constraints,
	}

	if !expiresAt.After(v.now()) {
		result.Status = domain.VerificationExpired
		result.Reason = "delegated token has expired"
		return result
	}

	if amount <= 0 {
		result.Status = domain.VerificationRevoked
		result.ErrorCode = "INVALID_LIMIT"
		result.Reason = "max_amount must be positive"
		return result
	}

	if merchant, ok := p.Constraints["merchant"]; ok {
		if merchantStr, _ := merchant.(string); merchantStr != p.MerchantID {
			result.Status = domain.VerificationScopeInvalid
			result.ErrorCode = "MERCHANT_MISMATCH"
			result.Reason = "constraints.merchant does not match merchant_id"
			return result
		}
	}

	result.Status = domain.VerificationValid
	result.Reason = "verified"
	return result
}

func validateSchema(p delegatedTokenPayload) string {
	for name, v := range map[string]string{
		"token_id":    p.TokenID,
		"psp_id":      p.PSPID,
		"merchant_id": p.MerchantID,
	} {
		if len(v) < 1 || len(v) > 255 {
			return fmt.Sprintf("%s must be 1-255 characters", name)
		}
		if strings.ContainsAny(v, forbiddenChars) {
			return fmt.Sprintf("%s contains a forbidden character", name)
		}
	}

	if p.MaxAmount == "" {
		return "max_amount is required"
	}

	if len(p.Currency) != 3 || strings.ToUpper(p.Currency) != p.Currency {
		return "currency must be a 3-letter uppercase code"
	}
	if _, err := currency.ParseISO(p.Currency); err != nil {
		return fmt.Sprintf("currency %q is not a recognized ISO-4217 code", p.Currency)
	}

	if p.ExpiresAt == "" {
		return "expires_at is required"
	}

	return ""
}
