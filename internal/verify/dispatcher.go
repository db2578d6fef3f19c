package verify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// CredentialEnvelope is the wire envelope a create request submits: the
// protocol tag plus a protocol-specific payload. For JWT-VC the compact JWS
// lives under vc_jwt; for DelegatedToken the object fields live at the top
// level of Payload.
type CredentialEnvelope struct {
	Protocol      domain.Protocol `json:"protocol"`
	VCJWT         string          `json:"vc_jwt,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ExpectedScope map[string]any  `json:"expected_scope,omitempty"`
}

// Dispatcher selects the verifier matching a credential envelope's protocol
// tag and normalizes its output.
type Dispatcher struct {
	jwtvc      *JWTVCVerifier
	delegated  *DelegatedTokenVerifier
}

// NewDispatcher builds a Dispatcher wired to both concrete verifiers.
func NewDispatcher(jwtvc *JWTVCVerifier, delegated *DelegatedTokenVerifier) *Dispatcher {
	return &Dispatcher{jwtvc: jwtvc, delegated: delegated}
}

// Verify dispatches env to the verifier its Protocol names.
func (d *Dispatcher) Verify(ctx context.Context, env CredentialEnvelope) domain.VerificationResult {
	switch env.Protocol {
	case domain.ProtocolJWTVC:
		if env.VCJWT == "" {
			return domain.VerificationResult{
				Status: domain.VerificationMissingRequiredField,
				Reason: "missing required field: vc_jwt",
			}
		}
		return d.jwtvc.Verify(ctx, env.VCJWT, VerifyOptions{ExpectedScope: env.ExpectedScope})

	case domain.ProtocolDelegatedToken:
		if len(env.Payload) == 0 {
			return domain.VerificationResult{
				Status: domain.VerificationMissingRequiredField,
				Reason: "missing required field: payload",
			}
		}
		return d.delegated.Verify(env.Payload)

	default:
		return domain.VerificationResult{
			Status: domain.VerificationInvalidFormat,
			Reason: fmt.Sprintf("unknown protocol %q", env.Protocol),
		}
	}
}
