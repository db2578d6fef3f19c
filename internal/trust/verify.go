package trust

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
)

// SignatureStatus is the outcome of VerifySignature.
type SignatureStatus string

const (
	SignatureValid            SignatureStatus = "VALID"
	SignatureInvalid          SignatureStatus = "INVALID_SIGNATURE"
	SignatureIssuerNotTrusted SignatureStatus = "NOT_TRUSTED"
)

type unverifiedHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

var allowedAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
}

// VerifySignature checks the JWS signature of a compact-serialized token
// against issuer's cached key set, without evaluating expiry — a signature
// produced by a key the issuer still publishes is Valid even if the token's
// own exp claim has passed; expiry is the verifier's concern, not the trust
// store's.
func (s *Store) VerifySignature(ctx context.Context, token, issuer string) (SignatureStatus, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return SignatureInvalid, fmt.Errorf("trust: malformed compact JWS")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return SignatureInvalid, fmt.Errorf("trust: malformed header encoding: %w", err)
	}
	var h unverifiedHeader
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return SignatureInvalid, fmt.Errorf("trust: malformed header JSON: %w", err)
	}

	ks, err := s.GetKeys(ctx, issuer)
	if err != nil {
		return SignatureIssuerNotTrusted, err
	}

	jwk, ok := findKey(ks, h.Kid)
	if !ok {
		return SignatureIssuerNotTrusted, fmt.Errorf("%w: issuer=%s kid=%s", ErrKeyNotFound, issuer, h.Kid)
	}

	key, err := reconstructKey(jwk)
	if err != nil {
		return SignatureInvalid, err
	}

	sig, err := jose.ParseSigned(token, allowedAlgs)
	if err != nil {
		return SignatureInvalid, fmt.Errorf("trust: parsing JWS: %w", err)
	}

	if _, err := sig.Verify(key); err != nil {
		return SignatureInvalid, nil
	}
	return SignatureValid, nil
}

// findKey locates the JWK to verify with: by kid when present, falling back
// to the sole key in the set when there is exactly one and no kid was given.
func findKey(ks *KeySet, kid string) (JWK, bool) {
	if kid != "" {
		return ks.ByKid(kid)
	}
	if len(ks.Keys) == 1 {
		return ks.Keys[0], true
	}
	return JWK{}, false
}

// reconstructKey rebuilds a verification key from a JWK using go-jose's
// JSONWebKey unmarshaling, which handles RSA, EC, and oct (symmetric) key
// material uniformly.
func reconstructKey(jwk JWK) (any, error) {
	raw, err := json.Marshal(jwk)
	if err != nil {
		return nil, fmt.Errorf("trust: re-marshaling jwk: %w", err)
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("trust: reconstructing key: %w", err)
	}
	return key.Key, nil
}
