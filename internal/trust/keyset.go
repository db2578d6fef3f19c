package trust

import (
	"fmt"
	"time"
)

// JWK is a single JSON Web Key as published in an issuer's key set. Only the
// fields the vault needs for signature verification are retained; unknown
// fields in the source document are dropped on parse.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	// oct (symmetric) — present only for issuers the operator trusts to use HS*.
	K string `json:"k,omitempty"`
}

// jwkDoc is the top-level JWKS document shape: {"keys": [...]}.
type jwkDoc struct {
	Keys []JWK `json:"keys"`
}

// KeySet is the cached, validated key material for one issuer.
type KeySet struct {
	Issuer    string
	Keys      []JWK
	FetchedAt time.Time
}

// ByKid returns the key with the given kid, if present.
func (ks *KeySet) ByKid(kid string) (JWK, bool) {
	for _, k := range ks.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// Stale reports whether the key set is older than ttl.
func (ks *KeySet) Stale(ttl time.Duration, now time.Time) bool {
	return now.Sub(ks.FetchedAt) > ttl
}

// validateKeySet enforces the vault's key-set admission rules: kty must be a
// recognized family, each family's required parameters must be present, and
// alg (when given) must be compatible with kty.
func validateKeySet(keys []JWK) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrInvalidKeySet)
	}

	for i, k := range keys {
		switch k.Kty {
		case "RSA":
			if k.N == "" || k.E == "" {
				return fmt.Errorf("%w: key %d (RSA) missing n/e", ErrInvalidKeySet, i)
			}
		case "EC":
			if k.Crv == "" || k.X == "" || k.Y == "" {
				return fmt.Errorf("%w: key %d (EC) missing crv/x/y", ErrInvalidKeySet, i)
			}
		case "oct":
			if k.K == "" {
				return fmt.Errorf("%w: key %d (oct) missing k", ErrInvalidKeySet, i)
			}
		default:
			return fmt.Errorf("%w: key %d has unsupported kty %q", ErrInvalidKeySet, i, k.Kty)
		}

		if k.Alg != "" && !algCompatibleWithKty(k.Alg, k.Kty) {
			return fmt.Errorf("%w: key %d alg %q incompatible with kty %q", ErrInvalidKeySet, i, k.Alg, k.Kty)
		}
	}

	return nil
}

func algCompatibleWithKty(alg, kty string) bool {
	switch kty {
	case "RSA":
		switch alg {
		case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
			return true
		}
	case "EC":
		switch alg {
		case "ES256", "ES384", "ES512":
			return true
		}
	case "oct":
		switch alg {
		case "HS256", "HS384", "HS512":
			return true
		}
	}
	return false
}
