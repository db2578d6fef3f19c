package trust

import "errors"

var (
	// ErrIssuerUnknown is returned when the issuer has no registered trust
	// record at all (never registered, or removed by an operator).
	ErrIssuerUnknown = errors.New("trust: issuer not registered")

	// ErrInvalidKeySet is returned when a fetched JWKS document fails the
	// vault's admission rules (empty, missing required key parameters, or an
	// alg/kty mismatch).
	ErrInvalidKeySet = errors.New("trust: invalid key set")

	// ErrKeyNotFound is returned when a token's kid has no match in the
	// issuer's current key set.
	ErrKeyNotFound = errors.New("trust: signing key not found in key set")

	// ErrFetchFailed wraps a failure to retrieve or refresh an issuer's JWKS.
	ErrFetchFailed = errors.New("trust: key set fetch failed")

	// ErrUnresolvableIssuer is returned when the issuer identifier does not
	// match any scheme the resolver understands.
	ErrUnresolvableIssuer = errors.New("trust: cannot resolve issuer to a key set URL")
)
