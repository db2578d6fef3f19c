package trust

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveIssuerURL maps an issuer identifier to the HTTPS URL its JWKS
// document is published at. Two schemes are understood:
//
//   - did:web:example.com             -> https://example.com/.well-known/jwks.json
//   - did:web:example.com:a:b         -> https://example.com/a/b/jwks.json
//     (colon-separated path segments are percent-decoded and joined with "/").
//   - https://...                      -> used verbatim as the JWKS endpoint.
//
// Any other form is rejected: the vault does not resolve did:key or other
// DID methods that embed key material directly in the identifier, since
// those cannot be rotated via a fetchable key set.
func ResolveIssuerURL(issuer string) (string, error) {
	switch {
	case strings.HasPrefix(issuer, "did:web:"):
		return resolveDIDWeb(issuer)
	case strings.HasPrefix(issuer, "https://"):
		u, err := url.Parse(issuer)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q", ErrUnresolvableIssuer, issuer)
		}
		return issuer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnresolvableIssuer, issuer)
	}
}

func resolveDIDWeb(issuer string) (string, error) {
	rest := strings.TrimPrefix(issuer, "did:web:")
	if rest == "" {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableIssuer, issuer)
	}

	segments := strings.Split(rest, ":")
	for i, seg := range segments {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrUnresolvableIssuer, issuer)
		}
		segments[i] = decoded
	}

	host := segments[0]
	path := segments[1:]

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	if len(path) == 0 {
		b.WriteString("/.well-known/jwks.json")
	} else {
		b.WriteString("/")
		b.WriteString(strings.Join(path, "/"))
		b.WriteString("/jwks.json")
	}

	return b.String(), nil
}
