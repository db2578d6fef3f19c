package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken            = errors.New("jwt: invalid token")
	ErrExpiredToken            = errors.New("jwt: token expired")
	ErrInvalidSignature        = errors.New("jwt: invalid signature")
	ErrUnexpectedSigningMethod = errors.New("jwt: unexpected signing method")
	ErrMissingSigningKey       = errors.New("jwt: missing signing key")
	ErrMissingClaims           = errors.New("jwt: claims must not be nil")
)

// StandardClaims holds the RFC 7519 registered claims this package validates.
// Application-specific claims embed this struct.
type StandardClaims struct {
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ID        string `json:"jti,omitempty"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Service issues and validates compact HMAC-SHA256 JSON Web Tokens. It is
// used for the service's own bearer tokens (carrying tenant_id and role),
// never for the externally-issued credentials verified by the trust store.
type Service struct {
	key []byte
}

// New creates a Service from a raw signing key.
func New(key []byte) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &Service{key: key}, nil
}

// NewFromString creates a Service from a string signing key.
func NewFromString(key string) (*Service, error) {
	return New([]byte(key))
}

// Generate signs claims and returns the compact token string.
func (s *Service) Generate(claims any) (string, error) {
	if claims == nil {
		return "", ErrMissingClaims
	}

	h, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := b64(h) + "." + b64(p)
	sig := s.sign(signingInput)

	return signingInput + "." + b64(sig), nil
}

// Parse validates the token's signature and temporal claims, then unmarshals
// its payload into claims.
func (s *Service) Parse(token string, claims any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	var h header
	headerBytes, err := unb64(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return ErrInvalidToken
	}
	if h.Alg != "HS256" {
		return ErrUnexpectedSigningMethod
	}

	signingInput := parts[0] + "." + parts[1]
	sig, err := unb64(parts[2])
	if err != nil {
		return ErrInvalidToken
	}
	if !hmac.Equal(sig, s.sign(signingInput)) {
		return ErrInvalidSignature
	}

	payloadBytes, err := unb64(parts[1])
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(payloadBytes, claims); err != nil {
		return ErrInvalidToken
	}

	return validateTemporal(payloadBytes)
}

func validateTemporal(payload []byte) error {
	var tc StandardClaims
	if err := json.Unmarshal(payload, &tc); err != nil {
		return ErrInvalidToken
	}

	now := time.Now().Unix()
	if tc.ExpiresAt != 0 && now > tc.ExpiresAt {
		return ErrExpiredToken
	}
	if tc.NotBefore != 0 && now < tc.NotBefore {
		return ErrInvalidToken
	}
	return nil
}

func (s *Service) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
