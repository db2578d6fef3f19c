// Package webhook provides the low-level primitives for HMAC-signed HTTP
// webhook delivery: a single-attempt sender and the signature helpers shared
// by outbound delivery and inbound verification. Retry scheduling and
// attempt bookkeeping are owned by the caller (the vault persists each
// attempt as a row so a crash mid-delivery is recoverable); this package
// never retries on its own.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrInvalidURL     = errors.New("webhook: invalid target URL")
	ErrInvalidPayload = errors.New("webhook: payload must not be empty")
)

// maxResponseExcerpt bounds how much of a response body is retained for
// diagnostics, per the delivery ledger's 1KB excerpt limit.
const maxResponseExcerpt = 1024

// SignatureHeader is the HTTP header carrying the HMAC signature.
const SignatureHeader = "X-Webhook-Signature"

// Sender performs individual webhook delivery attempts over a shared,
// connection-pooled HTTP client.
type Sender struct {
	client *http.Client
}

// NewSender creates a Sender with a process-wide connection pool. Callers
// supply per-attempt timeouts via context, so the client itself has no
// default timeout.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// AttemptResult is the outcome of a single delivery attempt.
type AttemptResult struct {
	StatusCode int
	Excerpt    string
	Err        error
}

// Success reports whether the attempt should be considered delivered.
func (r AttemptResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Send performs exactly one delivery attempt of the given pre-serialized
// body to target, signing it with secret if non-empty. body must be the
// same bytes the caller computed any HMAC over — this function does not
// re-serialize anything.
func (s *Sender) Send(ctx context.Context, target string, body []byte, secret string, timeout time.Duration) AttemptResult {
	if len(body) == 0 {
		return AttemptResult{Err: ErrInvalidPayload}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return AttemptResult{Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return AttemptResult{Err: err}
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))

	return AttemptResult{
		StatusCode: resp.StatusCode,
		Excerpt:    string(excerpt),
	}
}

// Sign computes the wire-format signature header value for body: sha256=<hex>.
func Sign(secret string, body []byte) string {
	return "sha256=" + hex.EncodeToString(mac(secret, body))
}

// Verify checks sig (as received in the X-Webhook-Signature /
// X-ACP-Signature header) against body using a constant-time comparison.
func Verify(secret string, body []byte, sig string) bool {
	const prefix = "sha256="
	hexPart := sig
	if len(sig) > len(prefix) && sig[:len(prefix)] == prefix {
		hexPart = sig[len(prefix):]
	}

	given, err := hex.DecodeString(hexPart)
	if err != nil {
		return false
	}

	return hmac.Equal(given, mac(secret, body))
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
