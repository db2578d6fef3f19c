// Package trust implements the TTL-cached issuer key store (C1): issuer ->
// JWK-set resolution, refresh coalescing, and JWS signature verification
// against cached keys.
package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the freshness window for a cached key set before GetKeys
// attempts a refresh.
const DefaultTTL = time.Hour

// Fetcher retrieves the raw JWKS document bytes for a resolved URL. The
// default implementation issues an HTTP GET; tests supply a stub.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// HTTPFetcher builds a Fetcher backed by an *http.Client.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("trust: unexpected status %d fetching %s", resp.StatusCode, url)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	}
}

// Store is the TTL-cached issuer -> KeySet registry. It layers an in-process
// LRU (L1) in front of an optional Redis cache (L2, shared across
// instances), falling back to the live fetcher on a full miss. Concurrent
// refreshes of the same issuer are coalesced via singleflight so only one
// outbound fetch happens at a time.
type Store struct {
	ttl     time.Duration
	fetcher Fetcher
	baseURL string // did:example resolution base, e.g. "https://issuers.internal"
	log     *slog.Logger

	l1 *lru.Cache[string, *KeySet]
	l2 *redis.Client
	sf singleflight.Group

	mu        sync.RWMutex
	manual    map[string]*KeySet // explicitly registered, bypasses TTL refresh
	lastFetch map[string]time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithFetcher overrides the default HTTP fetcher, primarily for tests.
func WithFetcher(f Fetcher) Option {
	return func(s *Store) { s.fetcher = f }
}

// WithRedis attaches an L2 cache shared across instances.
func WithRedis(client *redis.Client) Option {
	return func(s *Store) { s.l2 = client }
}

// WithDIDExampleBase sets the base URL used to resolve did:example:<id>
// issuers, a scheme the vault supports for test and sandbox issuers that
// don't run a real did:web document.
func WithDIDExampleBase(base string) Option {
	return func(s *Store) { s.baseURL = base }
}

// WithLogger attaches a logger; defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore builds a Store with an L1 cache sized capacity.
func NewStore(capacity int, opts ...Option) (*Store, error) {
	l1, err := lru.New[string, *KeySet](capacity)
	if err != nil {
		return nil, fmt.Errorf("trust: building l1 cache: %w", err)
	}

	s := &Store{
		ttl:       DefaultTTL,
		l1:        l1,
		manual:    make(map[string]*KeySet),
		lastFetch: make(map[string]time.Time),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = HTTPFetcher(nil)
	}
	return s, nil
}

// GetKeys returns the cached KeySet for issuer, refreshing it first if the
// cached entry (if any) is stale. An issuer that has never been seen and
// cannot be fetched returns ErrIssuerUnknown; an issuer with a prior
// successful fetch whose refresh now fails keeps serving the stale value.
func (s *Store) GetKeys(ctx context.Context, issuer string) (*KeySet, error) {
	if ks, ok := s.manualLookup(issuer); ok {
		return ks, nil
	}

	if ks, ok := s.l1.Get(issuer); ok && !ks.Stale(s.ttl, time.Now()) {
		return ks, nil
	}

	v, err, _ := s.sf.Do(issuer, func() (any, error) {
		return s.refresh(ctx, issuer)
	})
	if err != nil {
		if cached, ok := s.l1.Get(issuer); ok {
			s.log.WarnContext(ctx, "trust: refresh failed, serving stale key set",
				slog.String("issuer", issuer), slog.Any("error", err))
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrIssuerUnknown, issuer, err)
	}
	return v.(*KeySet), nil
}

func (s *Store) manualLookup(issuer string) (*KeySet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ks, ok := s.manual[issuer]
	return ks, ok
}

func (s *Store) refresh(ctx context.Context, issuer string) (*KeySet, error) {
	if ks := s.tryL2(ctx, issuer); ks != nil {
		s.l1.Add(issuer, ks)
		return ks, nil
	}

	url, err := ResolveIssuerURL(issuer)
	if err != nil && s.baseURL != "" {
		url, err = resolveDIDExample(s.baseURL, issuer)
	}
	if err != nil {
		return nil, err
	}

	raw, err := s.fetcher(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	var doc jwkDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidKeySet, err)
	}
	if err := validateKeySet(doc.Keys); err != nil {
		return nil, err
	}

	ks := &KeySet{Issuer: issuer, Keys: doc.Keys, FetchedAt: time.Now()}
	s.l1.Add(issuer, ks)
	s.storeL2(ctx, ks)

	s.mu.Lock()
	s.lastFetch[issuer] = ks.FetchedAt
	s.mu.Unlock()

	return ks, nil
}

func (s *Store) tryL2(ctx context.Context, issuer string) *KeySet {
	if s.l2 == nil {
		return nil
	}
	raw, err := s.l2.Get(ctx, redisKey(issuer)).Bytes()
	if err != nil {
		return nil
	}
	var ks KeySet
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil
	}
	if ks.Stale(s.ttl, time.Now()) {
		return nil
	}
	return &ks
}

func (s *Store) storeL2(ctx context.Context, ks *KeySet) {
	if s.l2 == nil {
		return
	}
	raw, err := json.Marshal(ks)
	if err != nil {
		return
	}
	s.l2.Set(ctx, redisKey(ks.Issuer), raw, s.ttl*2)
}

func redisKey(issuer string) string {
	return "trust:keyset:" + issuer
}

func resolveDIDExample(base, issuer string) (string, error) {
	const prefix = "did:example:"
	if len(issuer) <= len(prefix) || issuer[:len(prefix)] != prefix {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableIssuer, issuer)
	}
	return base + "/" + issuer[len(prefix):] + "/jwks.json", nil
}
