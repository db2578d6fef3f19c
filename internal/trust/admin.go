package trust

import (
	"context"
	"time"
)

// RegisterIssuer installs an explicit, manually-managed key set for issuer,
// bypassing URL resolution and TTL refresh entirely. Used for issuers
// onboarded out-of-band (e.g. a sandbox partner without a publishable JWKS
// endpoint) and for tests.
func (s *Store) RegisterIssuer(issuer string, keys []JWK) error {
	if err := validateKeySet(keys); err != nil {
		return err
	}

	ks := &KeySet{Issuer: issuer, Keys: keys, FetchedAt: time.Now()}

	s.mu.Lock()
	s.manual[issuer] = ks
	s.lastFetch[issuer] = ks.FetchedAt
	s.mu.Unlock()

	s.l1.Add(issuer, ks)
	return nil
}

// RemoveIssuer evicts an issuer from every cache tier and clears any manual
// registration. Subsequent GetKeys calls fall back to live resolution.
func (s *Store) RemoveIssuer(issuer string) {
	s.mu.Lock()
	delete(s.manual, issuer)
	delete(s.lastFetch, issuer)
	s.mu.Unlock()

	s.l1.Remove(issuer)
	if s.l2 != nil {
		s.l2.Del(context.Background(), redisKey(issuer))
	}
}

// IssuerStatus reports the last-refresh time for one issuer.
type IssuerStatus struct {
	Issuer      string    `json:"issuer"`
	LastRefresh time.Time `json:"last_refresh"`
	KeyCount    int       `json:"key_count"`
	Manual      bool      `json:"manual"`
}

// Status summarizes every issuer currently known to the store.
func (s *Store) Status() []IssuerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]IssuerStatus, 0, len(s.lastFetch)+len(s.manual))
	seen := make(map[string]bool)

	for issuer, ts := range s.lastFetch {
		ks, _ := s.l1.Peek(issuer)
		out = append(out, IssuerStatus{
			Issuer:      issuer,
			LastRefresh: ts,
			KeyCount:    keyCount(ks),
			Manual:      false,
		})
		seen[issuer] = true
	}
	for issuer, ks := range s.manual {
		if seen[issuer] {
			continue
		}
		out = append(out, IssuerStatus{
			Issuer:      issuer,
			LastRefresh: ks.FetchedAt,
			KeyCount:    len(ks.Keys),
			Manual:      true,
		})
	}
	return out
}

func keyCount(ks *KeySet) int {
	if ks == nil {
		return 0
	}
	return len(ks.Keys)
}
