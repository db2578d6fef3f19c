package inbound

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/credvault/internal/store"
)

// StoreTokenResolver resolves an external token_id to an authorization by
// treating token_id as the verifier's "subject" claim — the spec leaves the
// external token/credential identifier's relationship to the stored
// Authorization as an open question; the vault resolves it by subject
// equality, admin-scoped across tenants since the inbound signal carries no
// tenant context of its own.
type StoreTokenResolver struct {
	store store.Store
}

// NewStoreTokenResolver builds a resolver over st.
func NewStoreTokenResolver(st store.Store) *StoreTokenResolver {
	return &StoreTokenResolver{store: st}
}

func (r *StoreTokenResolver) ResolveByToken(ctx context.Context, tokenID string) (string, uuid.UUID, error) {
	page, err := r.store.Search(ctx, store.Filter{
		IsAdmin: true,
		Subject: &tokenID,
		Limit:   1,
	})
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("inbound: searching by subject: %w", err)
	}
	if len(page.Items) == 0 {
		return "", uuid.Nil, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	auth := page.Items[0]
	return auth.TenantID, auth.ID, nil
}
