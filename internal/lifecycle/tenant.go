package lifecycle

import (
	"context"
	"fmt"
)

// AllowlistTenantResolver is the default TenantResolver: a deployment
// supplies the set of tenant ids it knows about (typically loaded from its
// own tenant/account table, outside this module's scope) and every Create
// call is checked against it. An empty allowlist accepts any tenant id,
// matching a single-tenant or pre-validated-upstream deployment.
type AllowlistTenantResolver struct {
	tenants map[string]struct{}
}

// NewAllowlistTenantResolver builds a resolver over the given tenant ids.
func NewAllowlistTenantResolver(tenantIDs ...string) *AllowlistTenantResolver {
	set := make(map[string]struct{}, len(tenantIDs))
	for _, id := range tenantIDs {
		set[id] = struct{}{}
	}
	return &AllowlistTenantResolver{tenants: set}
}

func (r *AllowlistTenantResolver) Resolve(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrTenantNotFound)
	}
	if len(r.tenants) == 0 {
		return nil
	}
	if _, ok := r.tenants[tenantID]; !ok {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return nil
}

// Allow adds tenantID to the allowlist.
func (r *AllowlistTenantResolver) Allow(tenantID string) {
	r.tenants[tenantID] = struct{}{}
}
