package httpapi

import (
	"context"
	"net/http"
	"time"
)

// Pinger is implemented by anything whose liveness can be reduced to a
// single blocking check — the Postgres pool and the Redis client both
// satisfy it already via their own Ping methods.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck answers GET /healthz by pinging every dependency the vault
// cannot serve traffic without. Any failure reports 503 so a load balancer
// pulls the instance out of rotation.
func HealthCheck(deps ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				writeError(w, r, http.StatusServiceUnavailable, "NOT_READY", "dependency unavailable")
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
