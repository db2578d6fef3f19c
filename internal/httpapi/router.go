package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrymomot/credvault/pkg/jwt"
)

// NewRouter builds the vault's full HTTP surface (spec §6 plus the
// supplemented admin/subscription/audit/metrics routes): authenticated
// authorization lifecycle routes plus the unauthenticated inbound webhook
// receiver.
func NewRouter(h *Handlers, admin *AdminHandlers, metrics *Metrics, tokens *jwt.Service, log *slog.Logger, healthDeps ...Pinger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(requestMetrics(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-ACP-Signature"},
		MaxAge:           300,
	}))

	r.Get("/healthz", HealthCheck(healthDeps...))

	r.Post("/acp/webhook", h.InboundWebhook)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(RequireAuth(tokens))

		api.Post("/authorizations", h.CreateAuthorization)
		api.Get("/authorizations/{id}", h.GetAuthorization)
		api.Post("/authorizations/{id}/verify", h.VerifyAuthorization)
		api.Delete("/authorizations/{id}", h.RevokeAuthorization)
		api.Post("/authorizations/search", h.SearchAuthorizations)
		api.Get("/authorizations/{id}/evidence-pack", h.EvidencePack)
		api.Get("/authorizations/{id}/audit", admin.AuditTrail)

		api.Post("/webhook-subscriptions", admin.CreateSubscription)
		api.Get("/webhook-subscriptions", admin.ListSubscriptions)
		api.Patch("/webhook-subscriptions/{id}", admin.DeactivateSubscription)
		api.Delete("/webhook-subscriptions/{id}", admin.DeleteSubscription)

		api.Group(func(adminAPI chi.Router) {
			adminAPI.Use(requireAdmin)
			adminAPI.Post("/admin/issuers", admin.RegisterIssuer)
			adminAPI.Delete("/admin/issuers/{issuer}", admin.RemoveIssuer)
			adminAPI.Get("/admin/issuers", admin.ListIssuers)
		})
	})

	return r
}

// requireAdmin rejects a non-administrator principal with 403. RequireAuth
// must run first so a Principal is already on the request context.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		if !principal.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMetrics increments http_requests_total by route pattern and status
// class, read after the handler runs so chi's routing context has already
// resolved the matched pattern.
func requestMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.HTTPRequests.WithLabelValues(route, statusClass(ww.Status())).Inc()
		})
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// requestLogger emits one structured log line per request, matching the
// ambient logging style used across the rest of the vault (slog via
// core/logger), never the chi default logger's plain-text output.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
