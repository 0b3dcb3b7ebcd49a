package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/sitekit/search-assistant/pkg/health"
	"github.com/sitekit/search-assistant/pkg/metrics"
	"github.com/sitekit/search-assistant/pkg/middleware"
)

// RouterConfig carries the routing-level settings.
type RouterConfig struct {
	AdminToken     string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// NewRouter wires all routes and the shared middleware chain. Admin routes
// are additionally gated on the bearer token; an empty AdminToken disables
// the admin API entirely.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/session", h.Session)
	mux.HandleFunc("GET /api/v1/dataset", h.Dataset)

	admin := requireAdmin(cfg.AdminToken)
	mux.Handle("POST /api/v1/admin/rebuild", admin(http.HandlerFunc(h.AdminRebuild)))
	mux.Handle("GET /api/v1/admin/dataset", admin(http.HandlerFunc(h.AdminInfo)))
	mux.Handle("GET /api/v1/admin/search", admin(http.HandlerFunc(h.AdminSearch)))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.AllowedOrigins

	var handler http.Handler = mux
	handler = middleware.Timeout(cfg.RequestTimeout)(handler)
	handler = middleware.CORS(corsCfg)(handler)
	if m != nil {
		handler = middleware.Metrics(m)(handler)
	}
	handler = middleware.RequestID(handler)
	return handler
}

// requireAdmin gates a route on the operator bearer token. The comparison is
// constant-time so the token cannot be recovered byte by byte from timing.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error":"admin api disabled"}`, http.StatusForbidden)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
