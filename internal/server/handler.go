// Package server exposes the dataset endpoint consumed by querying clients
// and the operator admin API. The dataset read path gates on the session
// credential, the request origin, and the rate limiter before streaming the
// current snapshot file; internal paths and signatures never reach response
// bodies.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sitekit/search-assistant/internal/auth/sessiontoken"
	"github.com/sitekit/search-assistant/internal/dataset/lifecycle"
	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/internal/ratelimit"
	"github.com/sitekit/search-assistant/internal/search/engine"
	"github.com/sitekit/search-assistant/internal/search/index"
	"github.com/sitekit/search-assistant/pkg/config"
	apperrors "github.com/sitekit/search-assistant/pkg/errors"
	"github.com/sitekit/search-assistant/pkg/logger"
	"github.com/sitekit/search-assistant/pkg/metrics"
)

// Header carrying the client session credential.
const sessionHeader = "X-Session-Token"

// Handler serves the dataset, session, and admin routes.
type Handler struct {
	manager    *lifecycle.Manager
	limiter    *ratelimit.Limiter
	sessions   *sessiontoken.Issuer
	publicHost string
	searchCfg  config.SearchConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Handler. metrics may be nil.
func New(
	manager *lifecycle.Manager,
	limiter *ratelimit.Limiter,
	sessions *sessiontoken.Issuer,
	publicHost string,
	searchCfg config.SearchConfig,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		manager:    manager,
		limiter:    limiter,
		sessions:   sessions,
		publicHost: publicHost,
		searchCfg:  searchCfg,
		metrics:    m,
		logger:     slog.Default().With("component", "http-handler"),
	}
}

// Session issues a short-lived token for the dataset endpoint.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		h.writeError(w, http.StatusForbidden, "cross-origin blocked")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":      h.sessions.Issue(time.Now()),
		"expires_in": int(h.sessions.TTL().Seconds()),
	})
}

// Dataset streams the current snapshot after the credential, origin, and
// rate-limit gates.
func (h *Handler) Dataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	token := r.Header.Get(sessionHeader)
	if err := h.sessions.Verify(token, time.Now()); err != nil {
		h.writeError(w, http.StatusForbidden, "invalid session")
		return
	}
	if !h.originAllowed(r) {
		h.writeError(w, http.StatusForbidden, "cross-origin blocked")
		return
	}

	decision, err := h.limiter.Allow(ctx, clientIP(r))
	if err != nil {
		log.Error("rate limiter unavailable", "error", err)
		h.writeError(w, http.StatusInternalServerError, "dataset unavailable")
		return
	}
	if !decision.Allowed {
		if h.metrics != nil {
			h.metrics.RateLimitDenied.WithLabelValues(decision.Window).Inc()
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
		h.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	path, err := h.manager.CurrentPath(ctx)
	if err != nil {
		log.Error("resolving snapshot path", "error", err)
		h.writeError(w, http.StatusInternalServerError, "dataset unavailable")
		return
	}
	if path == "" {
		h.writeError(w, http.StatusNotFound, "dataset not built")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h.writeError(w, http.StatusNotFound, "dataset not built")
			return
		}
		log.Error("reading snapshot", "error", err)
		h.writeError(w, http.StatusInternalServerError, "unable to read dataset")
		return
	}
	if len(data) == 0 {
		// A zero-byte file means a write failed after the path was
		// committed; the next tick repairs it. Do not serve it.
		log.Error("snapshot file is empty")
		h.writeError(w, http.StatusInternalServerError, "unable to read dataset")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300, stale-while-revalidate=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Error("writing dataset response", "error", err)
	}
}

// AdminRebuild triggers a full rebuild under the existing filename.
func (h *Handler) AdminRebuild(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Rebuild(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("manual rebuild failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "rebuild failed")
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// AdminInfo reports count/size/mtime of the current snapshot.
func (h *Handler) AdminInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Info(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "dataset not built")
			return
		}
		logger.FromContext(r.Context()).Error("reading dataset info", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "dataset info unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// searchResult is one preview-search row.
type searchResult struct {
	ID    int64     `json:"id"`
	Title string    `json:"title"`
	URL   string    `json:"url"`
	Date  time.Time `json:"date"`
	Type  string    `json:"type"`
	Score float64   `json:"score"`
}

// AdminSearch runs a preview query against the current snapshot with the
// same engine clients use. The snapshot is loaded and indexed per call; the
// preview path is an operator diagnostic, not a serving path.
func (h *Handler) AdminSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.searchCfg.TopK
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	limit = clamp(limit, 1, h.searchCfg.MaxTopK)

	path, err := h.manager.CurrentPath(ctx)
	if err != nil {
		log.Error("resolving snapshot path", "error", err)
		h.writeError(w, http.StatusInternalServerError, "dataset unavailable")
		return
	}
	if path == "" {
		h.writeError(w, http.StatusNotFound, "dataset not built")
		return
	}
	snap, err := snapshot.Load(path)
	if err != nil {
		log.Error("loading snapshot for preview search", "error", err)
		h.writeError(w, http.StatusInternalServerError, "unable to read dataset")
		return
	}

	opts := engine.DefaultOptions()
	if h.searchCfg.TitleBoost > 0 {
		opts.Boost = map[string]float64{index.FieldTitle: h.searchCfg.TitleBoost}
	}
	eng := engine.New(index.Build(snap.Docs, index.Options{}))
	results := eng.Search(query, opts)
	if len(results) > limit {
		results = results[:limit]
	}

	if h.metrics != nil {
		resultType := "hit"
		if len(results) == 0 {
			resultType = "zero_result"
		}
		h.metrics.PreviewSearchesTotal.WithLabelValues(resultType).Inc()
	}

	rows := make([]searchResult, 0, len(results))
	for _, res := range results {
		rows = append(rows, searchResult{
			ID:    res.Doc.ID,
			Title: res.Doc.Title,
			URL:   res.Doc.URL,
			Date:  res.Doc.Date,
			Type:  res.Doc.Type,
			Score: res.Score,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"total":   len(rows),
		"results": rows,
	})
}

// originAllowed checks Origin and Referer hosts against the configured
// public host. Requests without either header pass (same-origin fetches and
// non-browser clients).
func (h *Handler) originAllowed(r *http.Request) bool {
	for _, raw := range []string{r.Header.Get("Origin"), r.Header.Get("Referer")} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if !strings.EqualFold(u.Hostname(), h.publicHost) {
			return false
		}
	}
	return true
}

// clientIP extracts the remote address without the port, the identity the
// rate limiter keys on.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
