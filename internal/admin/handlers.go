// Package admin provides the HTTP handlers for the contentgw administration
// API and the session middleware that guards the public and admin routes.
// Admin routes expose hot tier statistics, hot tier clearing and provider
// breaker state; they require a session with the admin role.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	contentgw "github.com/connectlist/contentgw"
	"github.com/connectlist/contentgw/internal/cache"
	"github.com/connectlist/contentgw/internal/logging"
)

// CacheManager exposes the Service operations needed by the admin API.
type CacheManager interface {
	HotStats() cache.Stats
	ClearHot() int
	ProviderStatuses() []contentgw.ProviderStatus
}

// Handlers holds dependencies for admin HTTP handlers.
type Handlers struct {
	Cache CacheManager
}

// Routes returns a chi.Router with all admin endpoints mounted. Callers are
// expected to install SessionMiddleware ahead of it.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireRole(RoleAdmin))
	r.Get("/cache", h.cacheStats)
	r.Delete("/cache/hot", h.clearHot)
	r.Get("/providers", h.listProviders)
	return r
}

type cacheStatsResponse struct {
	Hot hotStats `json:"hot"`
}

type hotStats struct {
	Entries       int     `json:"entries"`
	Capacity      int     `json:"capacity"`
	TTLSeconds    float64 `json:"ttl_seconds"`
	OldestSeconds float64 `json:"oldest_age_seconds"`
}

func (h *Handlers) cacheStats(w http.ResponseWriter, _ *http.Request) {
	st := h.Cache.HotStats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{Hot: hotStats{
		Entries:       st.Entries,
		Capacity:      st.Capacity,
		TTLSeconds:    st.TTL.Seconds(),
		OldestSeconds: st.OldestAge.Seconds(),
	}})
}

func (h *Handlers) clearHot(w http.ResponseWriter, r *http.Request) {
	n := h.Cache.ClearHot()
	logging.FromContext(r.Context()).Info("hot tier cleared", "entries", n)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handlers) listProviders(w http.ResponseWriter, _ *http.Request) {
	statuses := h.Cache.ProviderStatuses()
	if statuses == nil {
		statuses = []contentgw.ProviderStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
