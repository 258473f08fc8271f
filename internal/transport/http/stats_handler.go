package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
)

// StatsHandler serves aggregate tallies to the high-fanout read audience.
type StatsHandler struct {
	stats *app.StatsService
	clock func() time.Time
}

func NewStatsHandler(stats *app.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats, clock: time.Now}
}

// ServeStats handles GET /stats?date=YYYY-MM-DD (default: current date).
// Always 200: errors degrade to an empty tally. Responses are cacheable by
// intermediaries for a short window since the edge cache already bounds
// staleness at the refresh period.
func (h *StatsHandler) ServeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date := r.URL.Query().Get("date")
	var tally domain.DailyTally
	switch _, err := time.Parse(domain.DateKeyFormat, date); {
	case date == "":
		tally = h.stats.FetchStats(r.Context(), domain.DateKey(h.clock()))
	case err != nil:
		// A malformed date is a day with no data, not an alias for today.
		tally = domain.NewDailyTally()
	default:
		tally = h.stats.FetchStats(r.Context(), date)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if err := json.NewEncoder(w).Encode(tally); err != nil {
		log.Printf("stats: encode response: %v", err)
	}
}

// RefreshHandler lets an external scheduler trigger a refresh pass.
type RefreshHandler struct {
	stats  *app.StatsService
	secret string
}

func NewRefreshHandler(stats *app.StatsService, secret string) *RefreshHandler {
	return &RefreshHandler{stats: stats, secret: secret}
}

// ServeRefresh handles POST /internal/refresh guarded by a shared secret.
func (h *RefreshHandler) ServeRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" || r.Header.Get("X-Refresh-Secret") != h.secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err := h.stats.Refresh(r.Context()); err != nil {
		log.Printf("stats: triggered refresh: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
