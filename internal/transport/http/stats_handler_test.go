package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
	"trivia-stats-service/internal/infra/memory"
)

func TestStatsEndpointServesTally(t *testing.T) {
	ctx := context.Background()
	counters := memory.NewCounterStore()
	_ = counters.IncrementAnswer(ctx, "2026-02-10", 1, 2)
	cache := memory.NewStatsCache()
	stats := app.NewStatsService(cache, counters, time.Second)
	handler := NewStatsHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/stats?date=2026-02-10", nil)
	rec := httptest.NewRecorder()
	handler.ServeStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Fatalf("unexpected cache header: %q", cc)
	}
	var tally domain.DailyTally
	if err := json.Unmarshal(rec.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if tally.AnswerCounts[1][2] != 1 {
		t.Fatalf("unexpected tally: %+v", tally)
	}
}

func TestStatsEndpointDegradesToEmptyObject(t *testing.T) {
	stats := app.NewStatsService(memory.NewStatsCache(), memory.NewCounterStore(), time.Second)
	handler := NewStatsHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/stats?date=2026-02-10", nil)
	rec := httptest.NewRecorder()
	handler.ServeStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("no-data reads must still be 200, got %d", rec.Code)
	}
	var tally domain.DailyTally
	if err := json.Unmarshal(rec.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !tally.IsEmpty() {
		t.Fatalf("expected empty tally, got %+v", tally)
	}
}

func TestStatsEndpointDefaultsToToday(t *testing.T) {
	ctx := context.Background()
	today := domain.DateKey(time.Now())
	counters := memory.NewCounterStore()
	_ = counters.IncrementScore(ctx, today, 4)
	stats := app.NewStatsService(memory.NewStatsCache(), counters, time.Second)
	handler := NewStatsHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeStats(rec, req)

	var tally domain.DailyTally
	if err := json.Unmarshal(rec.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if tally.ScoreCounts[4] != 1 {
		t.Fatalf("expected today's tally, got %+v", tally)
	}
}

func TestStatsEndpointMalformedDateServesEmpty(t *testing.T) {
	ctx := context.Background()
	today := domain.DateKey(time.Now())
	counters := memory.NewCounterStore()
	_ = counters.IncrementScore(ctx, today, 3)
	stats := app.NewStatsService(memory.NewStatsCache(), counters, time.Second)
	handler := NewStatsHandler(stats)

	req := httptest.NewRequest(http.MethodGet, "/stats?date=not-a-date", nil)
	rec := httptest.NewRecorder()
	handler.ServeStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("malformed date must still be 200, got %d", rec.Code)
	}
	var tally domain.DailyTally
	if err := json.Unmarshal(rec.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	// Garbage input must not alias to today's tally.
	if !tally.IsEmpty() {
		t.Fatalf("expected empty tally, got %+v", tally)
	}
}

func TestRefreshEndpointRequiresSecret(t *testing.T) {
	ctx := context.Background()
	counters := memory.NewCounterStore()
	today := domain.DateKey(time.Now())
	_ = counters.IncrementScore(ctx, today, 2)
	cache := memory.NewStatsCache()
	stats := app.NewStatsService(cache, counters, time.Second)
	handler := NewRefreshHandler(stats, "hunter2")

	req := httptest.NewRequest(http.MethodPost, "/internal/refresh", nil)
	rec := httptest.NewRecorder()
	handler.ServeRefresh(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without secret, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/refresh", nil)
	req.Header.Set("X-Refresh-Secret", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeRefresh(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	if _, ok, _ := cache.Get(ctx, today); !ok {
		t.Fatalf("refresh did not populate cache")
	}
}

func TestRefreshEndpointRejectsGet(t *testing.T) {
	stats := app.NewStatsService(memory.NewStatsCache(), memory.NewCounterStore(), time.Second)
	handler := NewRefreshHandler(stats, "hunter2")

	req := httptest.NewRequest(http.MethodGet, "/internal/refresh", nil)
	rec := httptest.NewRecorder()
	handler.ServeRefresh(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
