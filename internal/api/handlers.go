package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// eventRequest is the POST /api/event body.
type eventRequest struct {
	UserID             string  `json:"user_id"`
	DeviceID           string  `json:"device_id"`
	IPAddress          string  `json:"ip_address"`
	MerchantID         string  `json:"merchant_id"`
	TransactionAmount  float64 `json:"transaction_amount"`
}

func (g *Gateway) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrKind(w, newErr(KindValidation, "invalid_body", "could not parse request body", err.Error()))
		return
	}
	if req.UserID == "" || req.DeviceID == "" || req.IPAddress == "" || req.MerchantID == "" {
		writeErrKind(w, newErr(KindValidation, "validation_error", "user_id, device_id, ip_address and merchant_id are required", ""))
		return
	}
	if math.IsNaN(req.TransactionAmount) || math.IsInf(req.TransactionAmount, 0) {
		writeErrKind(w, newErr(KindValidation, "validation_error", "transaction_amount must be finite", ""))
		return
	}
	if req.TransactionAmount < 0 {
		writeErrKind(w, newErr(KindValidation, "validation_error", "transaction_amount must be non-negative", ""))
		return
	}

	ev := risk.Event{
		UserID:     req.UserID,
		DeviceID:   req.DeviceID,
		IPAddress:  req.IPAddress,
		MerchantID: req.MerchantID,
		Amount:     req.TransactionAmount,
		Timestamp:  time.Now(),
	}

	exp, err := g.engine.ProcessEvent(r.Context(), ev)
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			writeErrKind(w, newErr(KindOverload, "request_cancelled", "request was cancelled or timed out", err.Error()))
			return
		}
		writeErrKind(w, newErr(KindInternal, "internal_error", "failed to process event", err.Error()))
		return
	}
	writeSuccessResponse(w, exp)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeSuccessResponse(w, g.engine.GetStats())
}

func (g *Gateway) handleRiskDistribution(w http.ResponseWriter, r *http.Request) {
	if g.analyticsDistribution == nil {
		writeErrKind(w, newErr(KindTransient, "unavailable", "analytics collaborator not configured", ""))
		return
	}
	hours := queryInt(r, "hours", 24)
	if hours < 1 || hours > 720 {
		writeErrKind(w, newErr(KindValidation, "validation_error", "hours must be between 1 and 720", ""))
		return
	}
	data, err := g.analyticsDistribution(r.Context(), hours)
	if err != nil {
		writeErrKind(w, newErr(KindInternal, "internal_error", "failed to compute risk distribution", err.Error()))
		return
	}
	writeSuccessResponse(w, data)
}

func (g *Gateway) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	if g.analyticsUserHistory == nil {
		writeErrKind(w, newErr(KindTransient, "unavailable", "analytics collaborator not configured", ""))
		return
	}
	userID := mux.Vars(r)["user_id"]
	days := queryInt(r, "days", 30)
	data, err := g.analyticsUserHistory(r.Context(), userID, days)
	if err != nil {
		writeErrKind(w, newErr(KindInternal, "internal_error", "failed to fetch user history", err.Error()))
		return
	}
	writeSuccessResponse(w, data)
}

func (g *Gateway) handleTopRisky(w http.ResponseWriter, r *http.Request) {
	if g.analyticsTopRisky == nil {
		writeErrKind(w, newErr(KindTransient, "unavailable", "analytics collaborator not configured", ""))
		return
	}
	limit := queryInt(r, "limit", 10)
	data, err := g.analyticsTopRisky(r.Context(), limit)
	if err != nil {
		writeErrKind(w, newErr(KindInternal, "internal_error", "failed to fetch top risky users", err.Error()))
		return
	}
	writeSuccessResponse(w, data)
}

func (g *Gateway) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if g.analyticsPerformance == nil {
		writeErrKind(w, newErr(KindTransient, "unavailable", "analytics collaborator not configured", ""))
		return
	}
	hours := queryInt(r, "hours", 1)
	data, err := g.analyticsPerformance(r.Context(), hours)
	if err != nil {
		writeErrKind(w, newErr(KindInternal, "internal_error", "failed to compute performance summary", err.Error()))
		return
	}
	writeSuccessResponse(w, data)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	report := g.health.Run(r.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// --- token-bucket rate limiting, grounded on original_source's RateLimiter ---

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, refillRate: refillRate, lastRefill: time.Now()}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (g *Gateway) rateLimitMiddleware(next http.Handler) http.Handler {
	if g.cfg.RateLimit.RequestsPerSecond <= 0 {
		return next
	}
	bucket := newTokenBucket(float64(g.cfg.RateLimit.BurstSize), float64(g.cfg.RateLimit.RequestsPerSecond))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !bucket.allow() {
			writeErrKind(w, newErr(KindRateLimit, "rate_limited", "too many requests", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}
