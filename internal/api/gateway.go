// Package api implements the HTTP surface: a gorilla/mux router behind
// rs/cors and an auth/rate-limit/metrics middleware chain, returning
// the {success, data, error} envelope the teacher's gateway.go
// uses throughout. Grounded on internal/api/gateway.go and handlers.go;
// the route tree and auth defaults are this domain's own.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/fraudmesh/fraudmesh/internal/config"
	"github.com/fraudmesh/fraudmesh/internal/health"
	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// Middleware matches the teacher's chain-of-http.Handler idiom.
type Middleware func(http.Handler) http.Handler

// Engine is the narrow surface the gateway needs from the risk engine.
type Engine interface {
	ProcessEvent(ctx context.Context, ev risk.Event) (risk.Explanation, error)
	GetStats() risk.Stats
}

// Gateway wires the router, middleware and handlers.
type Gateway struct {
	cfg     config.APIConfig
	router  *mux.Router
	server  *http.Server
	engine  Engine
	health  *health.Checker
	metrics *gatewayMetrics

	analyticsDistribution func(ctx context.Context, hours int) (interface{}, error)
	analyticsUserHistory  func(ctx context.Context, userID string, days int) (interface{}, error)
	analyticsTopRisky     func(ctx context.Context, limit int) (interface{}, error)
	analyticsPerformance  func(ctx context.Context, hours int) (interface{}, error)

	metricsHandler http.Handler
}

// gatewayMetrics counts requests per path; guarded by mu since handlers
// for concurrent requests all write to the same map.
type gatewayMetrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
}

func (m *gatewayMetrics) increment(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[path]++
}

// NewGateway builds the router and HTTP server; analytics hooks may be
// nil, in which case the corresponding endpoint reports 503.
func NewGateway(cfg config.APIConfig, engine Engine, checker *health.Checker, metricsHandler http.Handler) *Gateway {
	g := &Gateway{
		cfg:            cfg,
		router:         mux.NewRouter(),
		engine:         engine,
		health:         checker,
		metrics:        &gatewayMetrics{requestCount: make(map[string]int64)},
		metricsHandler: metricsHandler,
	}
	g.setupRoutes()

	handler := g.setupMiddleware(g.router)

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return g
}

// SetAnalytics wires the GET /api/analytics/* collaborator after
// construction, since it's optional (no DATABASE_URL configured means
// these endpoints degrade rather than the whole gateway failing to start).
func (g *Gateway) SetAnalytics(
	distribution func(ctx context.Context, hours int) (interface{}, error),
	userHistory func(ctx context.Context, userID string, days int) (interface{}, error),
	topRisky func(ctx context.Context, limit int) (interface{}, error),
	performance func(ctx context.Context, hours int) (interface{}, error),
) {
	g.analyticsDistribution = distribution
	g.analyticsUserHistory = userHistory
	g.analyticsTopRisky = topRisky
	g.analyticsPerformance = performance
}

func (g *Gateway) setupRoutes() {
	g.router.HandleFunc("/api/event", g.handleEvent).Methods(http.MethodPost)
	g.router.HandleFunc("/api/stats", g.handleStats).Methods(http.MethodGet)
	g.router.HandleFunc("/api/analytics/risk-distribution", g.handleRiskDistribution).Methods(http.MethodGet)
	g.router.HandleFunc("/api/analytics/user/{user_id}", g.handleUserHistory).Methods(http.MethodGet)
	g.router.HandleFunc("/api/analytics/top-risky", g.handleTopRisky).Methods(http.MethodGet)
	g.router.HandleFunc("/api/analytics/performance", g.handlePerformance).Methods(http.MethodGet)
	g.router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	if g.metricsHandler != nil {
		g.router.Handle("/metrics", g.metricsHandler).Methods(http.MethodGet)
	}
}

func (g *Gateway) setupMiddleware(h http.Handler) http.Handler {
	if g.cfg.CORS.Enabled {
		c := cors.New(cors.Options{
			AllowedOrigins: g.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", "X-API-Key", "Authorization"},
		})
		h = c.Handler(h)
	}

	h = g.metricsMiddleware(h)
	h = g.rateLimitMiddleware(h)
	h = g.authMiddleware(h)
	return h
}

func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	switch g.cfg.AuthType {
	case "jwt":
		return g.jwtAuthMiddleware(next)
	default:
		return g.apiKeyAuthMiddleware(next)
	}
}

// apiKeyAuthMiddleware is the spec-mandated default: an X-API-Key
// header checked against an in-memory set, 401 on miss or mismatch.
func (g *Gateway) apiKeyAuthMiddleware(next http.Handler) http.Handler {
	keys := make(map[string]bool, len(g.cfg.APIKeys))
	for _, k := range g.cfg.APIKeys {
		keys[k] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" || !keys[key] {
			writeErrKind(w, newErr(KindAuth, "unauthorized", "missing or invalid API key", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jwtAuthMiddleware is an alternate auth mode for operators who
// terminate auth with a JWT issuer instead of static keys.
func (g *Gateway) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeErrKind(w, newErr(KindAuth, "unauthorized", "missing bearer token", ""))
			return
		}
		tokenStr := header[len(prefix):]
		_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(g.cfg.JWTSecret), nil
		})
		if err != nil {
			writeErrKind(w, newErr(KindAuth, "unauthorized", "invalid token", ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.metrics.increment(r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Start begins serving. Blocks until the listener errors or is closed.
func (g *Gateway) Start() error {
	return g.server.ListenAndServe()
}

// Stop gracefully shuts the server down within the given context.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// --- response envelope, grounded on the teacher's APIResponse/APIError ---

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, apiResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Details: details},
	})
}
