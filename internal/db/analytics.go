package db

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// similarUsersLimit bounds the pgvector nearest-neighbor scan UserHistory
// runs alongside the transaction query.
const similarUsersLimit = 5

// RiskDistributionBucket is one row of GET /api/analytics/risk-distribution.
type RiskDistributionBucket struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// RiskDistribution buckets every transaction in the last `hours` hours
// into low/medium/high by the same thresholds risk.Classify uses.
func (s *Store) RiskDistribution(ctx context.Context, hours int) ([]RiskDistributionBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			CASE
				WHEN risk_score < 0.3 THEN 'low'
				WHEN risk_score < 0.6 THEN 'medium'
				ELSE 'high'
			END AS category,
			COUNT(*)
		FROM transactions
		WHERE created_at >= NOW() - ($1 || ' hours')::interval
		GROUP BY category`, hours)
	if err != nil {
		return nil, fmt.Errorf("query risk distribution: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{"low": 0, "medium": 0, "high": 0}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RiskDistributionBucket, 0, 3)
	for _, cat := range []string{"low", "medium", "high"} {
		out = append(out, RiskDistributionBucket{Category: cat, Count: counts[cat]})
	}
	return out, nil
}

// UserHistoryPoint is one transaction in a user's recent history.
type UserHistoryPoint struct {
	TransactionID string    `json:"transaction_id"`
	RiskScore     float64   `json:"risk_score"`
	Amount        float64   `json:"transaction_amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserHistoryResponse is the full payload for GET
// /api/analytics/user/{user_id}: the user's recent transactions plus
// the peers pgvector finds closest to their behavioral embedding.
type UserHistoryResponse struct {
	Transactions []UserHistoryPoint `json:"transactions"`
	SimilarUsers []string           `json:"similar_users"`
}

// UserHistory returns userID's transactions from the last `days` days,
// newest first, alongside the similarUsersLimit users whose behavioral
// vector is closest to userID's, for GET /api/analytics/user/{user_id}.
func (s *Store) UserHistory(ctx context.Context, userID string, days int) (UserHistoryResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, risk_score, transaction_amount, created_at
		FROM transactions
		WHERE user_id = $1 AND created_at >= NOW() - ($2 || ' days')::interval
		ORDER BY created_at DESC`, userID, days)
	if err != nil {
		return UserHistoryResponse{}, fmt.Errorf("query user history: %w", err)
	}
	defer rows.Close()

	var out []UserHistoryPoint
	for rows.Next() {
		var p UserHistoryPoint
		if err := rows.Scan(&p.TransactionID, &p.RiskScore, &p.Amount, &p.Timestamp); err != nil {
			return UserHistoryResponse{}, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return UserHistoryResponse{}, err
	}

	similar, err := s.SimilarUsers(ctx, userID, similarUsersLimit)
	if err != nil {
		return UserHistoryResponse{}, fmt.Errorf("query similar users: %w", err)
	}
	return UserHistoryResponse{Transactions: out, SimilarUsers: similar}, nil
}

// TopRiskyUser is one row of GET /api/analytics/top-risky.
type TopRiskyUser struct {
	UserID  string  `json:"user_id"`
	MaxRisk float64 `json:"max_risk"`
}

// TopRisky returns the limit users with the highest observed risk_score,
// most recent-first among ties, matching original_source's top-risky query.
func (s *Store) TopRisky(ctx context.Context, limit int) ([]TopRiskyUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, MAX(risk_score) AS max_risk
		FROM transactions
		GROUP BY user_id
		ORDER BY max_risk DESC, MAX(created_at) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top risky: %w", err)
	}
	defer rows.Close()

	var out []TopRiskyUser
	for rows.Next() {
		var t TopRiskyUser
		if err := rows.Scan(&t.UserID, &t.MaxRisk); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Performance is the summary returned by GET /api/analytics/performance.
type Performance struct {
	EventCount  int     `json:"event_count"`
	P50LatencyMS float64 `json:"p50_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	P99LatencyMS float64 `json:"p99_latency_ms"`
}

// Performance computes simplified (non-interpolated, nearest-rank)
// latency percentiles over the last `hours` hours, mirroring
// original_source/app/analytics's simplified percentile approach.
func (s *Store) Performance(ctx context.Context, hours int) (Performance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latency_ms FROM transactions
		WHERE created_at >= NOW() - ($1 || ' hours')::interval
		ORDER BY latency_ms ASC`, hours)
	if err != nil {
		return Performance{}, fmt.Errorf("query performance: %w", err)
	}
	defer rows.Close()

	var latencies []float64
	for rows.Next() {
		var l float64
		if err := rows.Scan(&l); err != nil {
			return Performance{}, err
		}
		latencies = append(latencies, l)
	}
	if err := rows.Err(); err != nil {
		return Performance{}, err
	}
	sort.Float64s(latencies)

	return Performance{
		EventCount:   len(latencies),
		P50LatencyMS: nearestRankPercentile(latencies, 0.50),
		P95LatencyMS: nearestRankPercentile(latencies, 0.95),
		P99LatencyMS: nearestRankPercentile(latencies, 0.99),
	}, nil
}

func nearestRankPercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
