// Package db implements the durable collaborators backed by Postgres:
// an append-only transaction log and a pgvector-indexed behavioral
// embedding per user, consumed by the analytics endpoints. Grounded on
// original_source/app/db/{database,models}.py's session-per-call shape,
// translated to Go's database/sql + lib/pq idiom the pgvector-go driver
// the teacher's go.mod already carries is built against.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/fraudmesh/fraudmesh/internal/risk"
)

// Store wraps a *sql.DB and implements risk.PersistentLog plus the
// queries backing GET /api/analytics/*.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at databaseURL and ensures the schema
// exists. Startup fails fast on a bad DSN or missing schema privileges;
// once running, individual queries are the caller's responsibility to
// bound with a context timeout (per spec §6's 200ms default).
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: sqlDB}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping satisfies health.Pinger.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id     TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			device_id          TEXT NOT NULL,
			ip_address         TEXT NOT NULL,
			merchant_id        TEXT NOT NULL,
			transaction_amount DOUBLE PRECISION NOT NULL,
			risk_score         DOUBLE PRECISION NOT NULL,
			propagation_depth  INTEGER NOT NULL,
			latency_ms         DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
		`CREATE TABLE IF NOT EXISTS user_behavior_vectors (
			user_id    TEXT PRIMARY KEY,
			embedding  vector(4) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record appends one transaction and refreshes the user's behavioral
// vector. Implements risk.PersistentLog.
func (s *Store) Record(ctx context.Context, rec risk.TransactionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions
			(transaction_id, user_id, device_id, ip_address, merchant_id,
			 transaction_amount, risk_score, propagation_depth, latency_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		rec.TransactionID, rec.UserID, rec.DeviceID, rec.IPAddress, rec.MerchantID,
		rec.Amount, rec.RiskScore, rec.PropagationDepth, rec.LatencyMS, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return s.updateBehaviorVector(ctx, rec)
}

// updateBehaviorVector recomputes the user's 4-dimensional feature
// vector ([log_amount, avg_risk, unique_device_count, unique_ip_count])
// from the transaction history and upserts it with pgvector-go's Vector
// type. This feeds only the "similar risky users" analytics query, never
// the scoring path.
func (s *Store) updateBehaviorVector(ctx context.Context, rec risk.TransactionRecord) error {
	var avgRisk float64
	var deviceCount, ipCount int
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(risk_score), 0),
			COUNT(DISTINCT device_id),
			COUNT(DISTINCT ip_address)
		FROM transactions WHERE user_id = $1`, rec.UserID)
	if err := row.Scan(&avgRisk, &deviceCount, &ipCount); err != nil {
		return fmt.Errorf("aggregate behavior stats: %w", err)
	}

	vec := pgvector.NewVector([]float32{
		float32(math.Log1p(rec.Amount)),
		float32(avgRisk),
		float32(deviceCount),
		float32(ipCount),
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_behavior_vectors (user_id, embedding, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET embedding = $2, updated_at = $3`,
		rec.UserID, vec, time.Now())
	if err != nil {
		return fmt.Errorf("upsert behavior vector: %w", err)
	}
	return nil
}

// SimilarUsers returns the n users whose behavioral vector is closest
// (by pgvector cosine distance) to userID's, excluding userID itself.
func (s *Store) SimilarUsers(ctx context.Context, userID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.user_id
		FROM user_behavior_vectors b, user_behavior_vectors self
		WHERE self.user_id = $1 AND b.user_id != $1
		ORDER BY b.embedding <=> self.embedding
		LIMIT $2`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query similar users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
