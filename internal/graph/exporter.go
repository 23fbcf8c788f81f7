package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ExporterConfig configures the optional Neo4j mirror. The teacher's
// GraphConfig-shaped connection settings are reused here; the role is
// demoted from "the" graph store (which must stay in-process and
// non-durable) to an offline, best-effort export sink for analysts.
type ExporterConfig struct {
	URI         string
	Username    string
	Password    string
	MaxPoolSize int
	Interval    time.Duration
}

func DefaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		URI:         "bolt://localhost:7687",
		MaxPoolSize: 20,
		Interval:    time.Minute,
	}
}

// Exporter periodically mirrors a Store's nodes and edges into Neo4j
// for offline analyst queries (attack-path style exploration of fraud
// rings). It never participates in the scoring path: NeighborsWithin,
// base-risk evaluation and propagation all read the in-process Store
// directly, never the mirror.
type Exporter struct {
	driver neo4j.DriverWithContext
	store  *Store
	cfg    ExporterConfig
	stop   chan struct{}
}

// NewExporter dials Neo4j and verifies connectivity eagerly so startup
// fails fast when the export sink is misconfigured; once running,
// individual export cycles fail open and are logged, never fatal.
func NewExporter(store *Store, cfg ExporterConfig) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
			c.MaxConnectionLifetime = time.Hour
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Exporter{driver: driver, store: store, cfg: cfg, stop: make(chan struct{})}, nil
}

// Run exports on cfg.Interval until ctx is cancelled or Close is called.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.exportOnce(ctx); err != nil {
				log.Printf("graph export: cycle failed: %v", err)
			}
		}
	}
}

func (e *Exporter) Close() {
	close(e.stop)
	_ = e.driver.Close(context.Background())
}

func (e *Exporter) exportOnce(ctx context.Context) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	var nodes []Node
	e.store.IterNodes(func(n Node) { nodes = append(nodes, n) })

	for _, n := range nodes {
		_, err := session.Run(ctx,
			`MERGE (e:Entity {key: $key}) SET e.kind = $kind, e.risk = $risk, e.lastSeen = $lastSeen`,
			map[string]any{
				"key":      n.Key,
				"kind":     string(n.Kind),
				"risk":     n.RiskScore,
				"lastSeen": n.LastSeen.Format(time.RFC3339),
			})
		if err != nil {
			return fmt.Errorf("merge entity %s: %w", n.Key, err)
		}
		for _, edge := range e.store.Successors(n.Key) {
			_, err := session.Run(ctx,
				`MATCH (a:Entity {key: $from}) MATCH (b:Entity {key: $to})
				 MERGE (a)-[r:INTERACTS]->(b) SET r.weight = $weight, r.count = $count`,
				map[string]any{
					"from":   edge.From,
					"to":     edge.To,
					"weight": edge.Weight,
					"count":  edge.InteractionCount,
				})
			if err != nil {
				return fmt.Errorf("merge edge %s->%s: %w", edge.From, edge.To, err)
			}
		}
	}
	return nil
}
