package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

// Fixed edge weights for the four relationships every event upserts.
const (
	weightUserDevice     = 0.8
	weightUserIP         = 0.7
	weightDeviceIP       = 0.9
	weightDeviceMerchant = 0.6

	// cacheHitRiskThreshold gates the fast path: a cached user risk at
	// or below this never skips base-risk calculation.
	cacheHitRiskThreshold = 0.7
	cacheWriteThreshold   = 0.3
	cacheTTL              = 30 * time.Minute
)

// Cache is the hot-result collaborator (§6): a small, narrow interface
// so the engine never depends on Redis directly. Individual calls must
// enforce their own timeout and fail open; the engine treats any error
// identically to a cache miss.
type Cache interface {
	GetUserRisk(ctx context.Context, userID string) (float64, bool, error)
	SetUserRisk(ctx context.Context, userID string, risk float64, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

// TransactionRecord is the durable shape of one processed event, written
// to the persistent log and mirrored to the event bus.
type TransactionRecord struct {
	TransactionID    string    `json:"transaction_id"`
	UserID           string    `json:"user_id"`
	DeviceID         string    `json:"device_id"`
	IPAddress        string    `json:"ip_address"`
	MerchantID       string    `json:"merchant_id"`
	Amount           float64   `json:"transaction_amount"`
	RiskScore        float64   `json:"risk_score"`
	PropagationDepth int       `json:"propagation_depth"`
	Timestamp        time.Time `json:"timestamp"`
	LatencyMS        float64   `json:"latency_ms"`
}

// PersistentLog is the durable transaction log collaborator (§6).
type PersistentLog interface {
	Record(ctx context.Context, rec TransactionRecord) error
}

// EventPublisher mirrors processed transactions to an external bus
// (Kafka); best-effort, never on the critical path.
type EventPublisher interface {
	Publish(ctx context.Context, rec TransactionRecord) error
}

// Metrics is the narrow observability collaborator.
type Metrics interface {
	ObserveEvent(latency time.Duration, category Category)
	ObserveCache(hit bool)
	SetGraphSize(nodes, edges int)
}

// MerchantEnricher decorates explanations with a human merchant name.
// Never a scoring input; a failed or absent lookup falls back silently
// to the bare merchant id.
type MerchantEnricher interface {
	DisplayName(ctx context.Context, merchantID string) (string, bool)
}

// NarrativeAugmenter turns a deterministic explanation into one prose
// sentence. Never changes Category or Recommendation.
type NarrativeAugmenter interface {
	Narrate(ctx context.Context, exp Explanation) (string, bool)
}

// EngineConfig holds the engine's tunables. The scoring constants
//(alpha, max_depth, threshold, decay_factor, cluster thresholds) are
// fixed in their respective files rather than here, since the testable
// scenarios pin exact numeric outcomes to them; EngineConfig only
// covers operational behavior.
type EngineConfig struct {
	CacheTimeout   time.Duration
	PersistTimeout time.Duration
	EnableDecaySweep bool
	DecaySweepEvery  int // run a sweep every N events; 0 disables
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CacheTimeout:     50 * time.Millisecond,
		PersistTimeout:   200 * time.Millisecond,
		EnableDecaySweep: true,
		DecaySweepEvery:  50,
	}
}

// Engine is the orchestrator (§4.7): it owns the graph store and wires
// every collaborator, none of which are required to be present.
type Engine struct {
	cfg   EngineConfig
	graph *graph.Store

	cache      Cache
	persist    PersistentLog
	publisher  EventPublisher
	metrics    Metrics
	enricher   MerchantEnricher
	narrator   NarrativeAugmenter

	mu          sync.Mutex
	eventCount  int
}

// NewEngine wires an engine over g; any collaborator may be nil, in
// which case that concern is simply skipped.
func NewEngine(cfg EngineConfig, g *graph.Store, cache Cache, persist PersistentLog, publisher EventPublisher, metrics Metrics, enricher MerchantEnricher, narrator NarrativeAugmenter) *Engine {
	return &Engine{
		cfg:       cfg,
		graph:     g,
		cache:     cache,
		persist:   persist,
		publisher: publisher,
		metrics:   metrics,
		enricher:  enricher,
		narrator:  narrator,
	}
}

// ProcessEvent runs the full ten-step pipeline for one transaction
// event and returns its explanation. Steps 2-6 (graph mutation, base
// risk, propagation, decay write-back) run under the graph's single
// writer lock as one atomic unit; cache, persistence, publish and
// metrics I/O happen outside that critical section and fail open.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) (Explanation, error) {
	start := time.Now()
	txID := uuid.NewString()

	userKey := graph.Key(graph.KindUser, ev.UserID)
	deviceKey := graph.Key(graph.KindDevice, ev.DeviceID)
	ipKey := graph.Key(graph.KindIP, ev.IPAddress)
	merchantKey := graph.Key(graph.KindMerchant, ev.MerchantID)

	// Step 1: cache fast path. A cache hit above threshold skips base-risk
	// recomputation but still upserts the event's edges below, so new
	// device/IP evidence is never lost (resolves the ambiguity spec.md §9
	// flags; recorded in DESIGN.md).
	var cachedRisk float64
	var cacheHit bool
	if e.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CacheTimeout)
		risk, found, err := e.cache.GetUserRisk(cctx, ev.UserID)
		cancel()
		if err == nil && found {
			cachedRisk = risk
			cacheHit = risk > cacheHitRiskThreshold
		}
		if e.metrics != nil {
			e.metrics.ObserveCache(found)
		}
	}

	select {
	case <-ctx.Done():
		return Explanation{}, ctx.Err()
	default:
	}

	var (
		baseRisk    float64
		rules       []RuleHit
		finalRisk   float64
		propDepth   int
		propHits    []PropagationHit
		clusterHits []ClusterHit
		ageDays     float64
		postProp    float64
		postDecay   float64
	)

	e.graph.Lock()
	func() {
		defer e.graph.Unlock()

		now := ev.Timestamp
		if now.IsZero() {
			now = time.Now()
		}

		if !cacheHit {
			// Step 2: base risk against the pre-event snapshot.
			baseRisk, rules = EvaluateBaseRisk(e.graph, ev)
		} else {
			baseRisk = cachedRisk
		}

		// Capture the user's pre-event LastSeen before UpsertNode below
		// touches it to now; decay must run against the gap since the
		// user's previous activity, not against a LastSeen the current
		// event has already updated.
		var preLastSeen time.Time
		if prior, ok := e.graph.GetNodeLocked(userKey); ok {
			preLastSeen = prior.LastSeen
		} else {
			preLastSeen = now
		}

		// Step 3: upsert the four nodes and fixed-weight edges. The fourth
		// edge is device->merchant, matching base risk's new_merchant check,
		// whose "card key" is aliased to the device key (no separate card
		// node space); see DESIGN.md's Open Question resolutions.
		e.graph.UpsertNodeLocked(userKey, graph.KindUser, now)
		e.graph.UpsertNodeLocked(deviceKey, graph.KindDevice, now)
		e.graph.UpsertNodeLocked(ipKey, graph.KindIP, now)
		e.graph.UpsertNodeLocked(merchantKey, graph.KindMerchant, now)
		e.graph.UpsertEdgeLocked(userKey, graph.KindUser, deviceKey, graph.KindDevice, weightUserDevice, now)
		e.graph.UpsertEdgeLocked(userKey, graph.KindUser, ipKey, graph.KindIP, weightUserIP, now)
		e.graph.UpsertEdgeLocked(deviceKey, graph.KindDevice, ipKey, graph.KindIP, weightDeviceIP, now)
		e.graph.UpsertEdgeLocked(deviceKey, graph.KindDevice, merchantKey, graph.KindMerchant, weightDeviceMerchant, now)

		e.graph.SetRiskLocked(userKey, baseRisk)

		// Step 4 (optional): decay sweep, fail-open, paced by DecaySweepEvery.
		if e.cfg.EnableDecaySweep && e.cfg.DecaySweepEvery > 0 {
			e.mu.Lock()
			e.eventCount++
			due := e.eventCount%e.cfg.DecaySweepEvery == 0
			e.mu.Unlock()
			if due {
				SweepDecay(e.graph, now)
			}
		}

		// Step 5: propagate from the focal user and write back.
		propDepth, propHits = Propagate(e.graph, userKey)
		postProp = baseRisk
		if userNode, ok := e.graph.GetNodeLocked(userKey); ok {
			postProp = userNode.RiskScore
		}

		// Step 6: apply time-decay to the focal user's own risk, against
		// its pre-event last-seen time.
		ageDays = AgeDays(preLastSeen, now)
		postDecay = Decay(postProp, preLastSeen, now)
		e.graph.SetRiskLocked(userKey, postDecay)

		// Cluster detection and max-only boost (non-compounding).
		clusterHits = DetectClusters(e.graph, userKey)
		boost := MaxBoost(clusterHits)
		finalRisk = postDecay + boost
		if finalRisk > 1.0 {
			finalRisk = 1.0
		}
		e.graph.SetRiskLocked(userKey, finalRisk)
	}()

	select {
	case <-ctx.Done():
		// Cancellation after the graph transaction still persists and returns.
	default:
	}

	breakdown := Breakdown{
		Base:            baseRisk,
		PostPropagation: postProp,
		PostDecay:       postDecay,
		AgeDays:         ageDays,
		ClusterBoost:    MaxBoost(clusterHits),
	}

	if e.enricher != nil {
		if name, ok := e.enricher.DisplayName(ctx, ev.MerchantID); ok {
			for i, r := range rules {
				if r.Name == "new_merchant" {
					rules[i].Description = fmt.Sprintf("Merchant %q not previously used with this card", name)
				}
			}
		}
	}

	exp := BuildExplanation(txID, finalRisk, propDepth, rules, propHits, clusterHits, breakdown)

	if e.narrator != nil {
		if text, ok := e.narrator.Narrate(ctx, exp); ok {
			exp.Narrative = text
		}
	}

	rec := TransactionRecord{
		TransactionID:    txID,
		UserID:           ev.UserID,
		DeviceID:         ev.DeviceID,
		IPAddress:        ev.IPAddress,
		MerchantID:       ev.MerchantID,
		Amount:           ev.Amount,
		RiskScore:        finalRisk,
		PropagationDepth: propDepth,
		Timestamp:        ev.Timestamp,
		LatencyMS:        float64(time.Since(start).Microseconds()) / 1000.0,
	}

	// Step 8: best-effort persistence.
	if e.persist != nil {
		pctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
		if err := e.persist.Record(pctx, rec); err != nil {
			log.Printf("risk: persist transaction %s: %v", txID, err)
		}
		cancel()
	}

	if e.publisher != nil {
		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
			defer cancel()
			if err := e.publisher.Publish(pctx, rec); err != nil {
				log.Printf("risk: publish transaction %s: %v", txID, err)
			}
		}()
	}

	// Step 9: best-effort cache write when the final risk clears the bar.
	if e.cache != nil && finalRisk > cacheWriteThreshold {
		cctx, cancel := context.WithTimeout(context.Background(), e.cfg.CacheTimeout)
		if err := e.cache.SetUserRisk(cctx, ev.UserID, finalRisk, cacheTTL); err != nil {
			log.Printf("risk: cache write for user %s: %v", ev.UserID, err)
		}
		cancel()
	}

	if e.metrics != nil {
		e.metrics.ObserveEvent(time.Since(start), exp.Category)
		e.metrics.SetGraphSize(e.graph.NodeCount(), e.graph.EdgeCount())
	}

	return exp, nil
}

// Stats is the summary returned by GET /api/stats.
type Stats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// GetStats reports current graph size.
func (e *Engine) GetStats() Stats {
	return Stats{NodeCount: e.graph.NodeCount(), EdgeCount: e.graph.EdgeCount()}
}
