package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

// fakeCache is a minimal in-memory risk.Cache for tests.
type fakeCache struct {
	mu   sync.Mutex
	risk map[string]float64
}

func newFakeCache() *fakeCache { return &fakeCache{risk: make(map[string]float64)} }

func (c *fakeCache) GetUserRisk(ctx context.Context, userID string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.risk[userID]
	return r, ok, nil
}

func (c *fakeCache) SetUserRisk(ctx context.Context, userID string, risk float64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.risk[userID] = risk
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.risk, userID)
	return nil
}

// fakePersist records every call for assertions.
type fakePersist struct {
	mu      sync.Mutex
	records []TransactionRecord
}

func (p *fakePersist) Record(ctx context.Context, rec TransactionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *fakePersist) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func newTestEngine() (*Engine, *graph.Store, *fakeCache, *fakePersist) {
	g := graph.NewStore()
	cache := newFakeCache()
	persist := &fakePersist{}
	cfg := DefaultEngineConfig()
	cfg.EnableDecaySweep = false
	e := NewEngine(cfg, g, cache, persist, nil, nil, nil, nil)
	return e, g, cache, persist
}

func TestProcessEventFirstSightAllRulesTrigger(t *testing.T) {
	e, _, _, persist := newTestEngine()
	ev := Event{UserID: "u1", DeviceID: "d1", IPAddress: "1.2.3.4", MerchantID: "m1", Amount: 1500, Timestamp: time.Now()}

	exp, err := e.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("ProcessEvent error: %v", err)
	}

	want := weightHighAmount + weightNewDevice + weightNewIP + weightNewMerchant
	if !almostEqual(exp.RiskScore, want) {
		t.Errorf("RiskScore = %v, want %v", exp.RiskScore, want)
	}
	if len(exp.RulesTriggered) != 4 {
		t.Errorf("RulesTriggered count = %d, want 4", len(exp.RulesTriggered))
	}
	if persist.count() != 1 {
		t.Errorf("persist called %d times, want 1", persist.count())
	}
}

func TestProcessEventUpsertsEdgesRegardlessOfCacheHit(t *testing.T) {
	e, g, cache, _ := newTestEngine()
	ev := Event{UserID: "u1", DeviceID: "d1", IPAddress: "1.2.3.4", MerchantID: "m1", Amount: 50, Timestamp: time.Now()}

	// Force a cache hit above the fast-path threshold before the first event.
	cache.SetUserRisk(context.Background(), ev.UserID, 0.95, time.Minute)

	_, err := e.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("ProcessEvent error: %v", err)
	}

	userKey := graph.Key(graph.KindUser, ev.UserID)
	deviceKey := graph.Key(graph.KindDevice, ev.DeviceID)
	if !g.HasEdge(userKey, deviceKey) {
		t.Error("user-device edge must be upserted even on a cache hit")
	}
}

func TestProcessEventSecondEventNoNewRules(t *testing.T) {
	e, _, _, _ := newTestEngine()
	ev := Event{UserID: "u1", DeviceID: "d1", IPAddress: "1.2.3.4", MerchantID: "m1", Amount: 50, Timestamp: time.Now()}

	if _, err := e.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("first ProcessEvent error: %v", err)
	}
	// Same device/ip/merchant on the second event: none of the "new_*"
	// rules should trigger again, and the amount is below threshold.
	ev2 := ev
	ev2.Timestamp = ev.Timestamp.Add(time.Minute)
	exp2, err := e.ProcessEvent(context.Background(), ev2)
	if err != nil {
		t.Fatalf("second ProcessEvent error: %v", err)
	}
	if len(exp2.RulesTriggered) != 0 {
		t.Errorf("second event RulesTriggered = %+v, want none", exp2.RulesTriggered)
	}
}

func TestProcessEventRespectsContextCancellationBeforeLock(t *testing.T) {
	e, _, _, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := Event{UserID: "u1", DeviceID: "d1", IPAddress: "1.2.3.4", MerchantID: "m1", Amount: 50, Timestamp: time.Now()}
	_, err := e.ProcessEvent(ctx, ev)
	if err == nil {
		t.Error("expected an error from ProcessEvent with an already-cancelled context")
	}
}

func TestGetStatsReflectsGraphSize(t *testing.T) {
	e, _, _, _ := newTestEngine()
	ev := Event{UserID: "u1", DeviceID: "d1", IPAddress: "1.2.3.4", MerchantID: "m1", Amount: 50, Timestamp: time.Now()}
	if _, err := e.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("ProcessEvent error: %v", err)
	}
	stats := e.GetStats()
	if stats.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4 (user, device, ip, merchant)", stats.NodeCount)
	}
	if stats.EdgeCount != 4 {
		t.Errorf("EdgeCount = %d, want 4 (user-device, user-ip, device-ip, device-merchant)", stats.EdgeCount)
	}
}
