package risk

import (
	"math"
	"testing"
	"time"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

func TestDecayZeroAge(t *testing.T) {
	now := time.Now()
	got := Decay(0.8, now, now)
	if !almostEqual(got, 0.8) {
		t.Errorf("Decay at zero age = %v, want 0.8 unchanged", got)
	}
}

func TestDecaySevenDays(t *testing.T) {
	now := time.Now()
	lastSeen := now.Add(-7 * 24 * time.Hour)
	got := Decay(0.80, lastSeen, now)
	want := 0.80 * math.Pow(decayFactor, 7)
	if !almostEqual(got, want) {
		t.Errorf("Decay after 7 days = %v, want %v", got, want)
	}
}

func TestDecayFloorsAtMinRisk(t *testing.T) {
	now := time.Now()
	lastSeen := now.Add(-10 * 365 * 24 * time.Hour) // 10 years, decays far below minRisk
	got := Decay(0.5, lastSeen, now)
	if got != minRisk {
		t.Errorf("Decay after 10 years = %v, want floor %v", got, minRisk)
	}
}

func TestDecayIsIdempotentAtSameAge(t *testing.T) {
	now := time.Now()
	lastSeen := now.Add(-3 * 24 * time.Hour)
	a := Decay(0.7, lastSeen, now)
	b := Decay(0.7, lastSeen, now)
	if a != b {
		t.Errorf("two calls with the same inputs produced different results: %v vs %v", a, b)
	}
}

func TestDecayNeverNegativeAge(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour) // lastSeen after now: a clock skew edge case
	got := Decay(0.5, future, now)
	if got != 0.5 {
		t.Errorf("Decay with lastSeen after now = %v, want unchanged 0.5 (age clamped to 0)", got)
	}
}

func TestAgeDaysMatchesDecayWindow(t *testing.T) {
	now := time.Now()
	lastSeen := now.Add(-2 * 24 * time.Hour)
	got := AgeDays(lastSeen, now)
	if !almostEqual(got, 2.0) {
		t.Errorf("AgeDays = %v, want 2.0", got)
	}
}

func TestSweepDecayOnlyWritesChangedNodes(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	stale := graph.Key(graph.KindUser, "stale")
	fresh := graph.Key(graph.KindUser, "fresh")

	g.UpsertNode(stale, graph.KindUser, now.Add(-30*24*time.Hour))
	g.SetRisk(stale, 0.9)
	g.UpsertNode(fresh, graph.KindUser, now)
	g.SetRisk(fresh, 0.9)

	SweepDecay(g, now)

	staleNode, _ := g.GetNode(stale)
	freshNode, _ := g.GetNode(fresh)

	want := Decay(0.9, now.Add(-30*24*time.Hour), now)
	if !almostEqual(staleNode.RiskScore, want) {
		t.Errorf("stale node risk = %v, want %v", staleNode.RiskScore, want)
	}
	if freshNode.RiskScore != 0.9 {
		t.Errorf("fresh node risk = %v, want unchanged 0.9 (zero age decay is a no-op)", freshNode.RiskScore)
	}
}
