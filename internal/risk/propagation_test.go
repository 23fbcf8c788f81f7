package risk

import (
	"math"
	"testing"
	"time"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPropagateOneHop(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	src := graph.Key(graph.KindUser, "u1")
	dst := graph.Key(graph.KindDevice, "d1")

	g.UpsertEdge(src, graph.KindUser, dst, graph.KindDevice, 0.8, now)
	g.SetRisk(src, 0.6)
	g.SetRisk(dst, 0.1)

	depth, hits := Propagate(g, src)

	// candidate = alpha * sourceRisk * weight = 0.5 * 0.6 * 0.8 = 0.24
	// new_risk(dst) = min(1, 0.1 + 0.24) = 0.34
	want := 0.1 + propagationAlpha*0.6*0.8
	node, _ := g.GetNode(dst)
	if !almostEqual(node.RiskScore, want) {
		t.Errorf("dst risk = %v, want %v", node.RiskScore, want)
	}
	if depth != 1 {
		t.Errorf("depthReached = %d, want 1", depth)
	}
	if len(hits) != 1 || !almostEqual(hits[0].Risk, want) {
		t.Errorf("hits = %+v, want single hit at risk %v", hits, want)
	}
}

func TestPropagateSourceBelowThresholdNeverStarts(t *testing.T) {
	// The threshold only gates whether the walk starts at all, based on
	// the source's own risk; it is not re-applied per edge. With source
	// risk 0.05 < threshold 0.1, the walk must not start, even though the
	// edge would otherwise receive a non-zero write (0.5*0.05*1.0 = 0.025).
	g := graph.NewStore()
	now := time.Now()
	src := graph.Key(graph.KindUser, "u1")
	dst := graph.Key(graph.KindDevice, "d1")
	g.UpsertEdge(src, graph.KindUser, dst, graph.KindDevice, 1.0, now)
	g.SetRisk(src, 0.05)

	depth, hits := Propagate(g, src)
	if depth != 0 {
		t.Errorf("depthReached = %d, want 0 (nothing should propagate)", depth)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %+v, want none", hits)
	}
	node, _ := g.GetNode(dst)
	if node.RiskScore != 0 {
		t.Errorf("dst risk = %v, want unchanged at 0", node.RiskScore)
	}
}

func TestPropagateSmallPerEdgeCandidateStillWritesOnceStarted(t *testing.T) {
	// Once the walk has started (source risk >= threshold), every
	// reachable edge is written regardless of how small its individual
	// contribution is — the threshold is an entry gate, not a per-edge
	// filter.
	g := graph.NewStore()
	now := time.Now()
	src := graph.Key(graph.KindUser, "u1")
	dst := graph.Key(graph.KindDevice, "d1")
	g.UpsertEdge(src, graph.KindUser, dst, graph.KindDevice, 0.1, now)
	g.SetRisk(src, 0.1) // candidate = 0.5*0.1*0.1 = 0.005, well under 0.1

	depth, hits := Propagate(g, src)
	if depth != 1 {
		t.Errorf("depthReached = %d, want 1", depth)
	}
	node, _ := g.GetNode(dst)
	want := propagationAlpha * 0.1 * 0.1
	if !almostEqual(node.RiskScore, want) {
		t.Errorf("dst risk = %v, want %v", node.RiskScore, want)
	}
	if len(hits) != 1 || !almostEqual(hits[0].Risk, want) {
		t.Errorf("hits = %+v, want single hit at risk %v", hits, want)
	}
}

func TestPropagateRespectsMaxDepth(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	// Chain of full-weight edges from a risk-1.0 source, so the walk starts
	// and the depth cutoff is the only thing stopping propagation.
	a := graph.Key(graph.KindUser, "a")
	b := graph.Key(graph.KindDevice, "b")
	c := graph.Key(graph.KindIP, "c")
	d := graph.Key(graph.KindMerchant, "d")
	g.UpsertEdge(a, graph.KindUser, b, graph.KindDevice, 1.0, now)
	g.UpsertEdge(b, graph.KindDevice, c, graph.KindIP, 1.0, now)
	g.UpsertEdge(c, graph.KindIP, d, graph.KindMerchant, 1.0, now)
	g.SetRisk(a, 1.0)

	depth, hits := Propagate(g, a)
	if depth != propagationMaxDepth {
		t.Errorf("depthReached = %d, want %d", depth, propagationMaxDepth)
	}
	for _, h := range hits {
		if h.Key == d {
			t.Errorf("node d at depth 3 must not be reached when maxDepth=%d", propagationMaxDepth)
		}
	}
}

func TestPropagateFirstTouchWins(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	// a -> b, a -> c, b -> c: c is reachable via two paths; first-touch-wins
	// means only the first arrival (the direct a->c edge, same BFS layer as
	// a->b) writes c's risk, and it is not revisited through b.
	a := graph.Key(graph.KindUser, "a")
	b := graph.Key(graph.KindDevice, "b")
	c := graph.Key(graph.KindIP, "c")
	g.UpsertEdge(a, graph.KindUser, b, graph.KindDevice, 0.9, now)
	g.UpsertEdge(a, graph.KindUser, c, graph.KindIP, 0.9, now)
	g.UpsertEdge(b, graph.KindDevice, c, graph.KindIP, 0.9, now)
	g.SetRisk(a, 0.9)
	g.SetRisk(b, 0.1)

	_, hits := Propagate(g, a)

	count := 0
	for _, h := range hits {
		if h.Key == c {
			count++
		}
	}
	if count != 1 {
		t.Errorf("c should receive exactly one propagation write, got %d", count)
	}
}

func TestPropagateSaturatesAtOne(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	src := graph.Key(graph.KindUser, "u1")
	dst := graph.Key(graph.KindDevice, "d1")
	g.UpsertEdge(src, graph.KindUser, dst, graph.KindDevice, 1.0, now)
	g.SetRisk(src, 1.0)
	g.SetRisk(dst, 0.9) // 0.9 + 0.5*1.0*1.0 = 1.4, must clamp to 1.0

	Propagate(g, src)
	node, _ := g.GetNode(dst)
	if node.RiskScore != 1.0 {
		t.Errorf("dst risk = %v, want 1.0 (saturated)", node.RiskScore)
	}
}
