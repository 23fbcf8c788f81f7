package risk

import (
	"testing"
	"time"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

func TestDetectClustersRingAboveThresholds(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	a := graph.Key(graph.KindUser, "a")
	b := graph.Key(graph.KindDevice, "b")
	c := graph.Key(graph.KindIP, "c")

	// a -> b -> c -> a: a 3-cycle, a strongly connected component.
	g.UpsertEdge(a, graph.KindUser, b, graph.KindDevice, 0.5, now)
	g.UpsertEdge(b, graph.KindDevice, c, graph.KindIP, 0.5, now)
	g.UpsertEdge(c, graph.KindIP, a, graph.KindUser, 0.5, now)
	for _, k := range []string{a, b, c} {
		g.SetRisk(k, 0.7) // above ringMinRisk
	}

	hits := DetectClusters(g, a)
	found := false
	for _, h := range hits {
		if h.Kind == "ring" {
			found = true
			if h.Boost != boostRing {
				t.Errorf("ring boost = %v, want %v", h.Boost, boostRing)
			}
			if len(h.Members) < ringMinSize {
				t.Errorf("ring has %d members, want >= %d", len(h.Members), ringMinSize)
			}
		}
	}
	if !found {
		t.Errorf("expected a ring to be detected, got %+v", hits)
	}
}

func TestDetectClustersRingBelowRiskNotFlagged(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	a := graph.Key(graph.KindUser, "a")
	b := graph.Key(graph.KindDevice, "b")
	c := graph.Key(graph.KindIP, "c")
	g.UpsertEdge(a, graph.KindUser, b, graph.KindDevice, 0.5, now)
	g.UpsertEdge(b, graph.KindDevice, c, graph.KindIP, 0.5, now)
	g.UpsertEdge(c, graph.KindIP, a, graph.KindUser, 0.5, now)
	for _, k := range []string{a, b, c} {
		g.SetRisk(k, 0.1) // below ringMinRisk
	}

	hits := DetectClusters(g, a)
	for _, h := range hits {
		if h.Kind == "ring" {
			t.Errorf("a low-risk cycle must not be flagged as a ring, got %+v", h)
		}
	}
}

func TestDetectClustersStar(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	hub := graph.Key(graph.KindUser, "hub")
	g.SetRisk(hub, 0) // set after edges below; risk assigned post-upsert

	for i := 0; i < starMinOutDegree; i++ {
		leaf := graph.Key(graph.KindDevice, string(rune('a'+i)))
		g.UpsertEdge(hub, graph.KindUser, leaf, graph.KindDevice, 0.5, now)
	}
	g.SetRisk(hub, 0.8) // above starMinRisk

	hits := DetectClusters(g, hub)
	found := false
	for _, h := range hits {
		if h.Kind == "star" {
			found = true
			if h.Boost != boostStar {
				t.Errorf("star boost = %v, want %v", h.Boost, boostStar)
			}
			if len(h.Members) != starMinOutDegree+1 {
				t.Errorf("star has %d members, want %d (hub + leaves)", len(h.Members), starMinOutDegree+1)
			}
		}
	}
	if !found {
		t.Errorf("expected a star to be detected, got %+v", hits)
	}
}

func TestDetectClustersStarBelowOutDegreeNotFlagged(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	hub := graph.Key(graph.KindUser, "hub")
	for i := 0; i < starMinOutDegree-1; i++ {
		leaf := graph.Key(graph.KindDevice, string(rune('a'+i)))
		g.UpsertEdge(hub, graph.KindUser, leaf, graph.KindDevice, 0.5, now)
	}
	g.SetRisk(hub, 0.9)

	hits := DetectClusters(g, hub)
	for _, h := range hits {
		if h.Kind == "star" {
			t.Errorf("out-degree below threshold must not be flagged as a star, got %+v", h)
		}
	}
}

func TestDetectClustersDenseSubgraph(t *testing.T) {
	g := graph.NewStore()
	now := time.Now()
	// A fully-connected directed triangle: every pair has both directions,
	// so density over the clique is 1.0, well above denseMinDensity.
	keys := []string{
		graph.Key(graph.KindUser, "a"),
		graph.Key(graph.KindDevice, "b"),
		graph.Key(graph.KindIP, "c"),
	}
	kinds := []graph.NodeKind{graph.KindUser, graph.KindDevice, graph.KindIP}
	for i, from := range keys {
		for j, to := range keys {
			if i == j {
				continue
			}
			g.UpsertEdge(from, kinds[i], to, kinds[j], 0.5, now)
		}
	}
	for _, k := range keys {
		g.SetRisk(k, 0.7)
	}

	hits := DetectClusters(g, keys[0])
	found := false
	for _, h := range hits {
		if h.Kind == "dense" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a dense subgraph to be detected, got %+v", hits)
	}
}

func TestMaxBoostNonCompounding(t *testing.T) {
	hits := []ClusterHit{
		{Kind: "dense", Boost: boostDense},
		{Kind: "ring", Boost: boostRing},
		{Kind: "star", Boost: boostStar},
	}
	got := MaxBoost(hits)
	if got != boostRing && got != boostStar {
		t.Errorf("MaxBoost = %v, want the larger of ring/star (%v), never summed", got, boostRing)
	}
	sum := boostDense + boostRing + boostStar
	if got >= sum {
		t.Errorf("MaxBoost must never reach the additive sum %v, got %v which is >=", sum, got)
	}
}

func TestMaxBoostEmpty(t *testing.T) {
	if got := MaxBoost(nil); got != 0 {
		t.Errorf("MaxBoost(nil) = %v, want 0", got)
	}
}
