package graph

import (
	"testing"
	"time"
)

func TestUpsertNodeCreatesOnFirstSight(t *testing.T) {
	s := NewStore()
	now := time.Now()
	key := Key(KindUser, "u1")

	s.UpsertNode(key, KindUser, now)
	n, ok := s.GetNode(key)
	if !ok {
		t.Fatalf("expected node to exist after upsert")
	}
	if n.Kind != KindUser {
		t.Errorf("kind = %v, want %v", n.Kind, KindUser)
	}
	if !n.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", n.LastSeen, now)
	}
	if s.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1", s.NodeCount())
	}
}

func TestUpsertNodeTouchesLastSeenOnRepeat(t *testing.T) {
	s := NewStore()
	key := Key(KindUser, "u1")
	t0 := time.Now()
	t1 := t0.Add(time.Hour)

	s.UpsertNode(key, KindUser, t0)
	s.UpsertNode(key, KindUser, t1)

	n, _ := s.GetNode(key)
	if !n.LastSeen.Equal(t1) {
		t.Errorf("LastSeen = %v, want %v", n.LastSeen, t1)
	}
	if s.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1 (no duplicate on repeat upsert)", s.NodeCount())
	}
}

func TestUpsertEdgeLastWriterWinsOnWeight(t *testing.T) {
	s := NewStore()
	now := time.Now()
	from := Key(KindUser, "u1")
	to := Key(KindDevice, "d1")

	s.UpsertEdge(from, KindUser, to, KindDevice, 0.5, now)
	s.UpsertEdge(from, KindUser, to, KindDevice, 0.9, now)

	edges := s.Successors(from)
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge, got %d", len(edges))
	}
	if edges[0].Weight != 0.9 {
		t.Errorf("Weight = %v, want 0.9 (last write wins)", edges[0].Weight)
	}
	if edges[0].InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", edges[0].InteractionCount)
	}
}

func TestHasEdge(t *testing.T) {
	s := NewStore()
	now := time.Now()
	from := Key(KindUser, "u1")
	to := Key(KindIP, "1.2.3.4")

	if s.HasEdge(from, to) {
		t.Fatal("HasEdge true before any edge created")
	}
	s.UpsertEdge(from, KindUser, to, KindIP, 0.7, now)
	if !s.HasEdge(from, to) {
		t.Fatal("HasEdge false after edge created")
	}
	if s.HasEdge(to, from) {
		t.Fatal("HasEdge true for the reverse direction of a one-way edge")
	}
}

func TestNeighborsWithinBoundsDepthAndVisitsFirstTouch(t *testing.T) {
	s := NewStore()
	now := time.Now()

	// a -> b -> c -> d (chain of 3 hops)
	a, b, c, d := Key(KindUser, "a"), Key(KindDevice, "b"), Key(KindIP, "c"), Key(KindMerchant, "d")
	s.UpsertEdge(a, KindUser, b, KindDevice, 0.5, now)
	s.UpsertEdge(b, KindDevice, c, KindIP, 0.5, now)
	s.UpsertEdge(c, KindIP, d, KindMerchant, 0.5, now)
	// extra edge back into b to verify first-touch (no duplicate visit)
	s.UpsertEdge(c, KindIP, b, KindDevice, 0.5, now)

	visited := map[string]int{}
	s.NeighborsWithin(a, 2, func(key string, depth int) {
		visited[key] = depth
	})

	if _, ok := visited[d]; ok {
		t.Errorf("node d at depth 3 should not be visited with maxDepth=2")
	}
	if depth, ok := visited[b]; !ok || depth != 1 {
		t.Errorf("b should be visited at depth 1, got %v (present=%v)", depth, ok)
	}
	if depth, ok := visited[c]; !ok || depth != 2 {
		t.Errorf("c should be visited at depth 2, got %v (present=%v)", depth, ok)
	}
	if len(visited) != 2 {
		t.Errorf("expected exactly 2 visited nodes, got %d: %v", len(visited), visited)
	}
}

func TestSetRiskOnUnknownKeyIsNoop(t *testing.T) {
	s := NewStore()
	s.SetRisk("does_not_exist", 0.9)
	if s.NodeCount() != 0 {
		t.Errorf("SetRisk on an unknown key must not create a node")
	}
}

func TestEdgeCount(t *testing.T) {
	s := NewStore()
	now := time.Now()
	a, b, c := Key(KindUser, "a"), Key(KindDevice, "b"), Key(KindIP, "c")
	s.UpsertEdge(a, KindUser, b, KindDevice, 0.5, now)
	s.UpsertEdge(a, KindUser, c, KindIP, 0.5, now)
	s.UpsertEdge(b, KindDevice, c, KindIP, 0.5, now)
	if got := s.EdgeCount(); got != 3 {
		t.Errorf("EdgeCount = %d, want 3", got)
	}
}
