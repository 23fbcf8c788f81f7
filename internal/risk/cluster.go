package risk

import "github.com/fraudmesh/fraudmesh/internal/graph"

// Cluster boost weights, applied by the engine as a non-compounding
// max across whatever cluster kinds touch the focal user (never summed).
const (
	boostRing  = 0.15
	boostStar  = 0.15
	boostDense = 0.10

	ringMinSize    = 3
	ringMinRisk    = 0.6
	denseMinSize   = 3
	denseMinRisk   = 0.6
	denseMinDensity = 0.5
	starMinOutDegree = 5
	starMinRisk      = 0.6
)

// DetectClusters looks for rings, dense subgraphs and stars touching
// focal, restricted to focal's 2-hop outgoing neighborhood. Per-event
// synchronous detection is bounded to this local subgraph rather than
// the whole graph (see SPEC_FULL.md §4.5 / DESIGN.md) to keep the
// per-event cost proportional to the event, not to graph size.
func DetectClusters(g *graph.Store, focal string) []ClusterHit {
	local := localSubgraph(g, focal, 2)
	if len(local) < 2 {
		return nil
	}

	var hits []ClusterHit
	hits = append(hits, detectRings(g, local)...)
	hits = append(hits, detectDense(g, local)...)
	if h, ok := detectStar(g, focal); ok {
		hits = append(hits, h)
	}

	// Keep only clusters that have focal as a member.
	touching := hits[:0]
	for _, h := range hits {
		for _, m := range h.Members {
			if m == focal {
				touching = append(touching, h)
				break
			}
		}
	}
	return touching
}

// localSubgraph returns the focal node plus everything reachable from
// it within maxDepth outgoing hops.
func localSubgraph(g *graph.Store, focal string, maxDepth int) []string {
	keys := []string{focal}
	g.NeighborsWithin(focal, maxDepth, func(key string, depth int) {
		keys = append(keys, key)
	})
	return keys
}

func meanRisk(g *graph.Store, keys []string) float64 {
	if len(keys) == 0 {
		return 0
	}
	var sum float64
	for _, k := range keys {
		if n, ok := g.GetNodeLocked(k); ok {
			sum += n.RiskScore
		}
	}
	return sum / float64(len(keys))
}

// detectRings finds strongly connected components of size >= ringMinSize
// within the local set (edges restricted to endpoints both in local),
// using Tarjan's algorithm, and keeps those with mean risk >= ringMinRisk.
func detectRings(g *graph.Store, local []string) []ClusterHit {
	inLocal := make(map[string]bool, len(local))
	for _, k := range local {
		inLocal[k] = true
	}

	index := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	counter := 0
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, edge := range g.SuccessorsLocked(v) {
			w := edge.To
			if !inLocal[w] {
				continue
			}
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var comp []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for _, v := range local {
		if _, seen := index[v]; !seen {
			strongconnect(v)
		}
	}

	var hits []ClusterHit
	for _, comp := range sccs {
		if len(comp) < ringMinSize {
			continue
		}
		if meanRisk(g, comp) < ringMinRisk {
			continue
		}
		hits = append(hits, ClusterHit{Kind: "ring", Members: comp, Boost: boostRing})
	}
	return hits
}

// detectDense finds maximal cliques on the undirected projection of the
// local set (an edge exists between a and b if either direction exists
// in the directed graph) whose directed-edge density over the clique
// meets denseMinDensity, using Bron-Kerbosch (the local set is small by
// construction, so this stays cheap).
func detectDense(g *graph.Store, local []string) []ClusterHit {
	undirected := make(map[string]map[string]bool, len(local))
	for _, k := range local {
		undirected[k] = make(map[string]bool)
	}
	directedCount := func(a, b string) int {
		n := 0
		for _, e := range g.SuccessorsLocked(a) {
			if e.To == b {
				n++
			}
		}
		return n
	}
	inLocal := make(map[string]bool, len(local))
	for _, k := range local {
		inLocal[k] = true
	}
	for _, a := range local {
		for _, e := range g.SuccessorsLocked(a) {
			if inLocal[e.To] {
				undirected[a][e.To] = true
				undirected[e.To][a] = true
			}
		}
	}

	var cliques [][]string
	var bronKerbosch func(r, p, x map[string]bool)
	bronKerbosch = func(r, p, x map[string]bool) {
		if len(p) == 0 && len(x) == 0 {
			if len(r) >= denseMinSize {
				members := make([]string, 0, len(r))
				for k := range r {
					members = append(members, k)
				}
				cliques = append(cliques, members)
			}
			return
		}
		for v := range cloneSet(p) {
			nv := undirected[v]
			rNext := cloneSet(r)
			rNext[v] = true
			pNext := intersect(p, nv)
			xNext := intersect(x, nv)
			bronKerbosch(rNext, pNext, xNext)
			delete(p, v)
			x[v] = true
		}
	}

	pSet := make(map[string]bool, len(local))
	for _, k := range local {
		pSet[k] = true
	}
	bronKerbosch(map[string]bool{}, pSet, map[string]bool{})

	var hits []ClusterHit
	for _, clique := range cliques {
		k := len(clique)
		if k < denseMinSize {
			continue
		}
		var edges int
		for _, a := range clique {
			for _, b := range clique {
				if a == b {
					continue
				}
				edges += directedCount(a, b)
			}
		}
		possible := k * (k - 1)
		density := 0.0
		if possible > 0 {
			density = float64(edges) / float64(possible)
		}
		if density < denseMinDensity {
			continue
		}
		if meanRisk(g, clique) < denseMinRisk {
			continue
		}
		hits = append(hits, ClusterHit{Kind: "dense", Members: clique, Boost: boostDense})
	}
	return hits
}

// detectStar reports whether focal itself is a star hub: out-degree
// at or above starMinOutDegree and its own risk at or above starMinRisk.
func detectStar(g *graph.Store, focal string) (ClusterHit, bool) {
	node, ok := g.GetNodeLocked(focal)
	if !ok {
		return ClusterHit{}, false
	}
	successors := g.SuccessorsLocked(focal)
	if len(successors) < starMinOutDegree || node.RiskScore < starMinRisk {
		return ClusterHit{}, false
	}
	members := make([]string, 0, len(successors)+1)
	members = append(members, focal)
	for _, e := range successors {
		members = append(members, e.To)
	}
	return ClusterHit{Kind: "star", Members: members, Boost: boostStar}, true
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

// MaxBoost picks the single largest boost among hits, per the
// non-compounding cluster-boost policy; returns 0 if hits is empty.
func MaxBoost(hits []ClusterHit) float64 {
	var max float64
	for _, h := range hits {
		if h.Boost > max {
			max = h.Boost
		}
	}
	return max
}
