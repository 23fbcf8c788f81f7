package risk

import "github.com/fraudmesh/fraudmesh/internal/graph"

// Propagation parameters fixed by the scoring contract: see baserisk.go
// for why these are not configuration knobs.
const (
	propagationAlpha     = 0.5
	propagationMaxDepth  = 2
	propagationThreshold = 0.1
)

// Propagate walks outward from source up to propagationMaxDepth hops,
// writing new_risk(M) = min(1, b_M + alpha*r_N*w) into each node the
// first time it is reached (first-touch-wins: a node already written
// this call is never revisited even if a second path reaches it), where
// r_N is the risk the frontier node itself carried into this layer (its
// own new_risk if it was written this call, or its stored risk if it is
// the source). The threshold only gates entry: if source's own risk is
// below propagationThreshold the walk never starts and nothing is
// written; once started, every reachable edge within max depth is
// written regardless of how small its individual contribution is.
// Returns the deepest layer that produced a write (0 if nothing
// propagated) and the set of writes made.
//
// Must be called by a caller already holding the store's lock (e.g. the
// engine's per-event critical section); it reads and writes through the
// store's *Locked methods rather than re-locking.
func Propagate(g *graph.Store, source string) (depthReached int, hits []PropagationHit) {
	type frontierItem struct {
		key   string
		risk  float64
		depth int
	}

	sourceNode, ok := g.GetNodeLocked(source)
	if !ok || sourceNode.RiskScore < propagationThreshold {
		return 0, nil
	}

	visited := map[string]bool{source: true}
	frontier := []frontierItem{{source, sourceNode.RiskScore, 0}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= propagationMaxDepth {
			continue
		}

		for _, edge := range g.SuccessorsLocked(cur.key) {
			if visited[edge.To] {
				continue
			}

			target, ok := g.GetNodeLocked(edge.To)
			if !ok {
				continue
			}
			newRisk := target.RiskScore + propagationAlpha*cur.risk*edge.Weight
			if newRisk > 1.0 {
				newRisk = 1.0
			}

			g.SetRiskLocked(edge.To, newRisk)
			visited[edge.To] = true
			depth := cur.depth + 1
			if depth > depthReached {
				depthReached = depth
			}
			hits = append(hits, PropagationHit{
				Key:      edge.To,
				Risk:     newRisk,
				Depth:    depth,
				HighRisk: newRisk > 0.6,
			})
			frontier = append(frontier, frontierItem{edge.To, newRisk, depth})
		}
	}
	return depthReached, hits
}
