package risk

import (
	"math"
	"time"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

// Decay parameters fixed by the scoring contract.
const (
	decayFactor = 0.995
	minRisk     = 0.01
	secondsPerDay = 86400.0
)

// Decay returns the time-decayed risk for a node whose last activity
// was lastSeen, evaluated at now. It is idempotent when called twice
// at the same now (repeated calls with an unchanged age produce the
// same output), and never decays a node below minRisk.
func Decay(risk float64, lastSeen, now time.Time) float64 {
	ageDays := now.Sub(lastSeen).Seconds() / secondsPerDay
	if ageDays < 0 {
		ageDays = 0
	}
	decayed := risk * math.Pow(decayFactor, ageDays)
	if decayed < minRisk {
		return minRisk
	}
	return decayed
}

// AgeDays reports the age in days used by Decay, for explanation breakdowns.
func AgeDays(lastSeen, now time.Time) float64 {
	ageDays := now.Sub(lastSeen).Seconds() / secondsPerDay
	if ageDays < 0 {
		return 0
	}
	return ageDays
}

// SweepDecay applies Decay to every node in g as of now, writing back
// only when the decayed value differs from the stored value, so a
// sweep over already-decayed nodes is a no-op. Intended to run
// best-effort and fail open: callers should not block scoring on it.
func SweepDecay(g *graph.Store, now time.Time) {
	var toUpdate []graph.Node
	g.IterNodesLocked(func(n graph.Node) {
		decayed := Decay(n.RiskScore, n.LastSeen, now)
		if decayed != n.RiskScore {
			toUpdate = append(toUpdate, graph.Node{Key: n.Key, RiskScore: decayed})
		}
	})
	for _, n := range toUpdate {
		g.SetRiskLocked(n.Key, n.RiskScore)
	}
}
