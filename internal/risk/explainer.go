package risk

// BuildExplanation deterministically assembles the explanation for one
// scored event from the intermediate values the engine computed. It
// never reads the graph itself: every input is already in hand, so the
// explanation is a pure function of the pipeline's own outputs.
func BuildExplanation(
	transactionID string,
	finalRisk float64,
	propagationDepth int,
	rules []RuleHit,
	propagation []PropagationHit,
	clusters []ClusterHit,
	breakdown Breakdown,
) Explanation {
	top := topPropagation(propagation, 5)
	category := Classify(finalRisk)

	return Explanation{
		TransactionID:    transactionID,
		RiskScore:        finalRisk,
		PropagationDepth: propagationDepth,
		RulesTriggered:   rules,
		Propagation:      top,
		Clusters:         clusters,
		Breakdown:        breakdown,
		Category:         category,
		Recommendation:   Recommend(category),
	}
}

// topPropagation returns up to n hits ordered by descending risk. A
// manual selection sort is used here rather than sort.Slice, matching
// the hand-rolled ranking style elsewhere in this codebase.
func topPropagation(hits []PropagationHit, n int) []PropagationHit {
	ranked := make([]PropagationHit, len(hits))
	copy(ranked, hits)
	for i := 0; i < len(ranked); i++ {
		best := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].Risk > ranked[best].Risk {
				best = j
			}
		}
		ranked[i], ranked[best] = ranked[best], ranked[i]
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
