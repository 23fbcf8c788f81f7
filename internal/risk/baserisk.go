package risk

import (
	"fmt"

	"github.com/fraudmesh/fraudmesh/internal/graph"
)

// Base-risk rule weights and the high-amount threshold, fixed by the
// scoring contract; these are not configurable per deployment because
// S1-S6 style regression scenarios pin exact numeric outcomes to them.
const (
	highAmountThreshold = 1000.0
	weightHighAmount    = 0.30
	weightNewDevice     = 0.20
	weightNewIP         = 0.20
	weightNewMerchant   = 0.10
)

// EvaluateBaseRisk runs the additive rule set against the graph as it
// stood immediately before this event's own edges were upserted, then
// saturates at 1.0. Rules are evaluated independently of each other and
// of evaluation order (they only read, never write, the snapshot).
func EvaluateBaseRisk(snapshot *graph.Store, ev Event) (float64, []RuleHit) {
	var hits []RuleHit
	var total float64

	if ev.Amount > highAmountThreshold {
		total += weightHighAmount
		hits = append(hits, RuleHit{
			Name:        "high_amount",
			Description: fmt.Sprintf("Transaction amount %.2f exceeds %.2f", ev.Amount, highAmountThreshold),
			Weight:      weightHighAmount,
		})
	}

	userKey := graph.Key(graph.KindUser, ev.UserID)
	deviceKey := graph.Key(graph.KindDevice, ev.DeviceID)
	ipKey := graph.Key(graph.KindIP, ev.IPAddress)
	merchantKey := graph.Key(graph.KindMerchant, ev.MerchantID)

	// new_merchant's "card key" is aliased to the device key: there is no
	// separate card node space, so the check below is against exactly the
	// edge the engine upserts each event (device_<D> -> merchant_<M>).
	cardKey := deviceKey

	if !snapshot.HasEdgeLocked(userKey, deviceKey) {
		total += weightNewDevice
		hits = append(hits, RuleHit{
			Name:        "new_device",
			Description: fmt.Sprintf("Device %q not seen before for this user", ev.DeviceID),
			Weight:      weightNewDevice,
		})
	}

	if !snapshot.HasEdgeLocked(userKey, ipKey) {
		total += weightNewIP
		hits = append(hits, RuleHit{
			Name:        "new_ip",
			Description: fmt.Sprintf("IP %q not seen before for this user", ev.IPAddress),
			Weight:      weightNewIP,
		})
	}

	if !snapshot.HasEdgeLocked(cardKey, merchantKey) {
		total += weightNewMerchant
		hits = append(hits, RuleHit{
			Name:        "new_merchant",
			Description: fmt.Sprintf("Merchant %q not previously used with this card", ev.MerchantID),
			Weight:      weightNewMerchant,
		})
	}

	if total > 1.0 {
		total = 1.0
	}
	return total, hits
}
