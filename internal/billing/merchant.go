// Package billing repurposes the teacher's Stripe billing integration
// into a best-effort merchant-enrichment collaborator: it never
// influences a risk score, only the human-readable name an explanation
// shows for a merchant. Grounded on internal/billing/service.go's use
// of stripe-go/v74 (stripe.Key, an API-backed lookup), narrowed from
// subscription billing to a single read-only account lookup.
package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
)

// MerchantEnricher looks up a merchant's display name via Stripe
// Connect accounts, keyed by the transaction's merchant_id (treated as
// a Stripe connected-account id). Implements risk.MerchantEnricher.
type MerchantEnricher struct{}

// NewMerchantEnricher configures the package-level Stripe client. A
// single process-wide API key is how stripe-go is used throughout the
// codebase; it is set once at startup.
func NewMerchantEnricher(apiKey string) *MerchantEnricher {
	stripe.Key = apiKey
	return &MerchantEnricher{}
}

// DisplayName returns the merchant's business name, or false if the
// lookup failed or returned nothing usable. Failures are swallowed by
// design: this is decoration, not a scoring input.
func (m *MerchantEnricher) DisplayName(ctx context.Context, merchantID string) (string, bool) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(merchantID, params)
	if err != nil || acct == nil {
		return "", false
	}
	if acct.BusinessProfile != nil && acct.BusinessProfile.Name != "" {
		return acct.BusinessProfile.Name, true
	}
	if acct.Email != "" {
		return fmt.Sprintf("merchant (%s)", acct.Email), true
	}
	return "", false
}
