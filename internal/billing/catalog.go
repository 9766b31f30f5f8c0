package billing

import (
	"encoding/json"
	"fmt"

	"devmint/internal/types"
)

// PlanDescriptor describes what a catalog price ID sells.
type PlanDescriptor struct {
	Plan  string             `json:"plan"`
	Cycle types.BillingCycle `json:"cycle"`
}

// Catalog maps the provider's price IDs onto the site's plans. It is built
// once at startup from the PADDLE_PRICES_JSON configuration value plus the
// dedicated donation price ID, and is read-only afterwards.
type Catalog struct {
	prices          map[string]PlanDescriptor
	donationPriceID string
}

// NewCatalog parses the price mapping JSON and binds the donation price ID.
// The mapping must not claim the donation price as a subscription plan.
func NewCatalog(pricesJSON string, donationPriceID string) (*Catalog, error) {
	prices := make(map[string]PlanDescriptor)
	if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to parse price catalog JSON",
			err,
		)
	}

	for priceID, desc := range prices {
		if priceID == donationPriceID {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				fmt.Sprintf("price %s is both the donation price and a plan price", priceID),
				nil,
			)
		}
		switch desc.Cycle {
		case types.CycleMonthly, types.CycleYearly:
		default:
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				fmt.Sprintf("price %s has unknown billing cycle %q", priceID, desc.Cycle),
				nil,
			)
		}
	}

	return &Catalog{
		prices:          prices,
		donationPriceID: donationPriceID,
	}, nil
}

// Lookup returns the plan descriptor for a subscription price ID.
func (c *Catalog) Lookup(priceID string) (PlanDescriptor, bool) {
	desc, ok := c.prices[priceID]
	return desc, ok
}

// DonationPriceID returns the provider price used as the carrier for
// variable-amount donations.
func (c *Catalog) DonationPriceID() string {
	return c.donationPriceID
}

// IsDonationPrice reports whether the price ID is the donation carrier.
func (c *Catalog) IsDonationPrice(priceID string) bool {
	return priceID == c.donationPriceID
}

// PlanPriceIDs returns all subscription price IDs in the catalog.
func (c *Catalog) PlanPriceIDs() []string {
	ids := make([]string, 0, len(c.prices))
	for id := range c.prices {
		ids = append(ids, id)
	}
	return ids
}
