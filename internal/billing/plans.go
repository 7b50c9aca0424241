// Package billing keeps the locally cached subscription record consistent with
// the payment processor. The processor is authoritative; every write made here
// is optimistic and may be superseded by webhook reconciliation.
package billing

import (
	"clientdesk/internal/config"
	"clientdesk/internal/types"
)

// fallbackDescriptor is what an unrecognised price resolves to. Unknown prices
// must never silently degrade a paying customer, so the fallback is the most
// generous entitlement rather than the least.
var fallbackDescriptor = types.TierDescriptor{
	Tier:         types.TierPremium,
	MonthlyLimit: types.UnlimitedQuota,
	Interval:     types.IntervalMonthly,
}

type planKey struct {
	tier     types.Tier
	interval types.BillingInterval
}

// PriceCatalog maps processor price identifiers to tier descriptors and back.
// It is built once from configuration and is safe for concurrent reads.
type PriceCatalog struct {
	byPrice   map[string]types.TierDescriptor
	byPlan    map[planKey]string
	freeLimit int
}

// NewPriceCatalog builds the catalog from the configured price identifiers
// and per-tier quotas. Empty price identifiers are skipped.
func NewPriceCatalog(cfg config.BillingConfig) *PriceCatalog {
	c := &PriceCatalog{
		byPrice:   make(map[string]types.TierDescriptor, 4),
		byPlan:    make(map[planKey]string, 4),
		freeLimit: cfg.FreeMonthlyLimit,
	}
	c.add(cfg.PriceProfessionalMonthly, types.TierProfessional, cfg.ProfessionalMonthlyLimit, types.IntervalMonthly)
	c.add(cfg.PriceProfessionalAnnual, types.TierProfessional, cfg.ProfessionalMonthlyLimit, types.IntervalAnnual)
	c.add(cfg.PricePremiumMonthly, types.TierPremium, cfg.PremiumMonthlyLimit, types.IntervalMonthly)
	c.add(cfg.PricePremiumAnnual, types.TierPremium, cfg.PremiumMonthlyLimit, types.IntervalAnnual)
	return c
}

func (c *PriceCatalog) add(priceID string, tier types.Tier, limit int, interval types.BillingInterval) {
	if priceID == "" {
		return
	}
	c.byPrice[priceID] = types.TierDescriptor{Tier: tier, MonthlyLimit: limit, Interval: interval}
	c.byPlan[planKey{tier, interval}] = priceID
}

// Resolve maps a price identifier to its tier descriptor. It never fails: an
// unknown price yields the premium/unlimited/monthly fallback with known set
// to false so the caller can raise a warning.
func (c *PriceCatalog) Resolve(priceID string) (desc types.TierDescriptor, known bool) {
	if d, ok := c.byPrice[priceID]; ok {
		return d, true
	}
	return fallbackDescriptor, false
}

// Known reports whether priceID is one of the configured prices.
func (c *PriceCatalog) Known(priceID string) bool {
	_, ok := c.byPrice[priceID]
	return ok
}

// PriceFor returns the configured price for a paid tier and interval.
func (c *PriceCatalog) PriceFor(tier types.Tier, interval types.BillingInterval) (string, bool) {
	id, ok := c.byPlan[planKey{tier, interval}]
	return id, ok
}

// FreeLimit is the quota of the free tier.
func (c *PriceCatalog) FreeLimit() int {
	return c.freeLimit
}
