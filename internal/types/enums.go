package types

// Tier identifies a named service level that determines quota and feature access.
type Tier string

const (
	TierFree         Tier = "free"
	TierProfessional Tier = "professional"
	TierPremium      Tier = "premium"
)

// tierRank orders tiers from least to most capable.
var tierRank = map[Tier]int{
	TierFree:         0,
	TierProfessional: 1,
	TierPremium:      2,
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the ordinal of the tier (free=0). Unknown tiers rank -1.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// IsPaid reports whether the tier requires an external subscription.
func (t Tier) IsPaid() bool {
	return t == TierProfessional || t == TierPremium
}

// SubscriptionStatus is the local lifecycle state of a SubscriptionRecord.
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusTrialing  SubscriptionStatus = "trialing"
	SubStatusPastDue   SubscriptionStatus = "past_due"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
)

// BillingInterval is the renewal cadence of a paid subscription.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// UnlimitedQuota is the MonthlyLimit sentinel for tiers without a usage cap.
const UnlimitedQuota = -1

// DefaultFreeMonthlyLimit is the quota assigned to a freshly registered user.
const DefaultFreeMonthlyLimit = 10
