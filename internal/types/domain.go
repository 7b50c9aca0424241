package types

import "time"

// User is the minimal identity needed by billing: who to bind a processor
// customer to.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SubscriptionRecord is the locally cached subscription state, one row per user.
//
// The processor is the source of truth. Tier, MonthlyLimit and BillingInterval
// must always be derivable from the external subscription's active price; the
// local copy may be stale between an external mutation and the next webhook
// reconciliation, and any write made here can be superseded by that webhook.
//
// Empty ExternalCustomerID / ExternalSubscriptionID mean "not bound yet"
// (NULL in the datastore). ExternalSubscriptionID is set if and only if the
// user has completed at least one paid checkout.
type SubscriptionRecord struct {
	UserID                  string             `json:"user_id" db:"user_id"`
	Tier                    Tier               `json:"tier" db:"tier"`
	Status                  SubscriptionStatus `json:"status" db:"status"`
	ExternalCustomerID      string             `json:"external_customer_id,omitempty" db:"external_customer_id"`
	ExternalSubscriptionID  string             `json:"external_subscription_id,omitempty" db:"external_subscription_id"`
	MonthlyLimit            int                `json:"monthly_limit" db:"monthly_limit"`
	BillingInterval         BillingInterval    `json:"billing_interval" db:"billing_interval"`
	UsageCount              int                `json:"usage_count" db:"usage_count"`
	UsageResetDate          *time.Time         `json:"usage_reset_date,omitempty" db:"usage_reset_date"`
	CancelAtPeriodEnd       bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	ScheduledTier           *Tier              `json:"scheduled_tier,omitempty" db:"scheduled_tier"`
	ScheduledTierChangeDate *time.Time         `json:"scheduled_tier_change_date,omitempty" db:"scheduled_tier_change_date"`
	HasUsedTrial            bool               `json:"has_used_trial" db:"has_used_trial"`
	CreatedAt               time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at" db:"updated_at"`
}

// IsBound reports whether the record references an external subscription.
func (r *SubscriptionRecord) IsBound() bool {
	return r.ExternalSubscriptionID != ""
}

// OwnsSubscription reports whether subscriptionID is the exact external
// subscription this record is bound to.
func (r *SubscriptionRecord) OwnsSubscription(subscriptionID string) bool {
	return subscriptionID != "" && r.ExternalSubscriptionID == subscriptionID
}

// HasPendingChange reports whether a deferred change or period-end
// cancellation is recorded locally.
func (r *SubscriptionRecord) HasPendingChange() bool {
	return r.ScheduledTier != nil || r.CancelAtPeriodEnd
}

// TierDescriptor is the entitlement derived from a processor price.
type TierDescriptor struct {
	Tier         Tier            `json:"tier"`
	MonthlyLimit int             `json:"monthly_limit"`
	Interval     BillingInterval `json:"billing_interval"`
}

// PlanChange is the optimistic local write applied after a successful
// processor-side price change.
type PlanChange struct {
	Tier           Tier
	MonthlyLimit   int
	Interval       BillingInterval
	Status         SubscriptionStatus
	UsageResetDate time.Time
	ClearScheduled bool
}

// CheckoutActivation is the upsert applied by the checkout verifier when it
// binds a record to a freshly paid subscription.
type CheckoutActivation struct {
	CustomerID     string
	SubscriptionID string
	Tier           Tier
	MonthlyLimit   int
	Interval       BillingInterval
	Status         SubscriptionStatus
	UsageResetDate time.Time
}

// --- Caller-facing results ---

// CheckoutSessionResult is returned by both checkout entry points.
type CheckoutSessionResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SubscriptionSnapshot is the caller-visible view of an external subscription
// right after a mutation.
type SubscriptionSnapshot struct {
	ID                 string             `json:"id"`
	Status             SubscriptionStatus `json:"status"`
	PriceID            string             `json:"price_id"`
	Tier               Tier               `json:"tier"`
	MonthlyLimit       int                `json:"monthly_limit"`
	BillingInterval    BillingInterval    `json:"billing_interval"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
}

// ProrationSummary describes what a price change would cost if applied now.
// Amounts are in the currency's minor unit. ProrationAmount is signed:
// positive is an additional charge, negative a credit.
type ProrationSummary struct {
	SubscriptionID     string    `json:"subscription_id"`
	CurrentPriceID     string    `json:"current_price_id"`
	NewPriceID         string    `json:"new_price_id"`
	Currency           string    `json:"currency"`
	CurrentUnitAmount  int64     `json:"current_unit_amount"`
	NewUnitAmount      int64     `json:"new_unit_amount"`
	IsUpgrade          bool      `json:"is_upgrade"`
	ProrationAmount    int64     `json:"proration_amount"`
	ProrationDisplay   string    `json:"proration_display"`
	ImmediateAmount    int64     `json:"immediate_amount"`
	ImmediateDisplay   string    `json:"immediate_display"`
	NextInvoiceAmount  int64     `json:"next_invoice_amount"`
	NextInvoiceDisplay string    `json:"next_invoice_display"`
	ProrationDate      time.Time `json:"proration_date"`
	NextBillingDate    time.Time `json:"next_billing_date"`
}

// ScheduledDowngrade is returned by scheduleDowngrade. EffectiveDate is the
// current period end and is informational until the webhook confirms it.
type ScheduledDowngrade struct {
	ScheduledTier Tier      `json:"scheduled_tier"`
	EffectiveDate time.Time `json:"effective_date"`
}

// CancelScheduledResult is returned by cancelScheduledDowngrade.
type CancelScheduledResult struct {
	Success bool `json:"success"`
}

// CheckoutVerification is returned by verifyCheckoutSession.
type CheckoutVerification struct {
	Success          bool               `json:"success"`
	Tier             Tier               `json:"tier"`
	Status           SubscriptionStatus `json:"status"`
	AlreadyProcessed bool               `json:"already_processed,omitempty"`
}

// ReconcileRequest asks the reconciliation worker to re-derive a user's
// record from the processor after a local write was lost.
type ReconcileRequest struct {
	UserID      string    `json:"user_id"`
	Operation   string    `json:"operation"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
