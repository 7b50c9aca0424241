package billing

import (
	"context"
	"time"

	"clientdesk/internal/types"
)

// Processor is the payment processor capability the billing components need.
// external.StripeClient and external.StubProcessor both satisfy it.
type Processor interface {
	GetCustomer(ctx context.Context, customerID string) (*types.ProcessorCustomer, error)
	CreateCustomer(ctx context.Context, params types.CreateCustomerParams) (*types.ProcessorCustomer, error)

	CreateCheckoutSession(ctx context.Context, params types.CheckoutSessionParams) (*types.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*types.ProcessorSubscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID string, params types.SubscriptionUpdateParams) (*types.ProcessorSubscription, error)

	GetPrice(ctx context.Context, priceID string) (*types.ProcessorPrice, error)
	PreviewInvoice(ctx context.Context, params types.InvoicePreviewParams) (*types.InvoicePreview, error)

	CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSchedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID string, params types.ScheduleUpdateParams) (*types.SubscriptionSchedule, error)
	ReleaseSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error)
}

// SubscriptionStore persists the local SubscriptionRecord. Every method is
// scoped to a single user's row and must be safe to overwrite later: the
// webhook handler writes the authoritative state on its own schedule.
// Implemented by db.SubscriptionRepo.
type SubscriptionStore interface {
	// GetByUserID returns ErrCodeNotFoundSubscriptionRecord when the user has no row.
	GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error)
	// CreateDefault inserts the free-tier row if the user has none.
	CreateDefault(ctx context.Context, userID string, freeLimit int) error
	UpdateCustomerID(ctx context.Context, userID, customerID string) error
	// ApplyPlanChange overwrites tier, quota, interval, status and reset date,
	// and clears cancel_at_period_end.
	ApplyPlanChange(ctx context.Context, userID string, change types.PlanChange) error
	SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error
	SetScheduledTier(ctx context.Context, userID string, tier types.Tier, effective time.Time) error
	// ClearScheduledChange resets cancel_at_period_end and the scheduled tier fields.
	ClearScheduledChange(ctx context.Context, userID string) error
	// ActivateFromCheckout binds the record to a paid subscription and sets
	// has_used_trial.
	ActivateFromCheckout(ctx context.Context, userID string, act types.CheckoutActivation) error
}

// UserDirectory resolves the identity a processor customer is created for.
// Implemented by db.UserRepository.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
}

// Reconciler queues an out-of-band re-sync of a user's record. Implemented
// by queue.ReconcileQueue.
type Reconciler interface {
	RequestReconcile(ctx context.Context, req types.ReconcileRequest) error
}
