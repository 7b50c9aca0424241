package external

import (
	"context"

	"clientdesk/internal/types"
)

// PaymentProcessor abstracts the payment processor (Stripe). Implementations
// translate between domain types and the vendor API. All methods are single
// synchronous round trips; none of them touch local state.
type PaymentProcessor interface {
	GetCustomer(ctx context.Context, customerID string) (*types.ProcessorCustomer, error)
	CreateCustomer(ctx context.Context, params types.CreateCustomerParams) (*types.ProcessorCustomer, error)

	CreateCheckoutSession(ctx context.Context, params types.CheckoutSessionParams) (*types.CheckoutSession, error)
	// GetCheckoutSession expands the resulting subscription when possible.
	GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*types.ProcessorSubscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID string, params types.SubscriptionUpdateParams) (*types.ProcessorSubscription, error)

	GetPrice(ctx context.Context, priceID string) (*types.ProcessorPrice, error)
	PreviewInvoice(ctx context.Context, params types.InvoicePreviewParams) (*types.InvoicePreview, error)

	CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSchedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID string, params types.ScheduleUpdateParams) (*types.SubscriptionSchedule, error)
	// ReleaseSchedule succeeds when the schedule is already released.
	ReleaseSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error)
}

// Compile-time checks.
var (
	_ PaymentProcessor = (*StripeClient)(nil)
	_ PaymentProcessor = (*StubProcessor)(nil)
)
