package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clientdesk/internal/types"
)

// Operation names used in logs and metric dimensions.
const (
	OpCreateCheckoutSession     = "create_checkout_session"
	OpCreateSubscriptionSession = "create_subscription_session"
	OpUpdateSubscription        = "update_subscription"
	OpSwitchBillingCycle        = "switch_billing_cycle"
	OpPreviewProration          = "preview_proration"
	OpCancelSubscription        = "cancel_subscription"
	OpScheduleDowngrade         = "schedule_downgrade"
	OpCancelScheduledDowngrade  = "cancel_scheduled_downgrade"
	OpVerifyCheckoutSession     = "verify_checkout_session"
	opEnsureCustomer            = "ensure_customer"
)

// ServiceConfig carries the collaborators of a Service.
type ServiceConfig struct {
	Processor Processor
	Store     SubscriptionStore
	Users     UserDirectory
	Catalog   *PriceCatalog

	// IdempotencyWindow is the bucket width for create-call idempotency keys.
	IdempotencyWindow time.Duration
	DefaultCurrency   string

	Metrics Metrics
	// Reconciler is optional; when set, lost optimistic writes are queued
	// for re-sync instead of waiting on the next webhook.
	Reconciler Reconciler
	Logger     *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service implements the caller-facing billing operations. It holds no
// mutable state of its own; every call is a sequence of processor round trips
// followed by at most a couple of local writes.
//
// Ordering within a call is fixed: the processor is always asked first and the
// local record is only written after it confirms. Local writes after a
// successful processor mutation are best effort.
type Service struct {
	processor  Processor
	store      SubscriptionStore
	users      UserDirectory
	catalog    *PriceCatalog
	keys       IdempotencyKeys
	currency   string
	metrics    Metrics
	reconciler Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires a Service. Metrics, Reconciler, Logger and Clock are optional.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		processor:  cfg.Processor,
		store:      cfg.Store,
		users:      cfg.Users,
		catalog:    cfg.Catalog,
		keys:       NewIdempotencyKeys(cfg.IdempotencyWindow),
		currency:   cfg.DefaultCurrency,
		metrics:    cfg.Metrics,
		reconciler: cfg.Reconciler,
		logger:     cfg.Logger,
		now:        cfg.Clock,
	}
	if s.metrics == nil {
		s.metrics = NoopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.currency == "" {
		s.currency = "usd"
	}
	return s
}

// GetSubscription returns the caller's record, provisioning the free-tier
// default when registration has not created it yet.
func (s *Service) GetSubscription(ctx context.Context, userID string) (*types.SubscriptionRecord, error) {
	return s.record(ctx, userID)
}

// record loads the user's record. A missing row is created with the free
// quota (an existing row is never touched) and read back.
func (s *Service) record(ctx context.Context, userID string) (*types.SubscriptionRecord, error) {
	rec, err := s.store.GetByUserID(ctx, userID)
	if !types.HasCode(err, types.ErrCodeNotFoundSubscriptionRecord) {
		return rec, err
	}

	if err := s.store.CreateDefault(ctx, userID, s.catalog.FreeLimit()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "provisioned default subscription record",
		"user_id", userID,
		"monthly_limit", s.catalog.FreeLimit(),
	)
	return s.store.GetByUserID(ctx, userID)
}

// ownedRecord loads the caller's record and checks that it is bound to
// subscriptionID. It is the first step of every subscription operation and
// never talks to the processor, so a mismatch costs zero external calls.
func (s *Service) ownedRecord(ctx context.Context, userID, subscriptionID, operation string) (*types.SubscriptionRecord, error) {
	rec, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.OwnsSubscription(subscriptionID) {
		s.logger.WarnContext(ctx, "subscription ownership check failed",
			"operation", operation,
			"user_id", userID,
			"subscription_id", subscriptionID,
		)
		return nil, types.NewAppError(types.ErrCodePermissionSubscription,
			"subscription does not belong to the current user", nil)
	}
	return rec, nil
}

// resolveTier maps a processor price to an entitlement, logging and counting
// the fail-open fallback for prices outside the catalog.
func (s *Service) resolveTier(ctx context.Context, priceID, subscriptionID string) types.TierDescriptor {
	desc, known := s.catalog.Resolve(priceID)
	if !known {
		s.logger.WarnContext(ctx, "unknown price id, falling back to default entitlement",
			"price_id", priceID,
			"subscription_id", subscriptionID,
			"fallback_tier", desc.Tier,
		)
		s.metrics.RecordBillingWarning(ctx, types.ReasonUnknownPrice)
	}
	return desc
}

// requireKnownPrice rejects price identifiers outside the catalog before any
// processor call is made.
func (s *Service) requireKnownPrice(priceID string) error {
	if priceID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "price_id is required", nil)
	}
	if !s.catalog.Known(priceID) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPrice,
			"price is not a recognised subscription plan", nil,
			map[string]any{"price_id": priceID})
	}
	return nil
}

// processorError logs a failed processor call and re-wraps it as the generic
// processor failure callers see. The original error stays in the chain.
// A deadline hit means the processor may still have applied the change, so
// the outcome is flagged as unknown and callers must re-read state.
func (s *Service) processorError(ctx context.Context, operation string, err error) error {
	details := map[string]any{"operation": operation}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		details["outcome"] = "unknown"
	}

	s.logger.ErrorContext(ctx, "payment processor call failed",
		"operation", operation,
		"error", err,
	)
	s.metrics.RecordProcessorFailure(ctx, operation)

	return types.NewAppErrorWithDetails(types.ErrCodeInternalProcessor,
		"payment processor operation failed", err, details)
}

// localWriteTimeout bounds optimistic writes, which run detached from the
// request's cancellation.
const localWriteTimeout = 5 * time.Second

// bestEffort runs a local write that follows a successful processor mutation.
// Failures are logged and counted, never returned: the processor already
// holds the new state and webhook reconciliation will repair the record.
// The write outlives a client disconnect since the processor call it mirrors
// has already happened.
func (s *Service) bestEffort(ctx context.Context, operation, userID string, write func(ctx context.Context) error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), localWriteTimeout)
	defer cancel()

	if err := write(wctx); err != nil {
		s.logger.WarnContext(ctx, "optimistic local write failed, awaiting webhook reconciliation",
			"operation", operation,
			"user_id", userID,
			"error", err,
		)
		s.metrics.RecordOptimisticWriteFailure(ctx, operation)
		s.requestReconcile(wctx, operation, userID)
	}
}

func (s *Service) requestReconcile(ctx context.Context, operation, userID string) {
	if s.reconciler == nil {
		return
	}
	err := s.reconciler.RequestReconcile(ctx, types.ReconcileRequest{
		UserID:      userID,
		Operation:   operation,
		Reason:      types.ReconcileLostWrite,
		RequestedAt: s.now().UTC(),
		TraceID:     types.GetRequestID(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to queue record reconciliation",
			"operation", operation,
			"user_id", userID,
			"error", err,
		)
	}
}

// primaryItem returns the subscription's single price line.
func primaryItem(sub *types.ProcessorSubscription) (types.SubscriptionItem, error) {
	item, ok := sub.PrimaryItem()
	if !ok {
		return types.SubscriptionItem{}, types.NewAppError(types.ErrCodeConflictNoActivePlan,
			fmt.Sprintf("subscription %s has no price items", sub.ID), nil)
	}
	return item, nil
}

func snapshotOf(sub *types.ProcessorSubscription, priceID string, desc types.TierDescriptor) *types.SubscriptionSnapshot {
	return &types.SubscriptionSnapshot{
		ID:                 sub.ID,
		Status:             sub.Status,
		PriceID:            priceID,
		Tier:               desc.Tier,
		MonthlyLimit:       desc.MonthlyLimit,
		BillingInterval:    desc.Interval,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
}
