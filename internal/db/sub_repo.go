package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"clientdesk/internal/types"
)

// SubscriptionRepo persists the per-user SubscriptionRecord.
//
// Every write is a single-row statement keyed by user_id. None of them guard
// against a concurrent webhook write: the webhook carries the processor's
// authoritative state and is allowed to overwrite whatever is stored here.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given database
// connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// subscriptionColumns must match the scan order in scanSubscription.
const subscriptionColumns = `user_id, tier, status, external_customer_id, external_subscription_id,
	monthly_limit, billing_interval, usage_count, usage_reset_date, cancel_at_period_end,
	scheduled_tier, scheduled_tier_change_date, has_used_trial, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.SubscriptionRecord, error) {
	var (
		rec           types.SubscriptionRecord
		customerID    *string
		subID         *string
		scheduledTier *string
	)
	err := row.Scan(
		&rec.UserID,
		&rec.Tier,
		&rec.Status,
		&customerID,
		&subID,
		&rec.MonthlyLimit,
		&rec.BillingInterval,
		&rec.UsageCount,
		&rec.UsageResetDate,
		&rec.CancelAtPeriodEnd,
		&scheduledTier,
		&rec.ScheduledTierChangeDate,
		&rec.HasUsedTrial,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ExternalCustomerID = derefString(customerID)
	rec.ExternalSubscriptionID = derefString(subID)
	if scheduledTier != nil {
		tier := types.Tier(*scheduledTier)
		rec.ScheduledTier = &tier
	}
	return &rec, nil
}

// GetByUserID returns the user's record, or ErrCodeNotFoundSubscriptionRecord.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error) {
	rec, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscriptionRecord, "subscription record not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription record", err)
	}
	return rec, nil
}

// CreateDefault inserts the free-tier record a newly registered user starts
// with. An existing row is left untouched, so registration may call it again.
func (r *SubscriptionRepo) CreateDefault(ctx context.Context, userID string, freeLimit int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (user_id, tier, status, monthly_limit, billing_interval,
		     usage_count, cancel_at_period_end, has_used_trial, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, FALSE, FALSE, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		types.TierFree,
		types.SubStatusActive,
		freeLimit,
		types.IntervalMonthly,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription record", err)
	}
	return nil
}

// UpdateCustomerID stores the processor customer bound to the user.
func (r *SubscriptionRepo) UpdateCustomerID(ctx context.Context, userID, customerID string) error {
	return r.execOne(ctx, "failed to update customer id",
		`UPDATE subscriptions
		 SET external_customer_id = $1,
		     updated_at = NOW()
		 WHERE user_id = $2`,
		nullString(customerID),
		userID,
	)
}

// ApplyPlanChange mirrors a successful price change. It always clears
// cancel_at_period_end, since a direct price change supersedes a pending
// cancellation, and clears the scheduled tier when asked to.
func (r *SubscriptionRepo) ApplyPlanChange(ctx context.Context, userID string, c types.PlanChange) error {
	return r.execOne(ctx, "failed to apply plan change",
		`UPDATE subscriptions
		 SET tier = $1,
		     monthly_limit = $2,
		     billing_interval = $3,
		     status = $4,
		     usage_reset_date = $5,
		     cancel_at_period_end = FALSE,
		     scheduled_tier = CASE WHEN $6 THEN NULL ELSE scheduled_tier END,
		     scheduled_tier_change_date = CASE WHEN $6 THEN NULL ELSE scheduled_tier_change_date END,
		     updated_at = NOW()
		 WHERE user_id = $7`,
		c.Tier,
		c.MonthlyLimit,
		c.Interval,
		c.Status,
		c.UsageResetDate,
		c.ClearScheduled,
		userID,
	)
}

func (r *SubscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, userID string, cancel bool) error {
	return r.execOne(ctx, "failed to update cancellation flag",
		`UPDATE subscriptions
		 SET cancel_at_period_end = $1,
		     updated_at = NOW()
		 WHERE user_id = $2`,
		cancel,
		userID,
	)
}

func (r *SubscriptionRepo) SetScheduledTier(ctx context.Context, userID string, tier types.Tier, effective time.Time) error {
	return r.execOne(ctx, "failed to record scheduled tier",
		`UPDATE subscriptions
		 SET scheduled_tier = $1,
		     scheduled_tier_change_date = $2,
		     updated_at = NOW()
		 WHERE user_id = $3`,
		tier,
		effective,
		userID,
	)
}

// ClearScheduledChange drops any pending downgrade or period-end cancellation.
func (r *SubscriptionRepo) ClearScheduledChange(ctx context.Context, userID string) error {
	return r.execOne(ctx, "failed to clear scheduled change",
		`UPDATE subscriptions
		 SET cancel_at_period_end = FALSE,
		     scheduled_tier = NULL,
		     scheduled_tier_change_date = NULL,
		     updated_at = NOW()
		 WHERE user_id = $1`,
		userID,
	)
}

// ActivateFromCheckout binds the record to a paid subscription. It is an
// upsert so a user whose registration hook never ran still ends up with a
// record. has_used_trial is set unconditionally: a completed subscription
// checkout consumes the trial whether or not one was granted.
func (r *SubscriptionRepo) ActivateFromCheckout(ctx context.Context, userID string, a types.CheckoutActivation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (user_id, tier, status, external_customer_id, external_subscription_id,
		     monthly_limit, billing_interval, usage_count, usage_reset_date, cancel_at_period_end,
		     has_used_trial, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, FALSE, TRUE, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET tier = EXCLUDED.tier,
		     status = EXCLUDED.status,
		     external_customer_id = EXCLUDED.external_customer_id,
		     external_subscription_id = EXCLUDED.external_subscription_id,
		     monthly_limit = EXCLUDED.monthly_limit,
		     billing_interval = EXCLUDED.billing_interval,
		     usage_reset_date = EXCLUDED.usage_reset_date,
		     has_used_trial = TRUE,
		     updated_at = NOW()`,
		userID,
		a.Tier,
		a.Status,
		nullString(a.CustomerID),
		nullString(a.SubscriptionID),
		a.MonthlyLimit,
		a.Interval,
		a.UsageResetDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription record", err)
	}

	r.logger.InfoContext(ctx, "subscription record activated from checkout",
		slog.String("user_id", userID),
		slog.String("subscription_id", a.SubscriptionID),
		slog.String("tier", string(a.Tier)),
	)
	return nil
}

// execOne runs a single-row UPDATE and maps zero affected rows to
// ErrCodeNotFoundSubscriptionRecord.
func (r *SubscriptionRepo) execOne(ctx context.Context, failMsg, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, failMsg, err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscriptionRecord, "subscription record not found", nil)
	}
	return nil
}
