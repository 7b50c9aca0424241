package billing

import (
	"context"
	"fmt"
	"time"

	"clientdesk/internal/types"
)

// UpdateSubscription moves the caller's subscription to newPriceID with
// proration, effective immediately. A pending cancellation is cleared and any
// schedule driving the subscription is released first, because a direct
// change supersedes a deferred one.
func (s *Service) UpdateSubscription(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.SubscriptionSnapshot, error) {
	rec, err := s.ownedRecord(ctx, userID, subscriptionID, OpUpdateSubscription)
	if err != nil {
		return nil, err
	}
	if err := s.requireKnownPrice(newPriceID); err != nil {
		return nil, err
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpUpdateSubscription, err)
	}
	return s.changePrice(ctx, rec, sub, newPriceID, OpUpdateSubscription)
}

// SwitchBillingCycle changes the renewal interval. Annual plans cannot be
// shortened mid-cycle: switching an annual subscription to any monthly price
// is rejected with the date the current period ends.
func (s *Service) SwitchBillingCycle(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.SubscriptionSnapshot, error) {
	rec, err := s.ownedRecord(ctx, userID, subscriptionID, OpSwitchBillingCycle)
	if err != nil {
		return nil, err
	}
	if err := s.requireKnownPrice(newPriceID); err != nil {
		return nil, err
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpSwitchBillingCycle, err)
	}
	item, err := primaryItem(sub)
	if err != nil {
		return nil, err
	}

	current := s.resolveTier(ctx, item.PriceID, sub.ID)
	target, _ := s.catalog.Resolve(newPriceID)
	if current.Interval == types.IntervalAnnual && target.Interval == types.IntervalMonthly {
		s.logger.InfoContext(ctx, "rejected annual to monthly switch",
			"user_id", userID,
			"subscription_id", subscriptionID,
			"current_period_end", sub.CurrentPeriodEnd,
		)
		return nil, annualPlanLocked(sub.CurrentPeriodEnd)
	}

	return s.changePrice(ctx, rec, sub, newPriceID, OpSwitchBillingCycle)
}

// CancelSubscription sets or clears cancel_at_period_end on the processor.
// The local record mirrors the flag only when it is set; the status stays
// active until the period actually ends.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID string, cancelAtPeriodEnd bool) (*types.SubscriptionSnapshot, error) {
	rec, err := s.ownedRecord(ctx, userID, subscriptionID, OpCancelSubscription)
	if err != nil {
		return nil, err
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpCancelSubscription, err)
	}

	released := false
	if cancelAtPeriodEnd {
		if released, err = s.releaseAttachedSchedule(ctx, sub, OpCancelSubscription); err != nil {
			return nil, err
		}
	}

	updated, err := s.processor.UpdateSubscription(ctx, subscriptionID, types.SubscriptionUpdateParams{
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
	})
	if err != nil {
		return nil, s.processorError(ctx, OpCancelSubscription, err)
	}

	if cancelAtPeriodEnd {
		s.bestEffort(ctx, OpCancelSubscription, rec.UserID, func(ctx context.Context) error {
			if released {
				if err := s.store.ClearScheduledChange(ctx, rec.UserID); err != nil {
					return err
				}
			}
			return s.store.SetCancelAtPeriodEnd(ctx, rec.UserID, true)
		})
	}
	s.metrics.RecordSubscriptionMutated(ctx, OpCancelSubscription)

	item, err := primaryItem(updated)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "subscription cancellation updated",
		"user_id", userID,
		"subscription_id", subscriptionID,
		"cancel_at_period_end", updated.CancelAtPeriodEnd,
	)
	return snapshotOf(updated, item.PriceID, s.resolveTier(ctx, item.PriceID, updated.ID)), nil
}

// changePrice swaps the subscription's price item and optimistically mirrors
// the resulting entitlement locally.
func (s *Service) changePrice(
	ctx context.Context,
	rec *types.SubscriptionRecord,
	sub *types.ProcessorSubscription,
	newPriceID, operation string,
) (*types.SubscriptionSnapshot, error) {
	item, err := primaryItem(sub)
	if err != nil {
		return nil, err
	}
	if _, err := s.releaseAttachedSchedule(ctx, sub, operation); err != nil {
		return nil, err
	}

	keep := false
	updated, err := s.processor.UpdateSubscription(ctx, sub.ID, types.SubscriptionUpdateParams{
		ItemID:            item.ID,
		PriceID:           newPriceID,
		ProrationBehavior: types.ProrationCreate,
		CancelAtPeriodEnd: &keep,
	})
	if err != nil {
		return nil, s.processorError(ctx, operation, err)
	}

	priceID := newPriceID
	if it, ok := updated.PrimaryItem(); ok {
		priceID = it.PriceID
	}
	desc := s.resolveTier(ctx, priceID, updated.ID)

	s.bestEffort(ctx, operation, rec.UserID, func(ctx context.Context) error {
		return s.store.ApplyPlanChange(ctx, rec.UserID, types.PlanChange{
			Tier:           desc.Tier,
			MonthlyLimit:   desc.MonthlyLimit,
			Interval:       desc.Interval,
			Status:         updated.Status,
			UsageResetDate: updated.CurrentPeriodEnd,
			ClearScheduled: true,
		})
	})
	s.metrics.RecordSubscriptionMutated(ctx, operation)

	s.logger.InfoContext(ctx, "subscription price changed",
		"operation", operation,
		"user_id", rec.UserID,
		"subscription_id", updated.ID,
		"old_price_id", item.PriceID,
		"price_id", priceID,
		"tier", desc.Tier,
	)
	return snapshotOf(updated, priceID, desc), nil
}

func annualPlanLocked(periodEnd time.Time) error {
	end := periodEnd.UTC()
	return types.NewAppErrorWithDetails(types.ErrCodeConflictAnnualPlanLocked,
		fmt.Sprintf("annual plans cannot switch to monthly billing until the current period ends on %s", end.Format("January 2, 2006")),
		nil,
		map[string]any{"current_period_end": end.Format(time.RFC3339)},
	)
}
