package billing

import (
	"context"

	"clientdesk/internal/types"
)

// ScheduleDowngrade defers a move to a lesser tier until the current period
// ends. A downgrade to free is a period-end cancellation; a downgrade to a
// paid tier is a two-phase schedule whose second phase starts at the period
// boundary with proration disabled, then releases back to a plain
// subscription.
//
// A paid target without newPriceID keeps the subscription's current billing
// interval and uses the catalog price for that tier.
//
// The scheduled tier recorded locally is informational until the webhook
// confirms the change took effect.
func (s *Service) ScheduleDowngrade(ctx context.Context, userID, subscriptionID, newPriceID string, newTier types.Tier) (*types.ScheduledDowngrade, error) {
	rec, err := s.ownedRecord(ctx, userID, subscriptionID, OpScheduleDowngrade)
	if err != nil {
		return nil, err
	}
	if !newTier.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTier,
			"unknown tier", nil, map[string]any{"tier": newTier})
	}
	if newPriceID != "" {
		if err := s.validateDowngradePrice(newPriceID, newTier); err != nil {
			return nil, err
		}
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpScheduleDowngrade, err)
	}
	item, err := primaryItem(sub)
	if err != nil {
		return nil, err
	}

	current := s.resolveTier(ctx, item.PriceID, sub.ID)
	if newTier.Rank() >= current.Tier.Rank() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationNotDowngrade,
			"requested tier is not lower than the current tier", nil,
			map[string]any{"current_tier": current.Tier, "requested_tier": newTier})
	}

	if newTier.IsPaid() && newPriceID == "" {
		price, ok := s.catalog.PriceFor(newTier, current.Interval)
		if !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPrice,
				"no price configured for the requested tier", nil,
				map[string]any{"tier": newTier, "billing_interval": current.Interval})
		}
		newPriceID = price
	}

	effective := sub.CurrentPeriodEnd
	if newTier == types.TierFree {
		err = s.scheduleCancellation(ctx, sub)
	} else {
		err = s.schedulePhaseChange(ctx, sub, item, newPriceID)
	}
	if err != nil {
		return nil, err
	}

	s.bestEffort(ctx, OpScheduleDowngrade, rec.UserID, func(ctx context.Context) error {
		if err := s.store.SetCancelAtPeriodEnd(ctx, rec.UserID, newTier == types.TierFree); err != nil {
			return err
		}
		return s.store.SetScheduledTier(ctx, rec.UserID, newTier, effective)
	})
	s.metrics.RecordSubscriptionMutated(ctx, OpScheduleDowngrade)

	s.logger.InfoContext(ctx, "downgrade scheduled",
		"user_id", userID,
		"subscription_id", subscriptionID,
		"current_tier", current.Tier,
		"scheduled_tier", newTier,
		"effective_date", effective,
	)
	return &types.ScheduledDowngrade{ScheduledTier: newTier, EffectiveDate: effective}, nil
}

// CancelScheduledDowngrade undoes a pending downgrade: it clears a period-end
// cancellation, releases any schedule still driving the subscription, and
// clears the locally recorded scheduled tier. Calling it with nothing pending
// succeeds without mutating anything on the processor.
func (s *Service) CancelScheduledDowngrade(ctx context.Context, userID, subscriptionID string) (*types.CancelScheduledResult, error) {
	rec, err := s.ownedRecord(ctx, userID, subscriptionID, OpCancelScheduledDowngrade)
	if err != nil {
		return nil, err
	}

	sub, err := s.processor.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, s.processorError(ctx, OpCancelScheduledDowngrade, err)
	}

	if sub.CancelAtPeriodEnd {
		keep := false
		if _, err := s.processor.UpdateSubscription(ctx, subscriptionID, types.SubscriptionUpdateParams{
			CancelAtPeriodEnd: &keep,
		}); err != nil {
			return nil, s.processorError(ctx, OpCancelScheduledDowngrade, err)
		}
	}

	released, err := s.releaseAttachedSchedule(ctx, sub, OpCancelScheduledDowngrade)
	if err != nil {
		return nil, err
	}

	if sub.CancelAtPeriodEnd || released || rec.HasPendingChange() {
		s.bestEffort(ctx, OpCancelScheduledDowngrade, rec.UserID, func(ctx context.Context) error {
			return s.store.ClearScheduledChange(ctx, rec.UserID)
		})
		s.metrics.RecordSubscriptionMutated(ctx, OpCancelScheduledDowngrade)
		s.logger.InfoContext(ctx, "scheduled downgrade cancelled",
			"user_id", userID,
			"subscription_id", subscriptionID,
			"cleared_cancellation", sub.CancelAtPeriodEnd,
			"released_schedule", released,
		)
	}

	return &types.CancelScheduledResult{Success: true}, nil
}

// validateDowngradePrice checks an explicit target price against the catalog
// before any processor call. A price sent with the free tier is ignored.
func (s *Service) validateDowngradePrice(newPriceID string, newTier types.Tier) error {
	if !newTier.IsPaid() {
		return nil
	}
	if err := s.requireKnownPrice(newPriceID); err != nil {
		return err
	}
	if target, _ := s.catalog.Resolve(newPriceID); target.Tier != newTier {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPrice,
			"price does not belong to the requested tier", nil,
			map[string]any{"price_id": newPriceID, "tier": newTier})
	}
	return nil
}

// scheduleCancellation turns a downgrade to free into cancel_at_period_end.
// A schedule left over from an earlier paid downgrade is released first so
// it cannot move the subscription onto another price at the boundary.
func (s *Service) scheduleCancellation(ctx context.Context, sub *types.ProcessorSubscription) error {
	if _, err := s.releaseAttachedSchedule(ctx, sub, OpScheduleDowngrade); err != nil {
		return err
	}
	cancel := true
	if _, err := s.processor.UpdateSubscription(ctx, sub.ID, types.SubscriptionUpdateParams{
		CancelAtPeriodEnd: &cancel,
	}); err != nil {
		return s.processorError(ctx, OpScheduleDowngrade, err)
	}
	return nil
}

// schedulePhaseChange obtains (or creates) the subscription's schedule and
// rewrites it to two phases: the current price until the period ends, then
// newPriceID for one iteration before the schedule releases.
func (s *Service) schedulePhaseChange(ctx context.Context, sub *types.ProcessorSubscription, item types.SubscriptionItem, newPriceID string) error {
	if sub.CancelAtPeriodEnd {
		keep := false
		if _, err := s.processor.UpdateSubscription(ctx, sub.ID, types.SubscriptionUpdateParams{
			CancelAtPeriodEnd: &keep,
		}); err != nil {
			return s.processorError(ctx, OpScheduleDowngrade, err)
		}
	}

	sched, err := s.attachedSchedule(ctx, sub, OpScheduleDowngrade)
	if err != nil {
		return err
	}
	if sched == nil {
		if sched, err = s.processor.CreateScheduleFromSubscription(ctx, sub.ID); err != nil {
			return s.processorError(ctx, OpScheduleDowngrade, err)
		}
	}

	if _, err := s.processor.UpdateSchedule(ctx, sched.ID, types.ScheduleUpdateParams{
		EndBehavior: types.ScheduleEndRelease,
		Phases:      downgradePhases(sched, sub, item.PriceID, newPriceID),
	}); err != nil {
		return s.processorError(ctx, OpScheduleDowngrade, err)
	}
	return nil
}

// downgradePhases builds the two schedule phases. The first phase keeps the
// start date the processor already holds for the current phase, since it
// cannot be moved once the phase has begun.
func downgradePhases(sched *types.SubscriptionSchedule, sub *types.ProcessorSubscription, currentPriceID, newPriceID string) []types.SchedulePhase {
	start := sub.CurrentPeriodStart
	if len(sched.Phases) > 0 && !sched.Phases[0].StartDate.IsZero() {
		start = sched.Phases[0].StartDate
	}
	boundary := sub.CurrentPeriodEnd

	return []types.SchedulePhase{
		{PriceID: currentPriceID, StartDate: start, EndDate: boundary},
		{PriceID: newPriceID, StartDate: boundary, Iterations: 1, ProrationBehavior: types.ProrationNone},
	}
}

// attachedSchedule returns the schedule currently driving sub, or nil when
// there is none or it no longer governs the subscription. An id-only
// reference is resolved with an extra read.
func (s *Service) attachedSchedule(ctx context.Context, sub *types.ProcessorSubscription, operation string) (*types.SubscriptionSchedule, error) {
	if sub.Schedule.IsZero() {
		return nil, nil
	}
	sched, ok := sub.Schedule.Object()
	if !ok {
		fetched, err := s.processor.GetSchedule(ctx, sub.Schedule.ID())
		if err != nil {
			return nil, s.processorError(ctx, operation, err)
		}
		sched = fetched
	}
	if !sched.Status.Governs() {
		return nil, nil
	}
	return sched, nil
}

// releaseAttachedSchedule releases the governing schedule, if any, and
// reports whether one was released.
func (s *Service) releaseAttachedSchedule(ctx context.Context, sub *types.ProcessorSubscription, operation string) (bool, error) {
	sched, err := s.attachedSchedule(ctx, sub, operation)
	if err != nil || sched == nil {
		return false, err
	}
	if _, err := s.processor.ReleaseSchedule(ctx, sched.ID); err != nil {
		return false, s.processorError(ctx, operation, err)
	}
	s.logger.InfoContext(ctx, "released subscription schedule",
		"operation", operation,
		"subscription_id", sub.ID,
		"schedule_id", sched.ID,
	)
	return true, nil
}
