package billing

import (
	"context"
	"time"

	"clientdesk/internal/types"
)

// Checkout payment states that count as settled. A trial checkout completes
// with no payment required.
const (
	paymentStatusPaid      = "paid"
	paymentStatusNoPayment = "no_payment_required"
)

// VerifyCheckoutSession is the fallback reconciler for the window between a
// completed checkout and its webhook. It binds the caller's record to the
// session's subscription and is the only path that may move a record from
// unbound to bound outside the webhook.
//
// A record that is already active and bound short-circuits as already
// processed, so the endpoint cannot be used to re-trigger activations. The
// session must carry the caller's user id in its metadata; a mismatch is
// forbidden and leaves local state untouched.
func (s *Service) VerifyCheckoutSession(ctx context.Context, userID, sessionID string) (*types.CheckoutVerification, error) {
	if sessionID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "session_id is required", nil)
	}

	rec, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Status == types.SubStatusActive && rec.IsBound() {
		s.logger.InfoContext(ctx, "checkout already reconciled",
			"user_id", userID,
			"session_id", sessionID,
			"subscription_id", rec.ExternalSubscriptionID,
		)
		return &types.CheckoutVerification{
			Success:          true,
			Tier:             rec.Tier,
			Status:           rec.Status,
			AlreadyProcessed: true,
		}, nil
	}

	session, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, s.processorError(ctx, OpVerifyCheckoutSession, err)
	}

	if owner := session.Metadata[types.MetadataUserID]; owner != userID {
		s.logger.WarnContext(ctx, "checkout session ownership check failed",
			"user_id", userID,
			"session_id", sessionID,
		)
		return nil, types.NewAppError(types.ErrCodePermissionCheckoutSession,
			"checkout session does not belong to the current user", nil)
	}

	if session.PaymentStatus != paymentStatusPaid && session.PaymentStatus != paymentStatusNoPayment {
		return nil, types.NewAppErrorWithDetails(types.ErrCodePaymentIncomplete,
			"checkout payment has not completed", nil,
			map[string]any{"payment_status": session.PaymentStatus, "session_status": session.Status})
	}

	sub, err := s.checkoutSubscription(ctx, session)
	if err != nil {
		return nil, err
	}
	item, err := primaryItem(sub)
	if err != nil {
		return nil, err
	}
	desc := s.resolveTier(ctx, item.PriceID, sub.ID)

	customerID := session.CustomerID
	if customerID == "" {
		customerID = sub.CustomerID
	}

	act := types.CheckoutActivation{
		CustomerID:     customerID,
		SubscriptionID: sub.ID,
		Tier:           desc.Tier,
		MonthlyLimit:   desc.MonthlyLimit,
		Interval:       desc.Interval,
		Status:         types.SubStatusActive,
		UsageResetDate: periodEndOrNow(sub.CurrentPeriodEnd, s.now()),
	}
	// Nothing was mutated on the processor, so unlike the optimistic writes
	// elsewhere this one is the result of the call and its failure is returned.
	if err := s.store.ActivateFromCheckout(ctx, userID, act); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout reconciled ahead of webhook",
		"user_id", userID,
		"session_id", sessionID,
		"subscription_id", sub.ID,
		"tier", desc.Tier,
	)
	return &types.CheckoutVerification{Success: true, Tier: desc.Tier, Status: act.Status}, nil
}

// checkoutSubscription pattern-matches the session's subscription reference:
// an expanded object is used as is, an id-only reference is fetched.
func (s *Service) checkoutSubscription(ctx context.Context, session *types.CheckoutSession) (*types.ProcessorSubscription, error) {
	if sub, ok := session.Subscription.Object(); ok {
		return sub, nil
	}
	if session.Subscription.IsZero() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictNoActivePlan,
			"checkout session did not create a subscription", nil,
			map[string]any{"mode": session.Mode})
	}
	sub, err := s.processor.GetSubscription(ctx, session.Subscription.ID())
	if err != nil {
		return nil, s.processorError(ctx, OpVerifyCheckoutSession, err)
	}
	return sub, nil
}

// periodEndOrNow guards against a processor object without period bounds.
func periodEndOrNow(end, now time.Time) time.Time {
	if end.IsZero() {
		return now.UTC()
	}
	return end
}
