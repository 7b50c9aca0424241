package billing

import (
	"context"
	"strconv"

	"clientdesk/internal/types"
)

// CheckoutRequest is the input of both checkout entry points. TrialPeriodDays
// only applies to subscription checkout.
type CheckoutRequest struct {
	PriceID         string
	SuccessURL      string
	CancelURL       string
	TrialPeriodDays int
}

// CreateCheckoutSession starts a one-time payment checkout. No local state
// changes beyond binding the processor customer.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID string, req CheckoutRequest) (*types.CheckoutSessionResult, error) {
	if req.PriceID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "price_id is required", nil)
	}
	return s.createCheckout(ctx, userID, types.CheckoutModePayment, opCheckoutPayment, OpCreateCheckoutSession, req)
}

// CreateSubscriptionSession starts a subscription checkout for a catalog
// price. A trial is granted at most once per user: when the record shows the
// trial was already used, the requested trial is dropped.
func (s *Service) CreateSubscriptionSession(ctx context.Context, userID string, req CheckoutRequest) (*types.CheckoutSessionResult, error) {
	if err := s.requireKnownPrice(req.PriceID); err != nil {
		return nil, err
	}
	return s.createCheckout(ctx, userID, types.CheckoutModeSubscription, opCheckoutSubscription, OpCreateSubscriptionSession, req)
}

func (s *Service) createCheckout(
	ctx context.Context,
	userID string,
	mode types.CheckoutMode,
	keyOp, operation string,
	req CheckoutRequest,
) (*types.CheckoutSessionResult, error) {
	rec, err := s.record(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, rec)
	if err != nil {
		return nil, err
	}

	trialDays := 0
	if mode == types.CheckoutModeSubscription && req.TrialPeriodDays > 0 {
		if rec.HasUsedTrial {
			s.logger.InfoContext(ctx, "trial already used, suppressing trial period",
				"user_id", userID,
				"requested_days", req.TrialPeriodDays,
			)
		} else {
			trialDays = req.TrialPeriodDays
		}
	}

	session, err := s.processor.CreateCheckoutSession(ctx, types.CheckoutSessionParams{
		Mode:            mode,
		CustomerID:      customerID,
		PriceID:         req.PriceID,
		UserID:          userID,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		TrialPeriodDays: trialDays,
		IdempotencyKey:  s.keys.Key(keyOp, userID, req.PriceID, s.now(), "trial="+strconv.Itoa(trialDays)),
	})
	if err != nil {
		return nil, s.processorError(ctx, operation, err)
	}

	s.metrics.RecordCheckoutCreated(ctx, mode)
	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", userID,
		"session_id", session.ID,
		"price_id", req.PriceID,
		"mode", mode,
		"trial_days", trialDays,
	)

	return &types.CheckoutSessionResult{SessionID: session.ID, URL: session.URL}, nil
}
