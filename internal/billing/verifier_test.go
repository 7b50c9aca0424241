package billing

import (
	"context"
	"errors"
	"testing"

	"clientdesk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedSession registers a paid checkout session owned by owner whose
// subscription is on priceID.
func (e *testEnv) completedSession(owner, priceID string, expanded bool) *types.CheckoutSession {
	sub := e.withSubscription(priceID)
	ref := types.RefID[types.ProcessorSubscription](sub.ID)
	if expanded {
		ref = types.RefObject(sub.ID, sub)
	}
	cs := &types.CheckoutSession{
		ID:            "cs_done",
		Mode:          types.CheckoutModeSubscription,
		Status:        "complete",
		PaymentStatus: "paid",
		CustomerID:    testCustomerID,
		Metadata:      map[string]string{types.MetadataUserID: owner},
		Subscription:  ref,
	}
	e.proc.sessions[cs.ID] = cs
	return cs
}

func statusOf(err error) int {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return 0
}

func TestVerifyCheckoutSession_ActivatesRecord(t *testing.T) {
	for _, expanded := range []bool{true, false} {
		name := "id-only subscription"
		if expanded {
			name = "expanded subscription"
		}
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, freeRecord())
			env.completedSession(testUserID, "price_pro_y", expanded)

			got, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_done")
			require.NoError(t, err)

			assert.True(t, got.Success)
			assert.False(t, got.AlreadyProcessed)
			assert.Equal(t, types.TierProfessional, got.Tier)
			assert.Equal(t, types.SubStatusActive, got.Status)

			rec := env.store.get(testUserID)
			assert.Equal(t, testSubID, rec.ExternalSubscriptionID)
			assert.Equal(t, testCustomerID, rec.ExternalCustomerID)
			assert.Equal(t, types.IntervalAnnual, rec.BillingInterval)
			assert.Equal(t, 100, rec.MonthlyLimit)
			assert.Equal(t, annualEnd, *rec.UsageResetDate)
			assert.True(t, rec.HasUsedTrial)

			wantFetch := 1
			if expanded {
				wantFetch = 0
			}
			assert.Equal(t, wantFetch, env.proc.callCount("GetSubscription"))
		})
	}
}

func TestVerifyCheckoutSession_AlreadyProcessedMakesNoCalls(t *testing.T) {
	env := newTestEnv(t, boundRecord(types.TierPremium, types.IntervalMonthly))

	got, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_anything")
	require.NoError(t, err)

	assert.True(t, got.AlreadyProcessed)
	assert.Equal(t, types.TierPremium, got.Tier)
	assert.Equal(t, 0, env.proc.callCount(""))
	assert.Equal(t, 0, env.store.writeCount())
}

func TestVerifyCheckoutSession_ForeignSessionIsForbidden(t *testing.T) {
	env := newTestEnv(t, freeRecord())
	env.completedSession("user-2", "price_pro_m", true)

	_, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_done")
	require.Error(t, err)

	assert.True(t, types.HasCode(err, types.ErrCodePermissionCheckoutSession))
	assert.Equal(t, 403, statusOf(err))
	assert.Equal(t, 0, env.store.writeCount())
	assert.False(t, env.store.get(testUserID).IsBound())
}

func TestVerifyCheckoutSession_PaymentStatus(t *testing.T) {
	tests := []struct {
		status  string
		wantErr bool
	}{
		{"paid", false},
		{"no_payment_required", false},
		{"unpaid", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			env := newTestEnv(t, freeRecord())
			cs := env.completedSession(testUserID, "price_pro_m", true)
			cs.PaymentStatus = tt.status

			_, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, cs.ID)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			assert.True(t, types.HasCode(err, types.ErrCodePaymentIncomplete))
			assert.Equal(t, 402, statusOf(err))
			assert.Equal(t, 0, env.store.writeCount())
		})
	}
}

func TestVerifyCheckoutSession_SessionWithoutSubscription(t *testing.T) {
	env := newTestEnv(t, freeRecord())
	cs := env.completedSession(testUserID, "price_pro_m", true)
	cs.Subscription = types.Expandable[types.ProcessorSubscription]{}

	_, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, cs.ID)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictNoActivePlan))
	assert.Equal(t, 0, env.store.writeCount())
}

func TestVerifyCheckoutSession_LegacyPriceFallsOpen(t *testing.T) {
	env := newTestEnv(t, freeRecord())
	env.completedSession(testUserID, "price_grandfathered", true)

	got, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_done")
	require.NoError(t, err)

	assert.Equal(t, types.TierPremium, got.Tier)
	assert.Equal(t, types.UnlimitedQuota, env.store.get(testUserID).MonthlyLimit)
	assert.Equal(t, []string{types.ReasonUnknownPrice}, env.metrics.warnings)
}

func TestVerifyCheckoutSession_StoreFailureIsReturned(t *testing.T) {
	env := newTestEnv(t, freeRecord())
	env.completedSession(testUserID, "price_pro_m", true)
	dbErr := errors.New("deadlock detected")
	env.store.failWrites = dbErr

	_, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_done")
	assert.ErrorIs(t, err, dbErr)
	assert.Empty(t, env.metrics.lost)
}

func TestVerifyCheckoutSession_Validation(t *testing.T) {
	env := newTestEnv(t, freeRecord())

	_, err := env.svc.VerifyCheckoutSession(context.Background(), testUserID, "")
	assert.True(t, types.HasCode(err, types.ErrCodeValidationMissingField))

	_, err = env.svc.VerifyCheckoutSession(context.Background(), testUserID, "cs_missing")
	assert.True(t, types.HasCode(err, types.ErrCodeInternalProcessor))
}
