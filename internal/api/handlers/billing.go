// Package handlers contains the HTTP handlers of the billing API.
//
// Every route acts on the authenticated user's own SubscriptionRecord; the
// caller identity always comes from the Actor injected by core.AuthMiddleware,
// never from the request body.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clientdesk/internal/billing"
	"clientdesk/internal/core"
	"clientdesk/internal/types"
)

// BillingService is the contract of billing.Service the handlers depend on.
// Defined here so tests can inject a fake.
type BillingService interface {
	GetSubscription(ctx context.Context, userID string) (*types.SubscriptionRecord, error)

	CreateCheckoutSession(ctx context.Context, userID string, req billing.CheckoutRequest) (*types.CheckoutSessionResult, error)
	CreateSubscriptionSession(ctx context.Context, userID string, req billing.CheckoutRequest) (*types.CheckoutSessionResult, error)
	VerifyCheckoutSession(ctx context.Context, userID, sessionID string) (*types.CheckoutVerification, error)

	UpdateSubscription(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.SubscriptionSnapshot, error)
	SwitchBillingCycle(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.SubscriptionSnapshot, error)
	PreviewProration(ctx context.Context, userID, subscriptionID, newPriceID string) (*types.ProrationSummary, error)
	CancelSubscription(ctx context.Context, userID, subscriptionID string, cancelAtPeriodEnd bool) (*types.SubscriptionSnapshot, error)

	ScheduleDowngrade(ctx context.Context, userID, subscriptionID, newPriceID string, newTier types.Tier) (*types.ScheduledDowngrade, error)
	CancelScheduledDowngrade(ctx context.Context, userID, subscriptionID string) (*types.CancelScheduledResult, error)
}

// --- Request Models ---

// PaymentCheckoutRequest is the body of POST /v1/billing/checkout/payment.
type PaymentCheckoutRequest struct {
	PriceID    string `json:"price_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,dashboard_url"`
	CancelURL  string `json:"cancel_url" validate:"required,dashboard_url"`
}

// SubscriptionCheckoutRequest is the body of POST /v1/billing/checkout/subscription.
type SubscriptionCheckoutRequest struct {
	PriceID         string `json:"price_id" validate:"required"`
	SuccessURL      string `json:"success_url" validate:"required,dashboard_url"`
	CancelURL       string `json:"cancel_url" validate:"required,dashboard_url"`
	TrialPeriodDays int    `json:"trial_period_days" validate:"gte=0,lte=730"`
}

// VerifyCheckoutRequest is the body of POST /v1/billing/checkout/verify.
type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// PriceChangeRequest is the body of the update and billing-cycle routes.
type PriceChangeRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

// CancelRequest is the body of POST .../cancel. The flag is required so an
// empty body never cancels immediately by accident.
type CancelRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end" validate:"required"`
}

// DowngradeRequest is the body of POST .../downgrade. Without price_id a paid
// tier keeps the current billing interval.
type DowngradeRequest struct {
	PriceID string     `json:"price_id"`
	Tier    types.Tier `json:"tier" validate:"required"`
}

// --- Handler ---

// BillingHandler exposes the caller-facing billing operations.
type BillingHandler struct {
	service   BillingService
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. A nil logger uses slog.Default.
func NewBillingHandler(svc BillingService, v *core.Validator, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{service: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the billing endpoints on the authenticated /v1 router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/subscription", h.GetSubscription)

		r.Post("/checkout/payment", h.CreateCheckoutSession)
		r.Post("/checkout/subscription", h.CreateSubscriptionSession)
		r.Post("/checkout/verify", h.VerifyCheckoutSession)

		r.Route("/subscriptions/{subscriptionID}", func(r chi.Router) {
			r.Post("/update", h.UpdateSubscription)
			r.Post("/billing-cycle", h.SwitchBillingCycle)
			r.Get("/proration", h.PreviewProration)
			r.Post("/cancel", h.CancelSubscription)
			r.Post("/downgrade", h.ScheduleDowngrade)
			r.Delete("/downgrade", h.CancelScheduledDowngrade)
		})
	})
}

// GetSubscription handles GET /v1/billing/subscription. The dashboard reads
// tier, quota and any pending change from it.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.service.GetSubscription(r.Context(), userID)
	h.respond(w, r, res, err)
}

// CreateCheckoutSession handles POST /v1/billing/checkout/payment.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req PaymentCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.CreateCheckoutSession(r.Context(), userID, billing.CheckoutRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	h.respond(w, r, res, err)
}

// CreateSubscriptionSession handles POST /v1/billing/checkout/subscription.
func (h *BillingHandler) CreateSubscriptionSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req SubscriptionCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.CreateSubscriptionSession(r.Context(), userID, billing.CheckoutRequest{
		PriceID:         req.PriceID,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		TrialPeriodDays: req.TrialPeriodDays,
	})
	h.respond(w, r, res, err)
}

// VerifyCheckoutSession handles POST /v1/billing/checkout/verify, called by
// the dashboard on the checkout success page.
func (h *BillingHandler) VerifyCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req VerifyCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.VerifyCheckoutSession(r.Context(), userID, req.SessionID)
	h.respond(w, r, res, err)
}

// UpdateSubscription handles POST /v1/billing/subscriptions/{subscriptionID}/update.
func (h *BillingHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req PriceChangeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.UpdateSubscription(r.Context(), userID, chi.URLParam(r, "subscriptionID"), req.PriceID)
	h.respond(w, r, res, err)
}

// SwitchBillingCycle handles POST /v1/billing/subscriptions/{subscriptionID}/billing-cycle.
func (h *BillingHandler) SwitchBillingCycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req PriceChangeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.SwitchBillingCycle(r.Context(), userID, chi.URLParam(r, "subscriptionID"), req.PriceID)
	h.respond(w, r, res, err)
}

// PreviewProration handles GET /v1/billing/subscriptions/{subscriptionID}/proration?price_id=.
func (h *BillingHandler) PreviewProration(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	priceID := r.URL.Query().Get("price_id")
	if priceID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "price_id query parameter is required", nil))
		return
	}

	res, err := h.service.PreviewProration(r.Context(), userID, chi.URLParam(r, "subscriptionID"), priceID)
	h.respond(w, r, res, err)
}

// CancelSubscription handles POST /v1/billing/subscriptions/{subscriptionID}/cancel.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.CancelSubscription(r.Context(), userID, chi.URLParam(r, "subscriptionID"), *req.CancelAtPeriodEnd)
	h.respond(w, r, res, err)
}

// ScheduleDowngrade handles POST /v1/billing/subscriptions/{subscriptionID}/downgrade.
func (h *BillingHandler) ScheduleDowngrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req DowngradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.ScheduleDowngrade(r.Context(), userID, chi.URLParam(r, "subscriptionID"), req.PriceID, req.Tier)
	h.respond(w, r, res, err)
}

// CancelScheduledDowngrade handles DELETE /v1/billing/subscriptions/{subscriptionID}/downgrade.
func (h *BillingHandler) CancelScheduledDowngrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.service.CancelScheduledDowngrade(r.Context(), userID, chi.URLParam(r, "subscriptionID"))
	h.respond(w, r, res, err)
}

// --- helpers ---

func (h *BillingHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return "", false
	}
	return userID, true
}

// decode reads and validates the body, writing the error response itself.
func (h *BillingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}

func (h *BillingHandler) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		if status := httpStatus(err); status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "billing request failed",
				"path", r.URL.Path,
				"error", err,
			)
		}
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: data})
}

func httpStatus(err error) int {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
