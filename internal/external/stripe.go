package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clientdesk/internal/types"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements PaymentProcessor with form-encoded calls to the
// Stripe REST API, routed through BaseClient so every call shares the same
// breaker, retry and error mapping.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient. The http client timeout bounds each
// attempt; the request context bounds the whole call.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "ClientDesk/1.0")
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// GetCustomer retrieves a customer. Deleted customers come back with
// Deleted=true rather than as an error.
func (s *StripeClient) GetCustomer(ctx context.Context, customerID string) (*types.ProcessorCustomer, error) {
	var c stripeCustomer
	if err := s.call(ctx, "GetCustomer", http.MethodGet, "/v1/customers/"+url.PathEscape(customerID), nil, "", &c); err != nil {
		return nil, err
	}
	return c.toDomain(), nil
}

// CreateCustomer creates a customer tagged with metadata[userId].
func (s *StripeClient) CreateCustomer(ctx context.Context, p types.CreateCustomerParams) (*types.ProcessorCustomer, error) {
	form := url.Values{}
	form.Set("email", p.Email)
	if p.Name != "" {
		form.Set("name", p.Name)
	}
	form.Set("metadata["+types.MetadataUserID+"]", p.UserID)

	var c stripeCustomer
	if err := s.call(ctx, "CreateCustomer", http.MethodPost, "/v1/customers", form, p.IdempotencyKey, &c); err != nil {
		return nil, err
	}
	return c.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Checkout Sessions
// ---------------------------------------------------------------------------

// CreateCheckoutSession creates a hosted checkout page for a single price.
// client_reference_id and metadata[userId] carry the caller identity so the
// webhook and the verifier can correlate the session.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p types.CheckoutSessionParams) (*types.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", checkoutMode(p.Mode))
	form.Set("customer", p.CustomerID)
	form.Set("client_reference_id", p.UserID)
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("metadata["+types.MetadataUserID+"]", p.UserID)
	form.Set("line_items[0][price]", p.PriceID)
	form.Set("line_items[0][quantity]", "1")

	if p.Mode == types.CheckoutModeSubscription {
		form.Set("subscription_data[metadata]["+types.MetadataUserID+"]", p.UserID)
		if p.TrialPeriodDays > 0 {
			form.Set("subscription_data[trial_period_days]", strconv.Itoa(p.TrialPeriodDays))
		}
	}

	var cs stripeCheckoutSession
	if err := s.call(ctx, "CreateCheckoutSession", http.MethodPost, "/v1/checkout/sessions", form, p.IdempotencyKey, &cs); err != nil {
		return nil, err
	}
	return cs.toDomain(), nil
}

// GetCheckoutSession retrieves a session with its subscription expanded.
func (s *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	q := url.Values{}
	q.Add("expand[]", "subscription")

	var cs stripeCheckoutSession
	if err := s.call(ctx, "GetCheckoutSession", http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), q, "", &cs); err != nil {
		return nil, err
	}
	return cs.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// GetSubscription retrieves a subscription with its schedule expanded.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*types.ProcessorSubscription, error) {
	q := url.Values{}
	q.Add("expand[]", "schedule")

	var sub stripeSubscription
	if err := s.call(ctx, "GetSubscription", http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), q, "", &sub); err != nil {
		return nil, err
	}
	return sub.toDomain(), nil
}

// UpdateSubscription swaps the item price and/or toggles cancel_at_period_end.
func (s *StripeClient) UpdateSubscription(ctx context.Context, subscriptionID string, p types.SubscriptionUpdateParams) (*types.ProcessorSubscription, error) {
	form := url.Values{}
	if p.ItemID != "" && p.PriceID != "" {
		form.Set("items[0][id]", p.ItemID)
		form.Set("items[0][price]", p.PriceID)
	}
	if p.ProrationBehavior != "" {
		form.Set("proration_behavior", p.ProrationBehavior)
	}
	if p.CancelAtPeriodEnd != nil {
		form.Set("cancel_at_period_end", strconv.FormatBool(*p.CancelAtPeriodEnd))
	}

	var sub stripeSubscription
	if err := s.call(ctx, "UpdateSubscription", http.MethodPost, "/v1/subscriptions/"+url.PathEscape(subscriptionID), form, "", &sub); err != nil {
		return nil, err
	}
	return sub.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Prices & Invoices
// ---------------------------------------------------------------------------

// GetPrice retrieves a price.
func (s *StripeClient) GetPrice(ctx context.Context, priceID string) (*types.ProcessorPrice, error) {
	var p stripePrice
	if err := s.call(ctx, "GetPrice", http.MethodGet, "/v1/prices/"+url.PathEscape(priceID), nil, "", &p); err != nil {
		return nil, err
	}
	return p.toDomain(), nil
}

// PreviewInvoice simulates the next invoice as if the item's price were
// swapped at ProrationDate.
func (s *StripeClient) PreviewInvoice(ctx context.Context, p types.InvoicePreviewParams) (*types.InvoicePreview, error) {
	form := url.Values{}
	form.Set("customer", p.CustomerID)
	form.Set("subscription", p.SubscriptionID)
	form.Set("subscription_details[items][0][id]", p.ItemID)
	form.Set("subscription_details[items][0][price]", p.PriceID)
	form.Set("subscription_details[proration_behavior]", "create_prorations")
	if !p.ProrationDate.IsZero() {
		form.Set("subscription_details[proration_date]", strconv.FormatInt(p.ProrationDate.Unix(), 10))
	}

	var inv stripeInvoice
	if err := s.call(ctx, "PreviewInvoice", http.MethodPost, "/v1/invoices/create_preview", form, "", &inv); err != nil {
		return nil, err
	}
	return inv.toDomain(), nil
}

// ---------------------------------------------------------------------------
// Subscription Schedules
// ---------------------------------------------------------------------------

// CreateScheduleFromSubscription wraps an existing subscription in a schedule
// whose single phase mirrors the current period.
func (s *StripeClient) CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSchedule, error) {
	form := url.Values{}
	form.Set("from_subscription", subscriptionID)

	var sched stripeSchedule
	if err := s.call(ctx, "CreateSchedule", http.MethodPost, "/v1/subscription_schedules", form, "", &sched); err != nil {
		return nil, err
	}
	return sched.toDomain(), nil
}

// GetSchedule retrieves a subscription schedule.
func (s *StripeClient) GetSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	var sched stripeSchedule
	if err := s.call(ctx, "GetSchedule", http.MethodGet, "/v1/subscription_schedules/"+url.PathEscape(scheduleID), nil, "", &sched); err != nil {
		return nil, err
	}
	return sched.toDomain(), nil
}

// UpdateSchedule replaces the schedule's phases.
func (s *StripeClient) UpdateSchedule(ctx context.Context, scheduleID string, p types.ScheduleUpdateParams) (*types.SubscriptionSchedule, error) {
	form := url.Values{}
	if p.EndBehavior != "" {
		form.Set("end_behavior", p.EndBehavior)
	}
	for i, phase := range p.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)
		form.Set(prefix+"[items][0][price]", phase.PriceID)
		form.Set(prefix+"[items][0][quantity]", "1")
		if !phase.StartDate.IsZero() {
			form.Set(prefix+"[start_date]", strconv.FormatInt(phase.StartDate.Unix(), 10))
		}
		if !phase.EndDate.IsZero() {
			form.Set(prefix+"[end_date]", strconv.FormatInt(phase.EndDate.Unix(), 10))
		}
		if phase.Iterations > 0 {
			form.Set(prefix+"[iterations]", strconv.Itoa(phase.Iterations))
		}
		if phase.ProrationBehavior != "" {
			form.Set(prefix+"[proration_behavior]", phase.ProrationBehavior)
		}
	}

	var sched stripeSchedule
	if err := s.call(ctx, "UpdateSchedule", http.MethodPost, "/v1/subscription_schedules/"+url.PathEscape(scheduleID), form, "", &sched); err != nil {
		return nil, err
	}
	return sched.toDomain(), nil
}

// ReleaseSchedule detaches the schedule and leaves the subscription under
// direct price management. Releasing an already released schedule is
// reported by Stripe as invalid_request_error and treated as success here.
func (s *StripeClient) ReleaseSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	var sched stripeSchedule
	err := s.call(ctx, "ReleaseSchedule", http.MethodPost, "/v1/subscription_schedules/"+url.PathEscape(scheduleID)+"/release", url.Values{}, "", &sched)
	if err != nil {
		if isAlreadyReleased(err) {
			return &types.SubscriptionSchedule{ID: scheduleID, Status: types.ScheduleStatusReleased}, nil
		}
		return nil, err
	}
	return sched.toDomain(), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// call performs one API request and decodes a 200 body into out. GET sends
// form as the query string; POST sends it form-encoded.
//
// Every POST carries an Idempotency-Key so BaseClient retries are
// deduplicated by Stripe. Callers without a key of their own get a fresh
// one per call, shared by all of its attempts.
func (s *StripeClient) call(ctx context.Context, operation, method, path string, form url.Values, idempotencyKey string, out any) error {
	reqURL := s.baseURL + path

	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			reqURL += "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("%s: building request", operation), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if method == http.MethodPost && idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("%s: failed to decode Stripe response", operation), err)
	}
	return nil
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

func mapStripeError(operation string, statusCode int, se *stripeErrorBody) error {
	details := map[string]any{
		"stripe_type":    se.Type,
		"stripe_code":    se.Code,
		"stripe_message": se.Message,
	}

	if se.Code == "card_declined" || se.DeclineCode != "" {
		details["decline_code"] = se.DeclineCode
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, se.Message),
			nil,
			details,
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("%s: Stripe rate limit exceeded", operation), nil)
	case statusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("%s: Stripe server error: %s", operation, se.Message), nil)
	case statusCode == http.StatusNotFound || se.Code == "resource_missing":
		return types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundProcessorResource,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, se.Message),
			nil,
			details,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, se.Message),
			nil,
			details,
		)
	}
}

func (s *StripeClient) wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, fmt.Sprintf("%s: Stripe request failed", operation), err)
}

// isAlreadyReleased matches the invalid_request_error Stripe returns when a
// schedule was released (or completed) before our call.
func isAlreadyReleased(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamStripe {
		return false
	}
	if appErr.Details["stripe_type"] != "invalid_request_error" {
		return false
	}
	msg, _ := appErr.Details["stripe_message"].(string)
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "released") || strings.Contains(msg, "completed")
}

// ---------------------------------------------------------------------------
// Wire Types
// ---------------------------------------------------------------------------

// expandable decodes a Stripe field that is either an id string or an
// expanded object carrying an "id".
type expandable[T any] struct {
	ID  string
	Obj *T
}

func (e *expandable[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}

	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	var obj T
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = ref.ID
	e.Obj = &obj
	return nil
}

type stripeCustomer struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

func (c *stripeCustomer) toDomain() *types.ProcessorCustomer {
	return &types.ProcessorCustomer{ID: c.ID, Email: c.Email, Name: c.Name, Deleted: c.Deleted}
}

type stripePrice struct {
	ID         string `json:"id"`
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unit_amount"`
	Recurring  *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

func (p *stripePrice) toDomain() *types.ProcessorPrice {
	out := &types.ProcessorPrice{
		ID:         p.ID,
		Currency:   p.Currency,
		UnitAmount: p.UnitAmount,
		Interval:   types.IntervalMonthly,
	}
	if p.Recurring != nil {
		out.Recurring = true
		if p.Recurring.Interval == string(stripe.PriceRecurringIntervalYear) {
			out.Interval = types.IntervalAnnual
		}
	}
	return out
}

// stripeSubscriptionItem carries the billing period; since the 2025-03-31
// API versions the period lives on items, not on the subscription.
type stripeSubscriptionItem struct {
	ID                 string      `json:"id"`
	Price              stripePrice `json:"price"`
	CurrentPeriodStart int64       `json:"current_period_start"`
	CurrentPeriodEnd   int64       `json:"current_period_end"`
}

type stripeSubscription struct {
	ID                string                     `json:"id"`
	Customer          expandable[stripeCustomer] `json:"customer"`
	Status            string                     `json:"status"`
	CancelAtPeriodEnd bool                       `json:"cancel_at_period_end"`
	Items             struct {
		Data []stripeSubscriptionItem `json:"data"`
	} `json:"items"`
	Schedule expandable[stripeSchedule] `json:"schedule"`
	Metadata map[string]string          `json:"metadata"`
}

func (s *stripeSubscription) toDomain() *types.ProcessorSubscription {
	out := &types.ProcessorSubscription{
		ID:                s.ID,
		CustomerID:        s.Customer.ID,
		Status:            mapSubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	for i, item := range s.Items.Data {
		out.Items = append(out.Items, types.SubscriptionItem{ID: item.ID, PriceID: item.Price.ID})
		if i == 0 {
			out.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
			out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	switch {
	case s.Schedule.Obj != nil:
		out.Schedule = types.RefObject(s.Schedule.ID, s.Schedule.Obj.toDomain())
	case s.Schedule.ID != "":
		out.Schedule = types.RefID[types.SubscriptionSchedule](s.Schedule.ID)
	}
	return out
}

type stripeSchedulePhase struct {
	StartDate         int64  `json:"start_date"`
	EndDate           int64  `json:"end_date"`
	ProrationBehavior string `json:"proration_behavior"`
	Items             []struct {
		Price expandable[stripePrice] `json:"price"`
	} `json:"items"`
}

type stripeSchedule struct {
	ID           string                `json:"id"`
	Status       string                `json:"status"`
	EndBehavior  string                `json:"end_behavior"`
	Subscription expandable[struct{}]  `json:"subscription"`
	Phases       []stripeSchedulePhase `json:"phases"`
}

func (s *stripeSchedule) toDomain() *types.SubscriptionSchedule {
	out := &types.SubscriptionSchedule{
		ID:             s.ID,
		Status:         mapScheduleStatus(s.Status),
		SubscriptionID: s.Subscription.ID,
		EndBehavior:    s.EndBehavior,
	}
	for _, ph := range s.Phases {
		phase := types.SchedulePhase{
			StartDate:         unixTime(ph.StartDate),
			EndDate:           unixTime(ph.EndDate),
			ProrationBehavior: ph.ProrationBehavior,
		}
		if len(ph.Items) > 0 {
			phase.PriceID = ph.Items[0].Price.ID
		}
		out.Phases = append(out.Phases, phase)
	}
	return out
}

type stripeCheckoutSession struct {
	ID                string                         `json:"id"`
	URL               string                         `json:"url"`
	Mode              string                         `json:"mode"`
	Status            string                         `json:"status"`
	PaymentStatus     string                         `json:"payment_status"`
	Customer          expandable[stripeCustomer]     `json:"customer"`
	ClientReferenceID string                         `json:"client_reference_id"`
	Metadata          map[string]string              `json:"metadata"`
	Subscription      expandable[stripeSubscription] `json:"subscription"`
}

func (cs *stripeCheckoutSession) toDomain() *types.CheckoutSession {
	out := &types.CheckoutSession{
		ID:                cs.ID,
		URL:               cs.URL,
		Mode:              types.CheckoutMode(cs.Mode),
		Status:            cs.Status,
		PaymentStatus:     cs.PaymentStatus,
		CustomerID:        cs.Customer.ID,
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
	}
	switch {
	case cs.Subscription.Obj != nil:
		out.Subscription = types.RefObject(cs.Subscription.ID, cs.Subscription.Obj.toDomain())
	case cs.Subscription.ID != "":
		out.Subscription = types.RefID[types.ProcessorSubscription](cs.Subscription.ID)
	}
	return out
}

type stripeProrationFlag struct {
	Proration bool `json:"proration"`
}

type stripeInvoiceLine struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	// Proration is the pre-2025 top-level flag; newer versions nest it under parent.
	Proration bool `json:"proration"`
	Parent    *struct {
		SubscriptionItemDetails *stripeProrationFlag `json:"subscription_item_details"`
		InvoiceItemDetails      *stripeProrationFlag `json:"invoice_item_details"`
	} `json:"parent"`
	Pricing *struct {
		PriceDetails *struct {
			Price string `json:"price"`
		} `json:"price_details"`
	} `json:"pricing"`
}

func (l *stripeInvoiceLine) isProration() bool {
	if l.Proration {
		return true
	}
	if l.Parent == nil {
		return false
	}
	return (l.Parent.SubscriptionItemDetails != nil && l.Parent.SubscriptionItemDetails.Proration) ||
		(l.Parent.InvoiceItemDetails != nil && l.Parent.InvoiceItemDetails.Proration)
}

type stripeInvoice struct {
	Currency  string `json:"currency"`
	AmountDue int64  `json:"amount_due"`
	Total     int64  `json:"total"`
	PeriodEnd int64  `json:"period_end"`
	Lines     struct {
		Data []stripeInvoiceLine `json:"data"`
	} `json:"lines"`
}

func (inv *stripeInvoice) toDomain() *types.InvoicePreview {
	out := &types.InvoicePreview{
		Currency:  inv.Currency,
		AmountDue: inv.AmountDue,
		Total:     inv.Total,
		PeriodEnd: unixTime(inv.PeriodEnd),
	}
	for i := range inv.Lines.Data {
		l := &inv.Lines.Data[i]
		line := types.InvoiceLine{Amount: l.Amount, Proration: l.isProration(), Description: l.Description}
		if l.Pricing != nil && l.Pricing.PriceDetails != nil {
			line.PriceID = l.Pricing.PriceDetails.Price
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

// ---------------------------------------------------------------------------
// Mapping Functions
// ---------------------------------------------------------------------------

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func checkoutMode(mode types.CheckoutMode) string {
	if mode == types.CheckoutModePayment {
		return string(stripe.CheckoutSessionModePayment)
	}
	return string(stripe.CheckoutSessionModeSubscription)
}

// mapSubscriptionStatus folds Stripe's lifecycle onto the local vocabulary.
func mapSubscriptionStatus(status string) types.SubscriptionStatus {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive:
		return types.SubStatusActive
	case stripe.SubscriptionStatusTrialing:
		return types.SubStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusPaused:
		return types.SubStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return types.SubStatusCancelled
	case stripe.SubscriptionStatusIncompleteExpired:
		return types.SubStatusExpired
	default:
		return types.SubscriptionStatus(status)
	}
}

func mapScheduleStatus(status string) types.ScheduleStatus {
	switch stripe.SubscriptionScheduleStatus(status) {
	case stripe.SubscriptionScheduleStatusActive:
		return types.ScheduleStatusActive
	case stripe.SubscriptionScheduleStatusNotStarted:
		return types.ScheduleStatusNotStarted
	case stripe.SubscriptionScheduleStatusCompleted:
		return types.ScheduleStatusCompleted
	case stripe.SubscriptionScheduleStatusReleased:
		return types.ScheduleStatusReleased
	case stripe.SubscriptionScheduleStatusCanceled:
		return types.ScheduleStatusCanceled
	default:
		return types.ScheduleStatus(status)
	}
}
