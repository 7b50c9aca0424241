package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clientdesk/internal/types"

	"github.com/google/uuid"
)

// StubProcessor implements PaymentProcessor in memory so the API can boot and
// walk every billing flow locally without Stripe credentials. Checkout
// sessions complete immediately: the session is paid and its subscription
// exists as soon as it is created.
type StubProcessor struct {
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	customers     map[string]*types.ProcessorCustomer
	sessions      map[string]*types.CheckoutSession
	subscriptions map[string]*types.ProcessorSubscription
	schedules     map[string]*types.SubscriptionSchedule
	prices        map[string]*types.ProcessorPrice

	// replays maps an idempotency key to the object it created.
	replays map[string]string
}

// NewStubProcessor creates a StubProcessor. Prices unknown to the stub are
// synthesized as 10.00 USD monthly.
func NewStubProcessor(logger *slog.Logger, prices ...types.ProcessorPrice) *StubProcessor {
	s := &StubProcessor{
		logger:        logger,
		now:           time.Now,
		customers:     make(map[string]*types.ProcessorCustomer),
		sessions:      make(map[string]*types.CheckoutSession),
		subscriptions: make(map[string]*types.ProcessorSubscription),
		schedules:     make(map[string]*types.SubscriptionSchedule),
		prices:        make(map[string]*types.ProcessorPrice),
		replays:       make(map[string]string),
	}
	for i := range prices {
		p := prices[i]
		s.prices[p.ID] = &p
	}
	return s
}

func stubID(prefix string) string {
	return prefix + "_stub_" + uuid.NewString()[:8]
}

func stubNotFound(kind, id string) error {
	return types.NewAppError(types.ErrCodeNotFoundProcessorResource, fmt.Sprintf("stub: %s %s not found", kind, id), nil)
}

func (s *StubProcessor) GetCustomer(ctx context.Context, customerID string) (*types.ProcessorCustomer, error) {
	s.logger.InfoContext(ctx, "stub: GetCustomer called", "customer_id", customerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, stubNotFound("customer", customerID)
	}
	cp := *c
	return &cp, nil
}

func (s *StubProcessor) CreateCustomer(ctx context.Context, p types.CreateCustomerParams) (*types.ProcessorCustomer, error) {
	s.logger.InfoContext(ctx, "stub: CreateCustomer called", "user_id", p.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.replays[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		cp := *s.customers[id]
		return &cp, nil
	}

	c := &types.ProcessorCustomer{ID: stubID("cus"), Email: p.Email, Name: p.Name}
	s.customers[c.ID] = c
	s.remember(p.IdempotencyKey, c.ID)
	cp := *c
	return &cp, nil
}

func (s *StubProcessor) CreateCheckoutSession(ctx context.Context, p types.CheckoutSessionParams) (*types.CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called",
		"user_id", p.UserID,
		"price_id", p.PriceID,
		"mode", p.Mode,
		"trial_days", p.TrialPeriodDays,
	)
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.replays[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		cp := *s.sessions[id]
		return &cp, nil
	}

	cs := &types.CheckoutSession{
		ID:                stubID("cs"),
		URL:               "https://checkout.stub.local/session",
		Mode:              p.Mode,
		Status:            "complete",
		PaymentStatus:     "paid",
		CustomerID:        p.CustomerID,
		ClientReferenceID: p.UserID,
		Metadata:          map[string]string{types.MetadataUserID: p.UserID},
	}

	if p.Mode == types.CheckoutModeSubscription {
		start := s.now().UTC().Truncate(time.Second)
		price := s.priceLocked(p.PriceID)
		status := types.SubStatusActive
		if p.TrialPeriodDays > 0 {
			status = types.SubStatusTrialing
			cs.PaymentStatus = "no_payment_required"
		}
		sub := &types.ProcessorSubscription{
			ID:                 stubID("sub"),
			CustomerID:         p.CustomerID,
			Status:             status,
			CurrentPeriodStart: start,
			CurrentPeriodEnd:   periodEnd(start, price.Interval),
			Items:              []types.SubscriptionItem{{ID: stubID("si"), PriceID: p.PriceID}},
			Metadata:           map[string]string{types.MetadataUserID: p.UserID},
		}
		s.subscriptions[sub.ID] = sub
		cs.Subscription = types.RefID[types.ProcessorSubscription](sub.ID)
	}

	s.sessions[cs.ID] = cs
	s.remember(p.IdempotencyKey, cs.ID)
	cp := *cs
	return &cp, nil
}

func (s *StubProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: GetCheckoutSession called", "session_id", sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sessions[sessionID]
	if !ok {
		return nil, stubNotFound("checkout session", sessionID)
	}
	cp := *cs
	if sub, ok := s.subscriptions[cs.Subscription.ID()]; ok {
		subCopy := *sub
		cp.Subscription = types.RefObject(sub.ID, &subCopy)
	}
	return &cp, nil
}

func (s *StubProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*types.ProcessorSubscription, error) {
	s.logger.InfoContext(ctx, "stub: GetSubscription called", "subscription_id", subscriptionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, stubNotFound("subscription", subscriptionID)
	}
	return s.subscriptionCopyLocked(sub), nil
}

func (s *StubProcessor) UpdateSubscription(ctx context.Context, subscriptionID string, p types.SubscriptionUpdateParams) (*types.ProcessorSubscription, error) {
	s.logger.InfoContext(ctx, "stub: UpdateSubscription called",
		"subscription_id", subscriptionID,
		"price_id", p.PriceID,
	)
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, stubNotFound("subscription", subscriptionID)
	}
	if p.ItemID != "" && p.PriceID != "" {
		for i := range sub.Items {
			if sub.Items[i].ID == p.ItemID {
				sub.Items[i].PriceID = p.PriceID
			}
		}
		price := s.priceLocked(p.PriceID)
		sub.CurrentPeriodEnd = periodEnd(sub.CurrentPeriodStart, price.Interval)
	}
	if p.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
	}
	return s.subscriptionCopyLocked(sub), nil
}

func (s *StubProcessor) GetPrice(ctx context.Context, priceID string) (*types.ProcessorPrice, error) {
	s.logger.InfoContext(ctx, "stub: GetPrice called", "price_id", priceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *s.priceLocked(priceID)
	return &p, nil
}

// PreviewInvoice approximates proration as half of the price difference.
func (s *StubProcessor) PreviewInvoice(ctx context.Context, p types.InvoicePreviewParams) (*types.InvoicePreview, error) {
	s.logger.InfoContext(ctx, "stub: PreviewInvoice called",
		"subscription_id", p.SubscriptionID,
		"price_id", p.PriceID,
	)
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[p.SubscriptionID]
	if !ok {
		return nil, stubNotFound("subscription", p.SubscriptionID)
	}
	current := s.priceLocked(sub.Items[0].PriceID)
	next := s.priceLocked(p.PriceID)

	remaining := (next.UnitAmount - current.UnitAmount) / 2
	return &types.InvoicePreview{
		Currency:  next.Currency,
		AmountDue: max(next.UnitAmount+remaining, 0),
		Total:     next.UnitAmount + remaining,
		PeriodEnd: sub.CurrentPeriodEnd,
		Lines: []types.InvoiceLine{
			{Amount: -current.UnitAmount / 2, Proration: true, PriceID: current.ID, Description: "Unused time"},
			{Amount: next.UnitAmount / 2, Proration: true, PriceID: next.ID, Description: "Remaining time"},
			{Amount: next.UnitAmount, PriceID: next.ID, Description: "Next period"},
		},
	}, nil
}

func (s *StubProcessor) CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*types.SubscriptionSchedule, error) {
	s.logger.InfoContext(ctx, "stub: CreateScheduleFromSubscription called", "subscription_id", subscriptionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, stubNotFound("subscription", subscriptionID)
	}
	sched := &types.SubscriptionSchedule{
		ID:             stubID("sub_sched"),
		Status:         types.ScheduleStatusActive,
		SubscriptionID: sub.ID,
		Phases: []types.SchedulePhase{{
			PriceID:   sub.Items[0].PriceID,
			StartDate: sub.CurrentPeriodStart,
			EndDate:   sub.CurrentPeriodEnd,
		}},
	}
	s.schedules[sched.ID] = sched
	sub.Schedule = types.RefID[types.SubscriptionSchedule](sched.ID)
	cp := *sched
	return &cp, nil
}

func (s *StubProcessor) GetSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	s.logger.InfoContext(ctx, "stub: GetSchedule called", "schedule_id", scheduleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[scheduleID]
	if !ok {
		return nil, stubNotFound("subscription schedule", scheduleID)
	}
	cp := *sched
	return &cp, nil
}

func (s *StubProcessor) UpdateSchedule(ctx context.Context, scheduleID string, p types.ScheduleUpdateParams) (*types.SubscriptionSchedule, error) {
	s.logger.InfoContext(ctx, "stub: UpdateSchedule called", "schedule_id", scheduleID, "phases", len(p.Phases))
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[scheduleID]
	if !ok {
		return nil, stubNotFound("subscription schedule", scheduleID)
	}
	sched.EndBehavior = p.EndBehavior
	sched.Phases = append([]types.SchedulePhase(nil), p.Phases...)
	cp := *sched
	return &cp, nil
}

func (s *StubProcessor) ReleaseSchedule(ctx context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	s.logger.InfoContext(ctx, "stub: ReleaseSchedule called", "schedule_id", scheduleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[scheduleID]
	if !ok {
		return nil, stubNotFound("subscription schedule", scheduleID)
	}
	sched.Status = types.ScheduleStatusReleased
	if sub, ok := s.subscriptions[sched.SubscriptionID]; ok {
		sub.Schedule = types.Expandable[types.SubscriptionSchedule]{}
	}
	cp := *sched
	return &cp, nil
}

// SubscriptionCount reports how many subscriptions checkout has created.
func (s *StubProcessor) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

func (s *StubProcessor) remember(key, id string) {
	if key != "" {
		s.replays[key] = id
	}
}

func (s *StubProcessor) priceLocked(priceID string) *types.ProcessorPrice {
	if p, ok := s.prices[priceID]; ok {
		return p
	}
	return &types.ProcessorPrice{ID: priceID, Currency: "usd", UnitAmount: 1000, Recurring: true, Interval: types.IntervalMonthly}
}

func (s *StubProcessor) subscriptionCopyLocked(sub *types.ProcessorSubscription) *types.ProcessorSubscription {
	cp := *sub
	cp.Items = append([]types.SubscriptionItem(nil), sub.Items...)
	if sched, ok := s.schedules[sub.Schedule.ID()]; ok {
		schedCopy := *sched
		cp.Schedule = types.RefObject(sched.ID, &schedCopy)
	}
	return &cp
}

func periodEnd(start time.Time, interval types.BillingInterval) time.Time {
	if interval == types.IntervalAnnual {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
