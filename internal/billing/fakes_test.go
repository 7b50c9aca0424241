package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"clientdesk/internal/types"
)

// =============================================================================
// Fake processor
// =============================================================================

// fakeProcessor is an in-memory Processor that records every call. Errors can
// be injected per method name through failOn.
type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	seq   int

	customers     map[string]*types.ProcessorCustomer
	sessions      map[string]*types.CheckoutSession
	subscriptions map[string]*types.ProcessorSubscription
	schedules     map[string]*types.SubscriptionSchedule
	prices        map[string]*types.ProcessorPrice
	replays       map[string]*types.CheckoutSession
	preview       *types.InvoicePreview

	createdCustomers []types.CreateCustomerParams
	createdSessions  []types.CheckoutSessionParams
	subUpdates       []types.SubscriptionUpdateParams
	scheduleUpdates  []types.ScheduleUpdateParams
	previewParams    []types.InvoicePreviewParams
	released         []string

	failOn map[string]error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		customers:     make(map[string]*types.ProcessorCustomer),
		sessions:      make(map[string]*types.CheckoutSession),
		subscriptions: make(map[string]*types.ProcessorSubscription),
		schedules:     make(map[string]*types.SubscriptionSchedule),
		prices: map[string]*types.ProcessorPrice{
			"price_pro_m":  {ID: "price_pro_m", Currency: "usd", UnitAmount: 2900, Recurring: true, Interval: types.IntervalMonthly},
			"price_pro_y":  {ID: "price_pro_y", Currency: "usd", UnitAmount: 29000, Recurring: true, Interval: types.IntervalAnnual},
			"price_prem_m": {ID: "price_prem_m", Currency: "usd", UnitAmount: 4900, Recurring: true, Interval: types.IntervalMonthly},
			"price_prem_y": {ID: "price_prem_y", Currency: "usd", UnitAmount: 49000, Recurring: true, Interval: types.IntervalAnnual},
		},
		replays: make(map[string]*types.CheckoutSession),
		failOn:  make(map[string]error),
	}
}

func (f *fakeProcessor) record(method string) error {
	f.calls = append(f.calls, method)
	return f.failOn[method]
}

func (f *fakeProcessor) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

// callCount returns how many times method was called, or all calls when
// method is empty.
func (f *fakeProcessor) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if method == "" {
		return len(f.calls)
	}
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeProcessor) addSubscription(sub *types.ProcessorSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[sub.ID] = sub
}

func (f *fakeProcessor) addSchedule(sched *types.SubscriptionSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[sched.ID] = sched
	if sub, ok := f.subscriptions[sched.SubscriptionID]; ok {
		sub.Schedule = types.RefID[types.SubscriptionSchedule](sched.ID)
	}
}

func (f *fakeProcessor) GetCustomer(_ context.Context, customerID string) (*types.ProcessorCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetCustomer"); err != nil {
		return nil, err
	}
	c, ok := f.customers[customerID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such customer", nil)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeProcessor) CreateCustomer(_ context.Context, p types.CreateCustomerParams) (*types.ProcessorCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCustomer"); err != nil {
		return nil, err
	}
	f.createdCustomers = append(f.createdCustomers, p)
	c := &types.ProcessorCustomer{ID: f.nextID("cus"), Email: p.Email, Name: p.Name}
	f.customers[c.ID] = c
	cp := *c
	return &cp, nil
}

// CreateCheckoutSession replays the original session for a repeated
// idempotency key, as the processor does.
func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, p types.CheckoutSessionParams) (*types.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	f.createdSessions = append(f.createdSessions, p)
	if cs, ok := f.replays[p.IdempotencyKey]; ok {
		cp := *cs
		return &cp, nil
	}
	cs := &types.CheckoutSession{
		ID:         f.nextID("cs"),
		URL:        "https://checkout.test/" + p.PriceID,
		Mode:       p.Mode,
		CustomerID: p.CustomerID,
		Metadata:   map[string]string{types.MetadataUserID: p.UserID},
	}
	f.sessions[cs.ID] = cs
	f.replays[p.IdempotencyKey] = cs
	cp := *cs
	return &cp, nil
}

func (f *fakeProcessor) GetCheckoutSession(_ context.Context, sessionID string) (*types.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetCheckoutSession"); err != nil {
		return nil, err
	}
	cs, ok := f.sessions[sessionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such session", nil)
	}
	cp := *cs
	return &cp, nil
}

func (f *fakeProcessor) GetSubscription(_ context.Context, subscriptionID string) (*types.ProcessorSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such subscription", nil)
	}
	cp := *sub
	cp.Items = append([]types.SubscriptionItem(nil), sub.Items...)
	return &cp, nil
}

func (f *fakeProcessor) UpdateSubscription(_ context.Context, subscriptionID string, p types.SubscriptionUpdateParams) (*types.ProcessorSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateSubscription"); err != nil {
		return nil, err
	}
	f.subUpdates = append(f.subUpdates, p)
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such subscription", nil)
	}
	if p.PriceID != "" {
		for i := range sub.Items {
			if sub.Items[i].ID == p.ItemID {
				sub.Items[i].PriceID = p.PriceID
			}
		}
	}
	if p.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
	}
	cp := *sub
	cp.Items = append([]types.SubscriptionItem(nil), sub.Items...)
	return &cp, nil
}

func (f *fakeProcessor) GetPrice(_ context.Context, priceID string) (*types.ProcessorPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPrice"); err != nil {
		return nil, err
	}
	p, ok := f.prices[priceID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such price", nil)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProcessor) PreviewInvoice(_ context.Context, p types.InvoicePreviewParams) (*types.InvoicePreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PreviewInvoice"); err != nil {
		return nil, err
	}
	f.previewParams = append(f.previewParams, p)
	if f.preview == nil {
		return &types.InvoicePreview{Currency: "usd"}, nil
	}
	cp := *f.preview
	return &cp, nil
}

func (f *fakeProcessor) CreateScheduleFromSubscription(_ context.Context, subscriptionID string) (*types.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateScheduleFromSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such subscription", nil)
	}
	sched := &types.SubscriptionSchedule{
		ID:             f.nextID("sub_sched"),
		Status:         types.ScheduleStatusActive,
		SubscriptionID: sub.ID,
		Phases: []types.SchedulePhase{{
			PriceID:   sub.Items[0].PriceID,
			StartDate: sub.CurrentPeriodStart,
			EndDate:   sub.CurrentPeriodEnd,
		}},
	}
	f.schedules[sched.ID] = sched
	sub.Schedule = types.RefID[types.SubscriptionSchedule](sched.ID)
	cp := *sched
	return &cp, nil
}

func (f *fakeProcessor) GetSchedule(_ context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetSchedule"); err != nil {
		return nil, err
	}
	sched, ok := f.schedules[scheduleID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such schedule", nil)
	}
	cp := *sched
	return &cp, nil
}

func (f *fakeProcessor) UpdateSchedule(_ context.Context, scheduleID string, p types.ScheduleUpdateParams) (*types.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateSchedule"); err != nil {
		return nil, err
	}
	f.scheduleUpdates = append(f.scheduleUpdates, p)
	sched, ok := f.schedules[scheduleID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such schedule", nil)
	}
	sched.EndBehavior = p.EndBehavior
	sched.Phases = append([]types.SchedulePhase(nil), p.Phases...)
	cp := *sched
	return &cp, nil
}

func (f *fakeProcessor) ReleaseSchedule(_ context.Context, scheduleID string) (*types.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ReleaseSchedule"); err != nil {
		return nil, err
	}
	f.released = append(f.released, scheduleID)
	sched, ok := f.schedules[scheduleID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundProcessorResource, "no such schedule", nil)
	}
	sched.Status = types.ScheduleStatusReleased
	if sub, ok := f.subscriptions[sched.SubscriptionID]; ok {
		sub.Schedule = types.Expandable[types.SubscriptionSchedule]{}
	}
	cp := *sched
	return &cp, nil
}

// =============================================================================
// Fake store and user directory
// =============================================================================

// fakeStore mirrors the semantics of db.SubscriptionRepo in memory. When
// failWrites is set every write returns it and leaves the record unchanged.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]*types.SubscriptionRecord
	writes     []string
	failWrites error
	getErr     error
}

func newFakeStore(records ...*types.SubscriptionRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*types.SubscriptionRecord)}
	for _, r := range records {
		s.records[r.UserID] = r
	}
	return s
}

func (s *fakeStore) get(userID string) *types.SubscriptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.records[userID]
	return &cp
}

func (s *fakeStore) write(name, userID string, apply func(r *types.SubscriptionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, name)
	if s.failWrites != nil {
		return s.failWrites
	}
	r, ok := s.records[userID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundSubscriptionRecord, "no record", nil)
	}
	apply(r)
	return nil
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *fakeStore) GetByUserID(_ context.Context, userID string) (*types.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.records[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscriptionRecord, "no record", nil)
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) CreateDefault(_ context.Context, userID string, freeLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, "CreateDefault")
	if s.failWrites != nil {
		return s.failWrites
	}
	if _, ok := s.records[userID]; !ok {
		s.records[userID] = &types.SubscriptionRecord{
			UserID:          userID,
			Tier:            types.TierFree,
			Status:          types.SubStatusActive,
			MonthlyLimit:    freeLimit,
			BillingInterval: types.IntervalMonthly,
		}
	}
	return nil
}

func (s *fakeStore) UpdateCustomerID(_ context.Context, userID, customerID string) error {
	return s.write("UpdateCustomerID", userID, func(r *types.SubscriptionRecord) {
		r.ExternalCustomerID = customerID
	})
}

func (s *fakeStore) ApplyPlanChange(_ context.Context, userID string, c types.PlanChange) error {
	return s.write("ApplyPlanChange", userID, func(r *types.SubscriptionRecord) {
		r.Tier = c.Tier
		r.MonthlyLimit = c.MonthlyLimit
		r.BillingInterval = c.Interval
		r.Status = c.Status
		reset := c.UsageResetDate
		r.UsageResetDate = &reset
		r.CancelAtPeriodEnd = false
		if c.ClearScheduled {
			r.ScheduledTier = nil
			r.ScheduledTierChangeDate = nil
		}
	})
}

func (s *fakeStore) SetCancelAtPeriodEnd(_ context.Context, userID string, cancel bool) error {
	return s.write("SetCancelAtPeriodEnd", userID, func(r *types.SubscriptionRecord) {
		r.CancelAtPeriodEnd = cancel
	})
}

func (s *fakeStore) SetScheduledTier(_ context.Context, userID string, tier types.Tier, effective time.Time) error {
	return s.write("SetScheduledTier", userID, func(r *types.SubscriptionRecord) {
		r.ScheduledTier = &tier
		r.ScheduledTierChangeDate = &effective
	})
}

func (s *fakeStore) ClearScheduledChange(_ context.Context, userID string) error {
	return s.write("ClearScheduledChange", userID, func(r *types.SubscriptionRecord) {
		r.CancelAtPeriodEnd = false
		r.ScheduledTier = nil
		r.ScheduledTierChangeDate = nil
	})
}

func (s *fakeStore) ActivateFromCheckout(_ context.Context, userID string, a types.CheckoutActivation) error {
	return s.write("ActivateFromCheckout", userID, func(r *types.SubscriptionRecord) {
		r.ExternalCustomerID = a.CustomerID
		r.ExternalSubscriptionID = a.SubscriptionID
		r.Tier = a.Tier
		r.MonthlyLimit = a.MonthlyLimit
		r.BillingInterval = a.Interval
		r.Status = a.Status
		reset := a.UsageResetDate
		r.UsageResetDate = &reset
		r.HasUsedTrial = true
	})
}

type fakeUsers struct {
	users map[string]*types.User
}

func (u *fakeUsers) GetByID(_ context.Context, userID string) (*types.User, error) {
	usr, ok := u.users[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user", nil)
	}
	return usr, nil
}

// =============================================================================
// Recording metrics
// =============================================================================

type recordingMetrics struct {
	mu       sync.Mutex
	warnings []string
	failures []string
	lost     []string
	checkout []types.CheckoutMode
	mutated  []string
}

func (m *recordingMetrics) RecordBillingWarning(_ context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, reason)
}

func (m *recordingMetrics) RecordProcessorFailure(_ context.Context, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, operation)
}

func (m *recordingMetrics) RecordOptimisticWriteFailure(_ context.Context, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost = append(m.lost, operation)
}

func (m *recordingMetrics) RecordCheckoutCreated(_ context.Context, mode types.CheckoutMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkout = append(m.checkout, mode)
}

func (m *recordingMetrics) RecordSubscriptionMutated(_ context.Context, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutated = append(m.mutated, operation)
}

// =============================================================================
// Fixtures
// =============================================================================

var (
	testNow         = time.Date(2026, 3, 15, 9, 30, 12, 0, time.UTC)
	periodStart     = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monthlyEnd      = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	annualEnd       = time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	testUserID      = "user-1"
	testSubID       = "sub_1"
	testCustomerID  = "cus_1"
	testSubItemID   = "si_1"
	otherUsersSubID = "sub_other"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	svc     *Service
	proc    *fakeProcessor
	store   *fakeStore
	users   *fakeUsers
	metrics *recordingMetrics
	clock   *time.Time
}

func newTestEnv(t *testing.T, records ...*types.SubscriptionRecord) *testEnv {
	t.Helper()
	now := testNow
	env := &testEnv{
		proc:    newFakeProcessor(),
		store:   newFakeStore(records...),
		users:   &fakeUsers{users: map[string]*types.User{testUserID: {ID: testUserID, Email: "ada@example.com", Name: "Ada"}}},
		metrics: &recordingMetrics{},
		clock:   &now,
	}
	env.svc = NewService(ServiceConfig{
		Processor:         env.proc,
		Store:             env.store,
		Users:             env.users,
		Catalog:           NewPriceCatalog(testBillingConfig()),
		IdempotencyWindow: time.Minute,
		DefaultCurrency:   "usd",
		Metrics:           env.metrics,
		Logger:            discardLogger(),
		Clock:             func() time.Time { return *env.clock },
	})
	return env
}

func freeRecord() *types.SubscriptionRecord {
	return &types.SubscriptionRecord{
		UserID:          testUserID,
		Tier:            types.TierFree,
		Status:          types.SubStatusActive,
		MonthlyLimit:    types.DefaultFreeMonthlyLimit,
		BillingInterval: types.IntervalMonthly,
	}
}

func boundRecord(tier types.Tier, interval types.BillingInterval) *types.SubscriptionRecord {
	rec := freeRecord()
	rec.Tier = tier
	rec.BillingInterval = interval
	rec.ExternalCustomerID = testCustomerID
	rec.ExternalSubscriptionID = testSubID
	rec.HasUsedTrial = true
	return rec
}

// withSubscription registers the bound test subscription on priceID.
func (e *testEnv) withSubscription(priceID string) *types.ProcessorSubscription {
	end := monthlyEnd
	if p, ok := e.proc.prices[priceID]; ok && p.Interval == types.IntervalAnnual {
		end = annualEnd
	}
	sub := &types.ProcessorSubscription{
		ID:                 testSubID,
		CustomerID:         testCustomerID,
		Status:             types.SubStatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   end,
		Items:              []types.SubscriptionItem{{ID: testSubItemID, PriceID: priceID}},
	}
	e.proc.addSubscription(sub)
	return sub
}
