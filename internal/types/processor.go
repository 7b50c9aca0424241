package types

import "time"

// Expandable is a reference to a processor object that may come back either
// as a bare identifier or as the fully expanded object, depending on which
// expansions the request asked for. Callers pattern-match with Object and
// fall back to fetching by ID when it reports false.
type Expandable[T any] struct {
	id  string
	obj *T
}

// RefID builds an id-only reference.
func RefID[T any](id string) Expandable[T] {
	return Expandable[T]{id: id}
}

// RefObject builds an expanded reference.
func RefObject[T any](id string, obj *T) Expandable[T] {
	return Expandable[T]{id: id, obj: obj}
}

// ID returns the referenced object's identifier in both forms.
func (e Expandable[T]) ID() string {
	return e.id
}

// Object returns the expanded object, if present.
func (e Expandable[T]) Object() (*T, bool) {
	return e.obj, e.obj != nil
}

// IsZero reports whether the reference is absent entirely (null on the wire).
func (e Expandable[T]) IsZero() bool {
	return e.id == "" && e.obj == nil
}

// CheckoutMode selects the kind of checkout session.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// ScheduleStatus is the processor lifecycle of a subscription schedule.
type ScheduleStatus string

const (
	ScheduleStatusNotStarted ScheduleStatus = "not_started"
	ScheduleStatusActive     ScheduleStatus = "active"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusReleased   ScheduleStatus = "released"
	ScheduleStatusCanceled   ScheduleStatus = "canceled"
)

// Governs reports whether the schedule still controls its subscription.
func (s ScheduleStatus) Governs() bool {
	return s == ScheduleStatusActive || s == ScheduleStatusNotStarted
}

// Proration behaviours accepted on price changes and schedule phases.
const (
	ProrationCreate = "create_prorations"
	ProrationNone   = "none"
)

// MetadataUserID is the metadata key that ties processor objects back to the
// local user who created them.
const MetadataUserID = "userId"

// ScheduleEndRelease dissolves a schedule into a plain subscription once its
// last phase begins.
const ScheduleEndRelease = "release"

// ProcessorCustomer is the external customer object.
type ProcessorCustomer struct {
	ID      string
	Email   string
	Name    string
	Deleted bool
}

// ProcessorPrice is a recurring or one-time price.
type ProcessorPrice struct {
	ID         string
	Currency   string
	UnitAmount int64
	Recurring  bool
	Interval   BillingInterval
}

// SubscriptionItem is one price line on a subscription.
type SubscriptionItem struct {
	ID      string
	PriceID string
}

// ProcessorSubscription is the external subscription object. Status is already
// mapped onto the local lifecycle vocabulary.
type ProcessorSubscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Items              []SubscriptionItem
	Schedule           Expandable[SubscriptionSchedule]
	Metadata           map[string]string
}

// PrimaryItem returns the first price line. Every subscription this service
// creates carries exactly one.
func (s *ProcessorSubscription) PrimaryItem() (SubscriptionItem, bool) {
	if len(s.Items) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items[0], true
}

// SchedulePhase is one price segment of a subscription schedule.
type SchedulePhase struct {
	PriceID           string
	StartDate         time.Time
	EndDate           time.Time
	Iterations        int
	ProrationBehavior string
}

// SubscriptionSchedule defers price changes to future phase boundaries.
type SubscriptionSchedule struct {
	ID             string
	Status         ScheduleStatus
	SubscriptionID string
	EndBehavior    string
	Phases         []SchedulePhase
}

// CheckoutSession is a hosted checkout page.
type CheckoutSession struct {
	ID                string
	URL               string
	Mode              CheckoutMode
	Status            string
	PaymentStatus     string
	CustomerID        string
	ClientReferenceID string
	Metadata          map[string]string
	Subscription      Expandable[ProcessorSubscription]
}

// InvoiceLine is one line of a previewed invoice.
type InvoiceLine struct {
	Amount      int64
	Proration   bool
	PriceID     string
	Description string
}

// InvoicePreview is a simulated upcoming invoice.
type InvoicePreview struct {
	Currency  string
	AmountDue int64
	Total     int64
	PeriodEnd time.Time
	Lines     []InvoiceLine
}

// ProrationTotal sums every proration line. Zero lines yields zero.
func (p *InvoicePreview) ProrationTotal() int64 {
	var total int64
	for _, line := range p.Lines {
		if line.Proration {
			total += line.Amount
		}
	}
	return total
}

// --- Request parameters ---

// CreateCustomerParams carries the data for a new external customer.
type CreateCustomerParams struct {
	UserID         string
	Email          string
	Name           string
	IdempotencyKey string
}

// CheckoutSessionParams carries the data for a new checkout session.
// TrialPeriodDays of zero means no trial.
type CheckoutSessionParams struct {
	Mode            CheckoutMode
	CustomerID      string
	PriceID         string
	UserID          string
	SuccessURL      string
	CancelURL       string
	TrialPeriodDays int
	IdempotencyKey  string
}

// SubscriptionUpdateParams describes a subscription mutation. Zero-valued
// fields are left untouched on the processor side.
type SubscriptionUpdateParams struct {
	ItemID            string
	PriceID           string
	ProrationBehavior string
	CancelAtPeriodEnd *bool
}

// InvoicePreviewParams describes a hypothetical price change to preview.
type InvoicePreviewParams struct {
	CustomerID     string
	SubscriptionID string
	ItemID         string
	PriceID        string
	ProrationDate  time.Time
}

// ScheduleUpdateParams replaces the phases of a schedule.
type ScheduleUpdateParams struct {
	EndBehavior string
	Phases      []SchedulePhase
}
