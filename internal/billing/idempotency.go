package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idempotencyNamespace scopes the v5 UUIDs used as processor idempotency keys.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://clientdesk/billing/idempotency"))

const (
	opCheckoutPayment      = "checkout_payment"
	opCheckoutSubscription = "checkout_subscription"
	opCreateCustomer       = "create_customer"
)

// IdempotencyKeys derives processor idempotency keys that are deterministic in
// (operation, user, price, time bucket). Two requests whose timestamps fall in
// the same bucket produce the same key, so a client retry replays the first
// create instead of issuing a second one.
type IdempotencyKeys struct {
	window time.Duration
}

// NewIdempotencyKeys returns a key builder with the given bucket width.
// Non-positive windows fall back to one minute.
func NewIdempotencyKeys(window time.Duration) IdempotencyKeys {
	if window <= 0 {
		window = time.Minute
	}
	return IdempotencyKeys{window: window}
}

// Key returns the idempotency key for one create-type call. extra carries
// any other parameter that changes the request body: Stripe rejects a reused
// key whose parameters differ, so such inputs must yield a distinct key.
func (k IdempotencyKeys) Key(operation, userID, priceID string, at time.Time, extra ...string) string {
	bucket := at.UTC().Truncate(k.window).Unix()
	parts := append([]string{operation, userID, priceID, strconv.FormatInt(bucket, 10)}, extra...)
	return uuid.NewSHA1(idempotencyNamespace, []byte(strings.Join(parts, ":"))).String()
}
