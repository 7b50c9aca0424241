package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricBillingWarning         = "BillingWarning"
	MetricExternalAPIFailure     = "ExternalAPIFailure"
	MetricOptimisticWriteFailure = "OptimisticWriteFailure"
	MetricCheckoutCreated        = "CheckoutCreated"
	MetricSubscriptionMutated    = "SubscriptionMutated"

	// Dimension Keys
	DimOperation = "Operation"
	DimProvider  = "Provider"
	DimReason    = "Reason"

	// Metric Namespace
	MetricNamespace = "ClientDesk"
)

// Warning reasons attached to MetricBillingWarning.
const (
	ReasonUnknownPrice = "unknown_price"
)

// Reasons attached to reconcile requests.
const (
	ReconcileLostWrite = "optimistic_write_failed"
)
