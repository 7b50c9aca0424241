package billing

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"clientdesk/internal/types"
)

// Metrics records billing health signals. Implementations must not block the
// request on delivery failures.
type Metrics interface {
	// RecordBillingWarning counts a degraded-but-handled condition, such as an
	// unknown price falling back to the default entitlement.
	RecordBillingWarning(ctx context.Context, reason string)
	RecordProcessorFailure(ctx context.Context, operation string)
	// RecordOptimisticWriteFailure counts local writes lost after a successful
	// processor mutation. Each one is a record waiting on webhook reconciliation.
	RecordOptimisticWriteFailure(ctx context.Context, operation string)
	RecordCheckoutCreated(ctx context.Context, mode types.CheckoutMode)
	RecordSubscriptionMutated(ctx context.Context, operation string)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics emits billing counters to CloudWatch.
//
// Metrics emitted:
//   - BillingWarning: Dims {Reason}
//   - ExternalAPIFailure: Dims {Provider, Operation}
//   - OptimisticWriteFailure: Dims {Operation}
//   - CheckoutCreated: Dims {Operation} (checkout mode)
//   - SubscriptionMutated: Dims {Operation}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace,
// or to types.MetricNamespace when namespace is empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordBillingWarning(ctx context.Context, reason string) {
	m.count(ctx, types.MetricBillingWarning, dim(types.DimReason, reason))
}

func (m *CloudWatchMetrics) RecordProcessorFailure(ctx context.Context, operation string) {
	m.count(ctx, types.MetricExternalAPIFailure,
		dim(types.DimProvider, "stripe"),
		dim(types.DimOperation, operation),
	)
}

func (m *CloudWatchMetrics) RecordOptimisticWriteFailure(ctx context.Context, operation string) {
	m.count(ctx, types.MetricOptimisticWriteFailure, dim(types.DimOperation, operation))
}

func (m *CloudWatchMetrics) RecordCheckoutCreated(ctx context.Context, mode types.CheckoutMode) {
	m.count(ctx, types.MetricCheckoutCreated, dim(types.DimOperation, string(mode)))
}

func (m *CloudWatchMetrics) RecordSubscriptionMutated(ctx context.Context, operation string) {
	m.count(ctx, types.MetricSubscriptionMutated, dim(types.DimOperation, operation))
}

func (m *CloudWatchMetrics) count(ctx context.Context, name string, dims ...cwtypes.Dimension) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record billing metric",
			"error", err.Error(),
			"metric", name,
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// NoopMetrics discards every signal. Used when metrics are disabled.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordBillingWarning(context.Context, string) {}
func (NoopMetrics) RecordProcessorFailure(context.Context, string) {}
func (NoopMetrics) RecordOptimisticWriteFailure(context.Context, string) {}
func (NoopMetrics) RecordCheckoutCreated(context.Context, types.CheckoutMode) {}
func (NoopMetrics) RecordSubscriptionMutated(context.Context, string) {}
