package billing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientdesk/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimensions(datum cwtypes.MetricDatum) map[string]string {
	out := make(map[string]string, len(datum.Dimensions))
	for _, d := range datum.Dimensions {
		out[*d.Name] = *d.Value
	}
	return out
}

func TestCloudWatchMetrics_Datums(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		record   func(m *CloudWatchMetrics)
		wantName string
		wantDims map[string]string
	}{
		{
			name:     "billing warning",
			record:   func(m *CloudWatchMetrics) { m.RecordBillingWarning(ctx, types.ReasonUnknownPrice) },
			wantName: types.MetricBillingWarning,
			wantDims: map[string]string{types.DimReason: types.ReasonUnknownPrice},
		},
		{
			name:     "processor failure",
			record:   func(m *CloudWatchMetrics) { m.RecordProcessorFailure(ctx, OpUpdateSubscription) },
			wantName: types.MetricExternalAPIFailure,
			wantDims: map[string]string{types.DimProvider: "stripe", types.DimOperation: OpUpdateSubscription},
		},
		{
			name:     "optimistic write failure",
			record:   func(m *CloudWatchMetrics) { m.RecordOptimisticWriteFailure(ctx, OpScheduleDowngrade) },
			wantName: types.MetricOptimisticWriteFailure,
			wantDims: map[string]string{types.DimOperation: OpScheduleDowngrade},
		},
		{
			name:     "checkout created",
			record:   func(m *CloudWatchMetrics) { m.RecordCheckoutCreated(ctx, types.CheckoutModeSubscription) },
			wantName: types.MetricCheckoutCreated,
			wantDims: map[string]string{types.DimOperation: string(types.CheckoutModeSubscription)},
		},
		{
			name:     "subscription mutated",
			record:   func(m *CloudWatchMetrics) { m.RecordSubscriptionMutated(ctx, OpCancelSubscription) },
			wantName: types.MetricSubscriptionMutated,
			wantDims: map[string]string{types.DimOperation: OpCancelSubscription},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw := &mockCloudWatchClient{}
			tt.record(NewCloudWatchMetrics(cw, "", discardLogger()))

			require.Len(t, cw.calls, 1)
			input := cw.calls[0]
			assert.Equal(t, types.MetricNamespace, *input.Namespace)
			require.Len(t, input.MetricData, 1)

			datum := input.MetricData[0]
			assert.Equal(t, tt.wantName, *datum.MetricName)
			assert.Equal(t, 1.0, *datum.Value)
			assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
			assert.Equal(t, tt.wantDims, dimensions(datum))
		})
	}
}

func TestCloudWatchMetrics_CustomNamespace(t *testing.T) {
	cw := &mockCloudWatchClient{}
	NewCloudWatchMetrics(cw, "ClientDesk/Staging", nil).RecordSubscriptionMutated(context.Background(), OpSwitchBillingCycle)

	require.Len(t, cw.calls, 1)
	assert.Equal(t, "ClientDesk/Staging", *cw.calls[0].Namespace)
}

func TestCloudWatchMetrics_DeliveryFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}

	assert.NotPanics(t, func() {
		NewCloudWatchMetrics(cw, "", logger).RecordProcessorFailure(context.Background(), OpPreviewProration)
	})

	assert.Contains(t, buf.String(), "failed to record billing metric")
	assert.Contains(t, buf.String(), "throttled")
	assert.Contains(t, buf.String(), types.MetricExternalAPIFailure)
}
