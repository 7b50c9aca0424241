package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"clientdesk/internal/config"
	"clientdesk/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/billing-reconcile"

func newTestQueue(mock *mockSQSSender) *ReconcileQueue {
	return NewReconcileQueue(mock, config.AWSConfig{ReconcileQueueURL: testQueueURL}, slog.Default())
}

func testRequest() types.ReconcileRequest {
	return types.ReconcileRequest{
		UserID:      "user-1",
		Operation:   "update_subscription",
		Reason:      types.ReconcileLostWrite,
		RequestedAt: time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC),
		TraceID:     "req-42",
	}
}

func TestRequestReconcile_SendsToQueue(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestQueue(mock)

	if err := q.RequestReconcile(context.Background(), testRequest()); err != nil {
		t.Fatalf("RequestReconcile returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	if *mock.calls[0].QueueUrl != testQueueURL {
		t.Errorf("expected queue URL %q, got %q", testQueueURL, *mock.calls[0].QueueUrl)
	}

	var got types.ReconcileRequest
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &got); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	want := testRequest()
	if got.UserID != want.UserID || got.Operation != want.Operation || got.Reason != want.Reason || got.TraceID != want.TraceID {
		t.Errorf("message body mismatch: got %+v", got)
	}
	if !got.RequestedAt.Equal(want.RequestedAt) {
		t.Errorf("expected RequestedAt %v, got %v", want.RequestedAt, got.RequestedAt)
	}
}

func TestRequestReconcile_SetsMessageAttributes(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestQueue(mock)

	if err := q.RequestReconcile(context.Background(), testRequest()); err != nil {
		t.Fatalf("RequestReconcile returned unexpected error: %v", err)
	}

	attrs := mock.calls[0].MessageAttributes
	for name, want := range map[string]string{"reason": types.ReconcileLostWrite, "operation": "update_subscription"} {
		attr, ok := attrs[name]
		if !ok {
			t.Fatalf("expected %q message attribute to be set", name)
		}
		if *attr.StringValue != want {
			t.Errorf("attribute %q: expected %q, got %q", name, want, *attr.StringValue)
		}
		if *attr.DataType != "String" {
			t.Errorf("attribute %q: expected DataType 'String', got %q", name, *attr.DataType)
		}
	}
}

func TestRequestReconcile_GeneratesTraceID(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestQueue(mock)

	req := testRequest()
	req.TraceID = ""
	if err := q.RequestReconcile(context.Background(), req); err != nil {
		t.Fatalf("RequestReconcile returned unexpected error: %v", err)
	}

	var got types.ReconcileRequest
	if err := json.Unmarshal([]byte(*mock.calls[0].MessageBody), &got); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if got.TraceID == "" {
		t.Error("expected non-empty TraceID")
	}
}

func TestRequestReconcile_SQSError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("access denied")}
	q := newTestQueue(mock)

	err := q.RequestReconcile(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), testQueueURL) {
		t.Errorf("expected error to name the queue, got %v", err)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("expected wrapped SQS error, got %v", err)
	}
}
