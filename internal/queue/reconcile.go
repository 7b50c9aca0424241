// Package queue provides the SQS producer that hands lost local writes to the
// reconciliation worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"clientdesk/internal/config"
	"clientdesk/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReconcileQueue publishes ReconcileRequests. The consumer re-reads the
// user's subscription from the processor and overwrites the local record,
// the same way the webhook handler does.
type ReconcileQueue struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReconcileQueue creates a ReconcileQueue sending to
// awsCfg.ReconcileQueueURL.
func NewReconcileQueue(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ReconcileQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileQueue{
		client:   client,
		queueURL: awsCfg.ReconcileQueueURL,
		logger:   logger,
	}
}

// RequestReconcile enqueues req. A missing TraceID is filled with a fresh
// UUID so the worker's logs can be correlated with this one.
func (q *ReconcileQueue) RequestReconcile(ctx context.Context, req types.ReconcileRequest) error {
	if req.TraceID == "" {
		req.TraceID = uuid.New().String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ReconcileRequest: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(req.Reason),
			},
			"operation": {
				DataType:    aws.String("String"),
				StringValue: aws.String(req.Operation),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ReconcileRequest to %s: %w", q.queueURL, err)
	}

	q.logger.InfoContext(ctx, "reconcile request queued",
		"queue_url", q.queueURL,
		"user_id", req.UserID,
		"operation", req.Operation,
		"reason", req.Reason,
		"trace_id", req.TraceID,
	)
	return nil
}
