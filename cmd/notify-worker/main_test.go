package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/types"
)

type testLogger struct{}

func (l *testLogger) Info(_ string, _ ...any)    {}
func (l *testLogger) Error(_ string, _ ...any)   {}
func (l *testLogger) Warn(_ string, _ ...any)    {}
func (l *testLogger) With(_ ...any) types.Logger { return l }

// fakeProcessor records requests and returns a canned result or error.
type fakeProcessor struct {
	requests []types.TriggerRequest
	result   *types.TriggerResult
	err      error
}

func (f *fakeProcessor) Process(_ context.Context, req types.TriggerRequest) (*types.TriggerResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func messageBody(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(types.NotificationMessage{
		TriggerRequest: types.TriggerRequest{
			Notification: types.TriggerNotification{
				PRID:           "pr-123",
				PRNumber:       "PR-2025-001",
				OrganizationID: "org-1",
				OldStatus:      "SUBMITTED",
				NewStatus:      "PENDING_APPROVAL",
				RequestorEmail: "jopi@example.com",
				ApproverEmail:  "approver@example.com",
			},
		},
		TraceID: "trace-1",
	})
	require.NoError(t, err)
	return string(body)
}

func sqsEvent(bodies ...string) events.SQSEvent {
	var event events.SQSEvent
	for i, body := range bodies {
		event.Records = append(event.Records, events.SQSMessage{
			MessageId: string(rune('a' + i)),
			Body:      body,
		})
	}
	return event
}

func TestHandle_ProcessesMessage(t *testing.T) {
	proc := &fakeProcessor{result: &types.TriggerResult{Success: true, Delivered: 1}}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent(messageBody(t)))
	require.NoError(t, err)

	assert.Empty(t, response.BatchItemFailures)
	require.Len(t, proc.requests, 1)
	assert.Equal(t, "pr-123", proc.requests[0].Notification.PRID)
}

func TestHandle_MalformedBodyIsAcked(t *testing.T) {
	proc := &fakeProcessor{}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent("not json"))
	require.NoError(t, err)

	assert.Empty(t, response.BatchItemFailures, "a redrive cannot fix a malformed body")
	assert.Empty(t, proc.requests)
}

func TestHandle_RetryableErrorReportsBatchFailure(t *testing.T) {
	proc := &fakeProcessor{
		err: types.NewAppError(types.ErrCodeUpstreamMailProvider, "provider down", nil),
	}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent(messageBody(t)))
	require.NoError(t, err)

	require.Len(t, response.BatchItemFailures, 1)
	assert.Equal(t, "a", response.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_PermanentErrorIsAcked(t *testing.T) {
	proc := &fakeProcessor{
		err: types.NewAppError(types.ErrCodeNotFoundPurchaseRequest, "no such PR", nil),
	}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent(messageBody(t)))
	require.NoError(t, err)

	assert.Empty(t, response.BatchItemFailures)
}

func TestHandle_DuplicateIsAcked(t *testing.T) {
	proc := &fakeProcessor{result: &types.TriggerResult{Success: true, Duplicate: true}}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent(messageBody(t)))
	require.NoError(t, err)

	assert.Empty(t, response.BatchItemFailures)
}

func TestHandle_MixedBatch(t *testing.T) {
	proc := &fakeProcessor{
		err: types.NewAppError(types.ErrCodeInternalDB, "store unavailable", nil),
	}
	handler := &Handler{notifier: proc, logger: &testLogger{}}

	response, err := handler.Handle(context.Background(), sqsEvent("garbage", messageBody(t)))
	require.NoError(t, err)

	require.Len(t, response.BatchItemFailures, 1, "only the retryable message is redriven")
	assert.Equal(t, "b", response.BatchItemFailures[0].ItemIdentifier)
}
