package external

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/types"
)

// mockSQSAPI captures SendMessage inputs and returns a canned response.
type mockSQSAPI struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQSAPI) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-msg-1")}, nil
}

func testMessage() types.NotificationMessage {
	return types.NotificationMessage{
		TriggerRequest: types.TriggerRequest{
			Notification: types.TriggerNotification{
				PRID:           "pr-123",
				PRNumber:       "PR-2025-001",
				OrganizationID: "org-1",
				OldStatus:      "SUBMITTED",
				NewStatus:      "PENDING_APPROVAL",
			},
		},
		TraceID: "trace-1",
	}
}

func TestSQSPublisher_Publish(t *testing.T) {
	api := &mockSQSAPI{}
	publisher := NewSQSPublisherWithAPI(api, "https://sqs.example.com/queue", nil)

	err := publisher.Publish(context.Background(), testMessage())
	require.NoError(t, err)

	require.Len(t, api.inputs, 1)
	assert.Equal(t, "https://sqs.example.com/queue", aws.ToString(api.inputs[0].QueueUrl))

	var decoded types.NotificationMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.inputs[0].MessageBody)), &decoded))
	assert.Equal(t, "pr-123", decoded.Notification.PRID)
	assert.Equal(t, "trace-1", decoded.TraceID)
}

func TestSQSPublisher_SendFailure(t *testing.T) {
	api := &mockSQSAPI{err: errors.New("queue unreachable")}
	publisher := NewSQSPublisherWithAPI(api, "https://sqs.example.com/queue", nil)

	err := publisher.Publish(context.Background(), testMessage())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}
