package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/types"
)

// mockCloudWatchClient captures PutMetricData inputs.
type mockCloudWatchClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func dimensionValue(dims []cwtypes.Dimension, name string) string {
	for _, d := range dims {
		if aws.ToString(d.Name) == name {
			return aws.ToString(d.Value)
		}
	}
	return ""
}

func TestCloudWatchMetrics_Count(t *testing.T) {
	client := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(client, &testLogger{})

	m.Count(types.MetricDeliverySuccess, map[string]string{
		types.DimTransition: "SUBMITTED->PENDING_APPROVAL",
		types.DimProvider:   "ses",
	})

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, types.MetricNamespace, aws.ToString(input.Namespace))

	require.Len(t, input.MetricData, 1)
	datum := input.MetricData[0]
	assert.Equal(t, types.MetricDeliverySuccess, aws.ToString(datum.MetricName))
	assert.Equal(t, float64(1), aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, datum.Unit)
	assert.Equal(t, "SUBMITTED->PENDING_APPROVAL", dimensionValue(datum.Dimensions, types.DimTransition))
	assert.Equal(t, "ses", dimensionValue(datum.Dimensions, types.DimProvider))
}

func TestCloudWatchMetrics_DurationInMilliseconds(t *testing.T) {
	client := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(client, &testLogger{})

	m.Duration(types.MetricDeliveryAttempt, 1500*time.Millisecond, nil)

	require.Len(t, client.inputs, 1)
	datum := client.inputs[0].MetricData[0]
	assert.Equal(t, float64(1500), aws.ToFloat64(datum.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, datum.Unit)
	assert.Empty(t, datum.Dimensions)
}

func TestCloudWatchMetrics_PublishFailureIsSwallowed(t *testing.T) {
	client := &mockCloudWatchClient{err: errors.New("throttled")}
	m := NewCloudWatchMetrics(client, &testLogger{})

	assert.NotPanics(t, func() {
		m.Count(types.MetricDeliveryFailed, nil)
		m.Duration(types.MetricDeliveryAttempt, time.Second, nil)
	})
	assert.Len(t, client.inputs, 2, "failed publishes must not stop later emission")
}
