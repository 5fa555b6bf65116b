package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"prtrack/internal/types"
)

// putMetricTimeout bounds each PutMetricData call. Telemetry must never hold
// a delivery goroutine hostage.
const putMetricTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements DeliveryMetrics by publishing to AWS
// CloudWatch. Emission failures are logged and swallowed; telemetry is never
// allowed to fail a delivery.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the service
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// Count implements DeliveryMetrics.
func (m *CloudWatchMetrics) Count(metric string, dims map[string]string) {
	m.put(cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: toDimensions(dims),
	})
}

// Duration implements DeliveryMetrics. Durations are recorded in
// milliseconds.
func (m *CloudWatchMetrics) Duration(metric string, d time.Duration, dims map[string]string) {
	m.put(cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: toDimensions(dims),
	})
}

func (m *CloudWatchMetrics) put(datum cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), putMetricTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish metric",
			"name", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

func toDimensions(dims map[string]string) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]cwtypes.Dimension, 0, len(dims))
	for name, value := range dims {
		out = append(out, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}
	return out
}

var _ DeliveryMetrics = (*CloudWatchMetrics)(nil)
