package types

// Telemetry metric names.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliveryFailed    = "DeliveryFailed"
	MetricDuplicateSkipped  = "DuplicateSkipped"
	MetricResolverCacheMiss = "ResolverCacheMiss"
	MetricTriggerRejected   = "TriggerRejected"

	// Dimension Keys
	DimTransition = "Transition"
	DimProvider   = "Provider"
	DimOrgID      = "OrgID"

	// Metric Namespace
	MetricNamespace = "PRTrack"
)
