package metrics

import (
	"go.opentelemetry.io/otel/attribute"
	otelapi "go.opentelemetry.io/otel/metric"
)

// With is a shorthand for recording a measurement with a single attribute.
func With(key, value string) otelapi.MeasurementOption {
	return otelapi.WithAttributes(
		attribute.KeyValue{Key: attribute.Key(key), Value: attribute.StringValue(value)},
	)
}
