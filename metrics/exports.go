package metrics

import (
	otelapi "go.opentelemetry.io/otel/metric"
)

var (
	StatusPollsCount     otelapi.Int64Counter
	StatusCacheHitsCount otelapi.Int64Counter
	StatusCacheMissCount otelapi.Int64Counter
	StatusCoalescedCount otelapi.Int64Counter
	StatusCacheSize      otelapi.Int64Gauge

	SyncCyclesCount   otelapi.Int64Counter
	SyncWritesCount   otelapi.Int64Counter
	SyncServersOnline otelapi.Int64Gauge

	ListCacheHitsCount otelapi.Int64Counter
	ListCacheMissCount otelapi.Int64Counter

	VotesCount         otelapi.Int64Counter
	VoteAnomaliesCount otelapi.Int64Counter
	BroadcastsCount    otelapi.Int64Counter
)
