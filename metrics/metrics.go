package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelapi "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	metricsNamespace = "status_sync"
)

var (
	meter otelapi.Meter
)

func init() {
	// Instruments must be usable before (and without) Setup.
	meter = noop.NewMeterProvider().Meter(metricsNamespace)
	if err := setupInstruments(context.Background()); err != nil {
		panic(err)
	}
}

func Setup(ctx context.Context) error {
	for _, setup := range []func(context.Context) error{
		setupMeter, // must come first
		setupInstruments,
	} {
		if err := setup(ctx); err != nil {
			return err
		}
	}

	return nil
}

func setupMeter(ctx context.Context) error {
	res, err := resource.New(ctx)
	if err != nil {
		return err
	}

	exporter, err := prometheus.New(
		prometheus.WithNamespace(metricsNamespace),
		prometheus.WithoutScopeInfo(),
	)
	if err != nil {
		return err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(provider)
	meter = provider.Meter(metricsNamespace)

	return nil
}

func setupInstruments(_ context.Context) error {
	var err error

	for _, counter := range []struct {
		dst         *otelapi.Int64Counter
		name        string
		description string
	}{
		{&StatusPollsCount, "status_polls_count", "outbound status polls by outcome"},
		{&StatusCacheHitsCount, "status_cache_hits_count", "status lookups served from cache"},
		{&StatusCacheMissCount, "status_cache_miss_count", "status lookups that started a poll"},
		{&StatusCoalescedCount, "status_coalesced_count", "status lookups attached to an in-flight poll"},
		{&SyncCyclesCount, "sync_cycles_count", "status sync cycles started"},
		{&SyncWritesCount, "sync_writes_count", "status writes to durable storage by result"},
		{&ListCacheHitsCount, "list_cache_hits_count", "server list lookups served from cache"},
		{&ListCacheMissCount, "list_cache_miss_count", "server list lookups read from storage"},
		{&VotesCount, "votes_count", "vote attempts by outcome"},
		{&VoteAnomaliesCount, "vote_anomalies_count", "accepted votes with a failed follow-up write"},
		{&BroadcastsCount, "broadcasts_count", "reward broadcasts by result"},
	} {
		*counter.dst, err = meter.Int64Counter(counter.name,
			otelapi.WithDescription(counter.description),
		)
		if err != nil {
			return err
		}
	}

	for _, gauge := range []struct {
		dst         *otelapi.Int64Gauge
		name        string
		description string
	}{
		{&StatusCacheSize, "status_cache_size", "entries held by the status cache"},
		{&SyncServersOnline, "sync_servers_online", "servers reported online by the last sync cycle"},
	} {
		*gauge.dst, err = meter.Int64Gauge(gauge.name,
			otelapi.WithDescription(gauge.description),
		)
		if err != nil {
			return err
		}
	}

	return nil
}
