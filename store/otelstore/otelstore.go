// Package otelstore wraps a store.Store with OpenTelemetry spans and metrics.
//
// Each call gets a span named "distcache.store.<op>" and is counted in
// distcache.store.calls{op,status} with its latency in
// distcache.store.duration_ms. Gets are also counted in
// distcache.store.lookups{hit}. Keys are never attached: they are unbounded
// and may carry user data.
package otelstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/distcache/store"
)

const instrumentationName = "github.com/unkn0wn-root/distcache/store/otelstore"

type Config struct {
	// System names the backend ("redis", "postgresql", ...) on spans and metrics.
	System string

	TracerProvider trace.TracerProvider // defaults to otel.GetTracerProvider()
	MeterProvider  metric.MeterProvider // defaults to otel.GetMeterProvider()
}

type Store struct {
	next   store.Store
	tracer trace.Tracer
	system attribute.KeyValue

	calls    metric.Int64Counter
	lookups  metric.Int64Counter
	duration metric.Float64Histogram
}

var _ store.Store = (*Store)(nil)

func New(next store.Store, cfg Config) (*Store, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	calls, err := meter.Int64Counter(
		"distcache.store.calls",
		metric.WithDescription("Store calls by operation and status"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	lookups, err := meter.Int64Counter(
		"distcache.store.lookups",
		metric.WithDescription("Successful store reads by hit/miss"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"distcache.store.duration_ms",
		metric.WithDescription("Store call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	system := cfg.System
	if system == "" {
		system = "unknown"
	}
	return &Store{
		next:     next,
		tracer:   tp.Tracer(instrumentationName),
		system:   attribute.String("db.system", system),
		calls:    calls,
		lookups:  lookups,
		duration: duration,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, done := s.start(ctx, "get")
	v, ok, err := s.next.Get(ctx, key)
	done(err)
	if err == nil {
		s.lookups.Add(ctx, 1, metric.WithAttributes(s.system, attribute.Bool("hit", ok)))
	}
	return v, ok, err
}

func (s *Store) Insert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, done := s.start(ctx, "insert", attribute.Int64("distcache.ttl_ms", ttl.Milliseconds()))
	err := s.next.Insert(ctx, key, value, ttl)
	done(err)
	return err
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, done := s.start(ctx, "upsert", attribute.Int64("distcache.ttl_ms", ttl.Milliseconds()))
	err := s.next.Upsert(ctx, key, value, ttl)
	done(err)
	return err
}

func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	ctx, done := s.start(ctx, "touch", attribute.Int64("distcache.ttl_ms", ttl.Milliseconds()))
	err := s.next.Touch(ctx, key, ttl)
	done(err)
	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, done := s.start(ctx, "remove")
	err := s.next.Remove(ctx, key)
	done(err)
	return err
}

func (s *Store) Close(ctx context.Context) error { return s.next.Close(ctx) }

func (s *Store) start(ctx context.Context, op string, extra ...attribute.KeyValue) (context.Context, func(error)) {
	opAttr := attribute.String("distcache.op", op)
	attrs := append([]attribute.KeyValue{s.system, opAttr}, extra...)
	ctx, span := s.tracer.Start(ctx, "distcache.store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	began := time.Now()

	return ctx, func(err error) {
		status := store.StatusOf(err)
		statusAttr := attribute.String("distcache.status", status.String())
		span.SetAttributes(statusAttr)
		switch status {
		case store.StatusSuccess, store.StatusKeyNotFound, store.StatusKeyExists:
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		opt := metric.WithAttributes(s.system, opAttr, statusAttr)
		s.calls.Add(ctx, 1, opt)
		s.duration.Record(ctx, float64(time.Since(began).Microseconds())/1000, opt)
	}
}
