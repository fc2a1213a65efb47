// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"rivaas.dev/upload"
)

// meterName is the instrumentation scope of the recorded instruments.
const meterName = "rivaas.dev/upload"

// ErrNoHandler is returned by [Recorder.Handler] for non-Prometheus providers.
var ErrNoHandler = errors.New("metrics handler only available with the Prometheus provider")

// Provider represents the available metrics providers.
type Provider string

const (
	// PrometheusProvider exports to a Prometheus registry (default).
	PrometheusProvider Provider = "prometheus"
	// OTLPProvider pushes over OTLP/HTTP.
	OTLPProvider Provider = "otlp"
	// StdoutProvider writes to an io.Writer (development/testing).
	StdoutProvider Provider = "stdout"
)

// Default histogram boundaries.
var (
	DefaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	DefaultSizeBuckets     = []float64{1 << 10, 16 << 10, 256 << 10, 1 << 20, 10 << 20, 100 << 20, 1 << 30}
)

// Outcome attribute values.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Recorder records parser metrics. All methods are safe for concurrent use.
//
// By default, this package does NOT set the global OpenTelemetry meter
// provider; use [WithGlobalMeterProvider] for that.
type Recorder struct {
	meter              metric.Meter
	meterProvider      metric.MeterProvider
	sdkProvider        *sdkmetric.MeterProvider // Owned provider, nil when caller-managed
	prometheusRegistry *promclient.Registry
	prometheusHandler  http.Handler
	logger             *slog.Logger

	parses        metric.Int64Counter
	parseDuration metric.Float64Histogram
	bodySize      metric.Int64Histogram
	parts         metric.Int64Counter
	partSize      metric.Int64Histogram

	durationBuckets []float64
	sizeBuckets     []float64
	exportInterval  time.Duration

	provider            Provider
	otlpEndpoint        string
	stdoutWriter        io.Writer
	customMeterProvider bool
	registerGlobal      bool
}

// New creates a [Recorder].
//
// Errors:
//   - the exporter of the selected provider cannot be created
//   - an instrument cannot be created
func New(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		provider:        PrometheusProvider,
		durationBuckets: DefaultDurationBuckets,
		sizeBuckets:     DefaultSizeBuckets,
		exportInterval:  30 * time.Second,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.initializeProvider(); err != nil {
		return nil, err
	}
	if err := r.initializeMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew is like [New] but panics on error.
func MustNew(opts ...Option) *Recorder {
	r, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize upload metrics: %v", err))
	}

	return r
}

// Provider returns the metrics provider in use, or "" for a caller-managed
// meter provider.
func (r *Recorder) Provider() Provider {
	if r.customMeterProvider {
		return ""
	}

	return r.provider
}

// Handler returns the Prometheus scrape handler.
//
// Example:
//
//	handler, err := recorder.Handler()
//	if err == nil {
//	    http.Handle("/metrics", handler)
//	}
func (r *Recorder) Handler() (http.Handler, error) {
	if r.prometheusHandler == nil {
		return nil, fmt.Errorf("%w: current provider %q", ErrNoHandler, r.Provider())
	}

	return r.prometheusHandler, nil
}

// Shutdown flushes and stops a provider created by the recorder.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.sdkProvider == nil {
		return nil
	}

	return r.sdkProvider.Shutdown(ctx)
}

// Events returns parser hooks feeding the recorder.
//
// Example:
//
//	parser := upload.MustNew(upload.WithEvents(recorder.Events()))
func (r *Recorder) Events() upload.Events {
	return upload.Events{
		PartStored: r.RecordPart,
		Done:       r.RecordParse,
	}
}

// RecordPart records one stored part.
func (r *Recorder) RecordPart(part upload.PartInfo) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("upload.sink", part.Sink.String()))

	r.parts.Add(ctx, 1, attrs)
	r.partSize.Record(ctx, part.Size, attrs)
}

// RecordParse records the outcome of one parse.
func (r *Recorder) RecordParse(stats upload.Stats) {
	ctx := context.Background()

	outcome := outcomeOK
	kind := ""
	if stats.Err != nil {
		outcome = outcomeError
		kind = string(upload.KindOf(stats.Err))
	}
	attrs := metric.WithAttributes(
		attribute.String("upload.outcome", outcome),
		attribute.String("upload.error_kind", kind),
		attribute.String("upload.content_type", stats.ContentType),
	)

	r.parses.Add(ctx, 1, attrs)
	r.parseDuration.Record(ctx, stats.Duration.Seconds(), attrs)
	r.bodySize.Record(ctx, stats.BodyBytes, attrs)
}

func (r *Recorder) initializeMetrics() error {
	var err error

	r.parses, err = r.meter.Int64Counter(
		"upload.parses",
		metric.WithDescription("Total number of parsed request bodies"),
	)
	if err != nil {
		return fmt.Errorf("failed to create parse counter: %w", err)
	}

	r.parseDuration, err = r.meter.Float64Histogram(
		"upload.parse.duration",
		metric.WithDescription("Duration of request body parsing in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(r.durationBuckets...),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	r.bodySize, err = r.meter.Int64Histogram(
		"upload.body.size",
		metric.WithDescription("Request body bytes read per parse"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(r.sizeBuckets...),
	)
	if err != nil {
		return fmt.Errorf("failed to create body size histogram: %w", err)
	}

	r.parts, err = r.meter.Int64Counter(
		"upload.parts",
		metric.WithDescription("Total number of stored parts"),
	)
	if err != nil {
		return fmt.Errorf("failed to create part counter: %w", err)
	}

	r.partSize, err = r.meter.Int64Histogram(
		"upload.part.size",
		metric.WithDescription("Stored bytes per part"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(r.sizeBuckets...),
	)
	if err != nil {
		return fmt.Errorf("failed to create part size histogram: %w", err)
	}

	return nil
}
