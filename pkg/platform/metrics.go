package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"enginectl/pkg/apierrors"
)

// Recorder records remote call metrics.
type Recorder interface {
	// ObserveRequest records one completed call.
	ObserveRequest(op string, success bool, errorType string, duration time.Duration)
	// ObserveEvent records one streamed event.
	ObserveEvent(op string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _ bool, _ string, _ time.Duration) {}

// ObserveEvent does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveEvent(_ string) {}

// PrometheusRecorder implements Recorder on a private registry.
type PrometheusRecorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginectl_requests_total",
				Help: "Total number of platform requests by operation, status and error type",
			},
			[]string{"op", "status", "error_type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enginectl_request_duration_seconds",
				Help:    "Duration of platform requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enginectl_stream_events_total",
				Help: "Total number of streamed agent events",
			},
			[]string{"op"},
		),
	}
}

// ObserveRequest records metrics for a completed platform request.
func (p *PrometheusRecorder) ObserveRequest(op string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(op, status, errorType).Inc()
	p.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveEvent increments the streamed event counter.
func (p *PrometheusRecorder) ObserveEvent(op string) {
	p.eventsTotal.WithLabelValues(op).Inc()
}

// WriteTextfile writes the text exposition format to path, atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	families, err := p.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move metrics file into place: %w", err)
	}
	return nil
}

// WithMetrics records every call and streamed event on rec.
func WithMetrics(rec Recorder) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, func(ctx context.Context, call Call, next Handler) error {
			start := time.Now()
			err := next(ctx)
			errorType := ""
			if err != nil {
				errorType = apierrors.TypeOf(err).String()
			}
			rec.ObserveRequest(call.Op, err == nil, errorType, time.Since(start))
			return err
		})
		WithEventObserver(func(call Call) {
			rec.ObserveEvent(call.Op)
		})(c)
	}
}
