package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	sessionOpsCounter   metric.Int64Counter
	sagaOutcomesCounter metric.Int64Counter
	handoffDuration     metric.Float64Histogram
	templateUsesCounter metric.Int64Counter
	renderWarnings      metric.Int64Counter
	sseEventsCounter    metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		sessionOpsCounter, err = m.Int64Counter("plexify_session_operations_total", metric.WithDescription("Session lifecycle operations by outcome"))
		if err != nil {
			return
		}
		sagaOutcomesCounter, err = m.Int64Counter("plexify_session_start_saga_total", metric.WithDescription("Start saga outcomes (ok, compensated, rollback_failed)"))
		if err != nil {
			return
		}
		handoffDuration, err = m.Float64Histogram("plexify_handoff_compose_duration_seconds", metric.WithDescription("Time spent composing a handoff"))
		if err != nil {
			return
		}
		templateUsesCounter, err = m.Int64Counter("plexify_template_uses_total", metric.WithDescription("Template render-and-use actions"))
		if err != nil {
			return
		}
		renderWarnings, err = m.Int64Counter("plexify_template_render_warnings_total", metric.WithDescription("Warnings produced while rendering templates"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("plexify_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("plexify_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
	})
	return err
}

// RecordSessionOp records a lifecycle operation (start, complete, abandon) and its
// outcome ("ok" or an error kind).
func RecordSessionOp(ctx context.Context, op, sessionType, outcome string) {
	if sessionOpsCounter == nil {
		return
	}
	sessionOpsCounter.Add(ctx, 1, metric.WithAttributes(
		AttrOperation.String(op),
		AttrSessionType.String(sessionType),
		AttrOutcome.String(outcome),
	))
}

// RecordSagaOutcome records how a start saga ended.
func RecordSagaOutcome(ctx context.Context, outcome string) {
	if sagaOutcomesCounter != nil {
		sagaOutcomesCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
	}
}

// RecordHandoff records how long composing a handoff took.
func RecordHandoff(ctx context.Context, sessionType string, d time.Duration) {
	if handoffDuration != nil {
		handoffDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrSessionType.String(sessionType)))
	}
}

// RecordTemplateUse records a render-and-use of template slug with its warning count.
func RecordTemplateUse(ctx context.Context, slug string, warnings int) {
	if templateUsesCounter != nil {
		templateUsesCounter.Add(ctx, 1, metric.WithAttributes(AttrTemplate.String(slug)))
	}
	RecordRenderWarnings(ctx, slug, warnings)
}

// RecordRenderWarnings adds n render warnings for template slug.
func RecordRenderWarnings(ctx context.Context, slug string, n int) {
	if renderWarnings != nil && n > 0 {
		renderWarnings.Add(ctx, int64(n), metric.WithAttributes(AttrTemplate.String(slug)))
	}
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// SessionCountFunc returns the number of sessions per status. Used for the plexify_sessions gauge.
type SessionCountFunc func(ctx context.Context) (map[string]int64, error)

// InitMetricsWithSessionCount creates instruments and optionally registers a callback for the
// sessions-by-status gauge. Call after InitMeterProvider. If count is nil, the gauge is not reported.
func InitMetricsWithSessionCount(ctx context.Context, count SessionCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if count == nil {
		return nil
	}
	m := Meter()
	gauge, err := m.Int64ObservableGauge("plexify_sessions", metric.WithDescription("Number of sessions by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := count(ctx)
		if err != nil {
			return err
		}
		for status, n := range counts {
			o.ObserveInt64(gauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, gauge)
	return err
}
