package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusMetricsRecorder exports operation counters and latency histograms.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inmoelegance",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inmoelegance",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{rec.operations, rec.latency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ZapAuditRecorder writes audit entries to a zap logger.
type ZapAuditRecorder struct {
	logger *zap.Logger
}

// NewZapAuditRecorder returns a recorder that logs under the "audit" name.
func NewZapAuditRecorder(logger *zap.Logger) *ZapAuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditRecorder{logger: logger.Named("audit")}
}

// Record implements AuditRecorder.
func (r *ZapAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("entity", string(entry.Entity)),
		zap.String("action", string(entry.Action)),
		zap.String("entity_id", entry.EntityID),
		zap.String("actor_id", entry.ActorID),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration),
		zap.Time("timestamp", entry.Timestamp),
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
		r.logger.Warn("audit", fields...)
		return
	}
	r.logger.Info("audit", fields...)
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains the most recent
// ones for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	limit   int
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to w and
// keeps at most limit spans in memory (0 keeps everything).
func NewJSONTracer(w io.Writer, limit int) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc, limit: limit}
}

// Entries returns a copy of the retained spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation: s.operation,
		Status:    "success",
		StartedAt: s.started,
		EndedAt:   time.Now().UTC(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	entry.DurationMS = float64(entry.EndedAt.Sub(s.started)) / float64(time.Millisecond)

	t := s.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.limit > 0 && len(t.entries) > t.limit {
		t.entries = append([]JSONTraceEntry(nil), t.entries[len(t.entries)-t.limit:]...)
	}
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}
