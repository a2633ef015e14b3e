package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "create_property", true, 10*time.Millisecond)
	rec.Observe(ctx, "create_property", false, 20*time.Millisecond)
	rec.Observe(ctx, "create_property", true, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues("create_property", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues("create_property", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.latency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if _, err := NewPrometheusMetricsRecorder(nil); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}

func TestZapAuditRecorder(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	rec := NewZapAuditRecorder(zap.New(observed))
	ctx := context.Background()
	rec.Record(ctx, AuditEntry{Operation: "delete_lead", Entity: EntityLead, Action: ActionDelete, EntityID: "l1", ActorID: "a1", Status: AuditStatusSuccess})
	rec.Record(ctx, AuditEntry{Operation: "delete_lead", Entity: EntityLead, Action: ActionDelete, EntityID: "l2", Status: AuditStatusError, Error: "lead l2 not found"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].LoggerName != "audit" {
		t.Fatalf("unexpected success entry %+v", entries[0])
	}
	if entries[0].ContextMap()["entity_id"] != "l1" {
		t.Fatalf("missing entity id in %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "lead l2 not found" {
		t.Fatalf("unexpected error entry %+v", entries[1])
	}
}

func TestJSONTracerRetainsLimit(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf, 2)
	ctx := context.Background()
	for _, op := range []string{"one", "two", "three"} {
		_, span := tracer.Start(ctx, op)
		var err error
		if op == "two" {
			err = errors.New("boom")
		}
		span.End(err)
	}

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Operation != "two" || entries[1].Operation != "three" {
		t.Fatalf("unexpected retained spans %+v", entries)
	}
	if entries[0].Status != "error" || entries[0].Error != "boom" {
		t.Fatalf("expected error span, got %+v", entries[0])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected every span written, got %d lines", len(lines))
	}
	var first JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Operation != "one" || first.Status != "success" {
		t.Fatalf("unexpected first line %+v", first)
	}
}

type capturedAudit struct{ entries []AuditEntry }

func (c *capturedAudit) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

type capturedMetric struct {
	operation string
	success   bool
}

type capturedMetrics struct{ observed []capturedMetric }

func (c *capturedMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.observed = append(c.observed, capturedMetric{operation: operation, success: success})
}

func TestServiceInstrumentsOperations(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	audit := &capturedAudit{}
	metrics := &capturedMetrics{}
	tracer := NewJSONTracer(nil, 0)
	svc := newTestService(t,
		WithLogger(zap.New(observed)),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	ctx := context.Background()

	admin := createAdmin(t, svc, "agente@inmo.uy")
	created := createListing(t, svc, admin.ID)
	if _, err := svc.DeleteProperty(ctx, "intruder", created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.GetProperty(ctx, created.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(audit.entries) != 3 {
		t.Fatalf("expected audit entries for writes only, got %+v", audit.entries)
	}
	create := audit.entries[1]
	if create.Operation != "create_property" || create.EntityID != created.ID || create.ActorID != admin.ID || create.Status != AuditStatusSuccess {
		t.Fatalf("unexpected create audit %+v", create)
	}
	rejected := audit.entries[2]
	if rejected.Status != AuditStatusError || rejected.Error != ErrForbidden.Error() || rejected.ActorID != "intruder" {
		t.Fatalf("unexpected delete audit %+v", rejected)
	}
	if rejected.Timestamp.IsZero() {
		t.Fatalf("audit timestamp should come from the service clock")
	}

	want := []capturedMetric{
		{"create_admin", true},
		{"create_property", true},
		{"delete_property", false},
		{"get_property", true},
	}
	if len(metrics.observed) != len(want) {
		t.Fatalf("unexpected metrics %+v", metrics.observed)
	}
	for i := range want {
		if metrics.observed[i] != want[i] {
			t.Fatalf("metric %d: got %+v want %+v", i, metrics.observed[i], want[i])
		}
	}
	if spans := tracer.Entries(); len(spans) != 4 || spans[2].Status != "error" {
		t.Fatalf("unexpected spans %+v", spans)
	}

	warns := logs.FilterMessage("operation rejected").All()
	if len(warns) != 1 || warns[0].LoggerName != "core" || warns[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one rejected warning, got %+v", warns)
	}
	if logs.FilterMessage("operation completed").Len() != 3 {
		t.Fatalf("expected three debug completions")
	}
	if logs.FilterMessage("operation failed").Len() != 0 {
		t.Fatalf("client errors must not be logged as failures")
	}
}
