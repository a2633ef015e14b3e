package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Clock supplies the current time to the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating service operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	ActorID   string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended once per operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// ImageRemover deletes hosted images referenced by listings. owner is the
// admin deleting the listing; implementations keep images uploaded by others.
type ImageRemover interface {
	Delete(ctx context.Context, owner, url string) error
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type serviceOptions struct {
	clock   Clock
	logger  *zap.Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	images  ImageRemover
	exprs   *ExpressionCache
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   systemClock{},
		logger:  zap.NewNop(),
		audit:   noopAudit{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithImageRemover lets DeleteProperty remove hosted images.
func WithImageRemover(images ImageRemover) ServiceOption {
	return func(o *serviceOptions) { o.images = images }
}

// WithExpressionCache shares a compiled expression cache between services.
func WithExpressionCache(cache *ExpressionCache) ServiceOption {
	return func(o *serviceOptions) {
		if cache != nil {
			o.exprs = cache
		}
	}
}
