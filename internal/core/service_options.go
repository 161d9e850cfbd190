package core

import (
	"context"
	"time"

	"territorycore/internal/access"
	"territorycore/internal/blob"

	"go.uber.org/zap"
)

// Clock supplies timestamps for audit entries and session stamping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock. A nil ClockFunc reports the
// current UTC time.
type ClockFunc func() time.Time

// Now returns the function result in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// Logger is the structured logging surface the service writes to. Arguments
// are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type zapLogger struct{ l *zap.SugaredLogger }

// NewZapLogger adapts a zap logger to Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return zapLogger{l: l.Sugar()}
}

func (z zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// MetricsRecorder observes the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer opens a span around each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus reports whether an audited operation succeeded.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one audited create, update or delete.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type serviceOptions struct {
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	session   access.Session
	blobs     blob.Store
	urlExpiry time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:    noopLogger{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		audit:     noopAuditRecorder{},
		session:   access.Anonymous,
		urlExpiry: blob.DefaultURLExpiry,
	}
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the clock used for timestamps. The clock is pushed
// down to stores that stamp their own records.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the operation logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithSession sets the identity stamped onto logged visits, calls and recalls.
func WithSession(session access.Session) ServiceOption {
	return func(o *serviceOptions) {
		if session != nil {
			o.session = session
		}
	}
}

// WithBlobStore enables territory image storage.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(o *serviceOptions) {
		o.blobs = store
	}
}

// WithImageURLExpiry sets the lifetime of image URLs handed to views.
func WithImageURLExpiry(expiry time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if expiry > 0 {
			o.urlExpiry = expiry
		}
	}
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

type nowFuncProvider interface {
	NowFunc() func() time.Time
}

type nowFuncSetter interface {
	SetNowFunc(func() time.Time)
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if p, ok := store.(rulesEngineProvider); ok {
		return p.RulesEngine()
	}
	return nil
}

// selectNowFunc prefers an explicit clock, then the store's own clock, then
// the system clock. Every result is UTC.
func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return func() time.Time { return clock.Now().UTC() }
	}
	if p, ok := store.(nowFuncProvider); ok {
		if fn := p.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return func() time.Time { return time.Now().UTC() }
}
