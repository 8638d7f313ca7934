package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const traceIDKey = "trace_id"

// Span pairs an otel span with the logger of the operation that opened it.
type Span struct {
	span   trace.Span
	logger *zap.Logger
}

func StartSpan(ctx context.Context, tracer trace.Tracer, logger *zap.Logger, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With(zap.String(traceIDKey, sc.TraceID().String()))
	}

	return ctx, &Span{
		span:   span,
		logger: logger,
	}
}

// Logger returns the operation logger tagged with the trace id.
func (s *Span) Logger() *zap.Logger {
	return s.logger
}

func (s *Span) End(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
		s.logger.Debug("Operation failed", zap.Error(err))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}

	s.span.End()
}

func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}
