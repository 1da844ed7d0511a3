package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/chica"

// Span attribute keys shared by the turn pipeline.
const (
	AttrSession = attribute.Key("chica.session_id")
	AttrTurn    = attribute.Key("chica.turn")
	AttrStage   = attribute.Key("chica.stage")
)

type turnKey struct{}

// turnInfo identifies one utterance travelling through the pipeline.
type turnInfo struct {
	session string
	seq     uint64
}

// Tracer returns the tracer used by every chica span. It resolves the
// globally registered [trace.TracerProvider] on each call so tests can swap
// providers.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartTurn opens the root span of one conversational turn. The session and
// sequence number are attached to the span and carried in the returned
// context, where [Logger] and [TurnSeq] pick them up.
func StartTurn(ctx context.Context, sessionID string, seq uint64) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, turnKey{}, turnInfo{session: sessionID, seq: seq})
	return StartSpan(ctx, "orchestrator.turn", trace.WithAttributes(
		AttrSession.String(sessionID),
		AttrTurn.Int64(int64(seq)),
	))
}

// TurnSeq returns the turn sequence number carried by ctx, or 0 outside a
// turn.
func TurnSeq(ctx context.Context) uint64 {
	ti, _ := ctx.Value(turnKey{}).(turnInfo)
	return ti.seq
}

// FailSpan marks span as failed at the given pipeline stage.
func FailSpan(span trace.Span, stage string, err error) {
	span.RecordError(err, trace.WithAttributes(AttrStage.String(stage)))
	span.SetStatus(codes.Error, stage)
}

// CorrelationID returns the trace ID of the active span in ctx, or "" when
// there is none. It is the identifier written to logs and to the
// X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the trace, span and turn
// identifiers found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if ti, ok := ctx.Value(turnKey{}).(turnInfo); ok {
		l = l.With(slog.String("session_id", ti.session), slog.Uint64("turn", ti.seq))
	}
	return l
}
