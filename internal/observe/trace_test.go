package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "stt.transcribe")
	defer span.End()
	cid := CorrelationID(ctx)
	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("CorrelationID = %q, want 32 hex characters", cid)
	}
}

func TestStartTurn(t *testing.T) {
	exp := useTestTracer(t)

	ctx, span := StartTurn(context.Background(), "sess-1", 7)
	if got := TurnSeq(ctx); got != 7 {
		t.Errorf("TurnSeq = %d, want 7", got)
	}
	_, child := StartSpan(ctx, "llm.complete")
	child.End()
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	root := spans[1]
	if root.Name != "orchestrator.turn" {
		t.Errorf("root span = %q, want orchestrator.turn", root.Name)
	}
	if spans[0].Parent.SpanID() != root.SpanContext.SpanID() {
		t.Error("llm.complete is not a child of the turn span")
	}
	attrs := map[string]any{}
	for _, kv := range root.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["chica.session_id"] != "sess-1" || attrs["chica.turn"] != int64(7) {
		t.Errorf("turn span attributes = %v", attrs)
	}

	if got := TurnSeq(context.Background()); got != 0 {
		t.Errorf("TurnSeq outside a turn = %d, want 0", got)
	}
}

func TestFailSpan(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "tts.speak")
	FailSpan(span, "tts", errors.New("voice not found"))
	span.End()

	got := exp.GetSpans()[0]
	if got.Status.Code != codes.Error || got.Status.Description != "tts" {
		t.Errorf("status = %+v, want error/tts", got.Status)
	}
	if len(got.Events) != 1 || got.Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception", got.Events)
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	t.Run("no span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("ouvindo")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("log output should not contain trace_id: %s", buf)
		}
	})

	t.Run("inside a turn", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := StartTurn(context.Background(), "sess-2", 3)
		defer span.End()

		Logger(ctx).Info("heard", "text", "olá chica")
		for _, want := range []string{"trace_id=", "span_id=", "session_id=sess-2", "turn=3"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("log output missing %q: %s", want, buf)
			}
		}
	})
}
