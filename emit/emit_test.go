package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogEmitterLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	em := NewLogEmitter(zap.New(core))

	em.Emit(Event{RunID: "r", Step: 1, NodeID: "cto", Msg: MsgNodeStart})
	em.Emit(Event{RunID: "r", Step: 1, NodeID: "cto", Msg: MsgNodeEnd, Meta: map[string]any{"latency_ms": int64(12), "phase": "delegation"}})
	em.Emit(Event{RunID: "r", Step: 2, NodeID: "qa_engineer", Msg: MsgNodeError, Meta: map[string]any{"error": "boom"}})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "pipeline", entries[1].LoggerName)

	ctx := entries[1].ContextMap()
	assert.Equal(t, "r", ctx["run_id"])
	assert.Equal(t, "cto", ctx["node_id"])
	assert.Equal(t, "delegation", ctx["phase"])
	assert.EqualValues(t, 12, ctx["latency_ms"])
}

func TestNilLoggerEmitterDrops(t *testing.T) {
	assert.NotPanics(t, func() { NewLogEmitter(nil).Emit(Event{Msg: MsgNodeEnd}) })
}

func TestOTelEmitter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	em := NewOTelEmitter(tp.Tracer("devteam-test"))
	em.Emit(Event{RunID: "run-1", Step: 3, NodeID: "unit_test_evaluator", Msg: MsgNodeEnd,
		Meta: map[string]any{"latency_ms": int64(250), "work_items": []string{"work_1"}}})
	em.Emit(Event{RunID: "run-1", Step: 4, NodeID: "senior_engineer", Msg: MsgNodeError,
		Meta: map[string]any{"error": "executor failed"}})

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, MsgNodeEnd, ok.Name)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ok.Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "run-1", attrs["devteam.run_id"].AsString())
	assert.Equal(t, int64(3), attrs["devteam.step"].AsInt64())
	assert.Equal(t, []string{"work_1"}, attrs["devteam.work_items"].AsStringSlice())
	assert.Equal(t, int64(250), ok.EndTime.Sub(ok.StartTime).Milliseconds())

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status.Code)
	assert.Equal(t, "executor failed", failed.Status.Description)
	require.Len(t, failed.Events, 1)
}

func TestBufferedEmitterFilter(t *testing.T) {
	b := NewBufferedEmitter()
	for i, node := range []string{"cto", "engineering_manager", "senior_engineer", "cto"} {
		b.Emit(Event{RunID: "a", Step: i + 1, NodeID: node, Msg: MsgNodeEnd})
	}
	b.Emit(Event{RunID: "b", Step: 1, NodeID: "cto", Msg: MsgRunCompleted})

	assert.Len(t, b.History("a"), 4)
	assert.Len(t, b.Filter("a", HistoryFilter{NodeID: "cto"}), 2)
	assert.Len(t, b.Filter("a", HistoryFilter{MinStep: 2, MaxStep: 3}), 2)
	assert.Len(t, b.Filter("b", HistoryFilter{Msg: MsgNodeEnd}), 0)

	b.Clear("a")
	assert.Empty(t, b.History("a"))
	assert.Len(t, b.History("b"), 1)
	b.Clear("")
	assert.Empty(t, b.History("b"))
}

func TestMultiFansOut(t *testing.T) {
	first, second := NewBufferedEmitter(), NewBufferedEmitter()
	var seen []string
	em := Multi(first, nil, second, EmitterFunc(func(e Event) { seen = append(seen, e.Msg) }), NewNullEmitter())

	em.Emit(Event{RunID: "r", Msg: MsgSuspended})
	assert.Len(t, first.History("r"), 1)
	assert.Len(t, second.History("r"), 1)
	assert.Equal(t, []string{MsgSuspended}, seen)
}
