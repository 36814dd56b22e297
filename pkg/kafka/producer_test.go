package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"})
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.False(t, cfg.Async)
	assert.Positive(t, cfg.WriteTimeout)
}

func TestPublish_WritesKeyedMessageWithHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, nil, discardLogger())

	event, err := NewEvent("user.registered", Aggregate{Type: "user", ID: "user-42"}, "videotube-accounts", map[string]string{"username": "alice"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	require.NoError(t, p.Publish(context.Background(), "videotube.users.test", event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "videotube.users.test", msg.Topic)
	assert.Equal(t, "user-42", string(msg.Key))

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "user.registered", carrier.Get("event_type"))
	assert.Equal(t, "videotube-accounts", carrier.Get("source"))
	assert.Equal(t, "corr-1", carrier.Get("correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		publishedTotal.WithLabelValues("videotube.users.test", "user.registered", "ok")))
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	ctx, span := tp.Tracer("test").Start(context.Background(), "register")
	defer span.End()

	w := &recordingWriter{}
	event, err := NewEvent("user.updated", Aggregate{Type: "user", ID: "user-1"}, "svc", nil)
	require.NoError(t, err)
	require.NoError(t, newProducer(w, nil, discardLogger()).Publish(ctx, "t", event))

	traceparent := NewHeaderCarrier(&w.msgs[0].Headers).Get("traceparent")
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}

func TestPublish_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil, discardLogger())

	event, err := NewEvent("user.updated", Aggregate{Type: "user", ID: "user-1"}, "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "videotube.users.err", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to videotube.users.err")
	assert.Equal(t, float64(1), testutil.ToFloat64(
		publishedTotal.WithLabelValues("videotube.users.err", "user.updated", "error")))
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, newProducer(w, nil, discardLogger()).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.Equal(t, "v3", c.Get("new"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}
