package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RideEvent
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, e domain.RideEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func sampleEvent() domain.RideEvent {
	return domain.RideEvent{
		ID:        7,
		RideID:    "ride-1",
		Type:      domain.EventRideAccepted,
		Payload:   map[string]any{"driverId": "driver-1"},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMulti_DeliversToAllSinksDespiteFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}

	multi := NewMulti(logger).Add("kafka", failing).Add("log", ok)
	err := multi.Publish(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "kafka", hook.LastEntry().Data["sink"])
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByRide(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, timeout: time.Second}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ride-1", string(w.msgs[0].Key))

	var msg Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &msg))
	assert.Equal(t, "RIDE_ACCEPTED", msg.Type)
	assert.Equal(t, int64(7), msg.ID)
	assert.Equal(t, "driver-1", msg.Payload["driverId"])
}

func TestNewKafkaWriter_FlushesEachMessage(t *testing.T) {
	w := newKafkaWriter([]string{"localhost:9092"}, "ride-events")
	defer w.Close()

	assert.Equal(t, "ride-events", w.Topic)
	assert.Equal(t, 1, w.BatchSize)
	assert.Equal(t, batchTimeout, w.BatchTimeout)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.False(t, w.Async)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

func TestNewKafkaPublisher_UsesFlushingWriter(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "ride-events", time.Second)
	defer p.Close()

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 1, w.BatchSize)
	assert.Equal(t, batchTimeout, w.BatchTimeout)
}

type fakeProducer struct {
	topic string
	body  []byte
}

func (f *fakeProducer) Publish(topic string, body []byte) error {
	f.topic, f.body = topic, body
	return nil
}

func (f *fakeProducer) Stop() {}

func TestNSQPublisher_PublishesToTopic(t *testing.T) {
	prod := &fakeProducer{}
	p := &NSQPublisher{producer: prod, topic: "ride_events"}

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "ride_events", prod.topic)

	var msg Message
	require.NoError(t, json.Unmarshal(prod.body, &msg))
	assert.Equal(t, "ride-1", msg.RideID)
}

func TestNSQPublisher_CancelledContext(t *testing.T) {
	p := &NSQPublisher{producer: &fakeProducer{}, topic: "ride_events"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, sampleEvent()), context.Canceled)
}

type fakeConn struct {
	mu      sync.Mutex
	written []any
	fail    bool
	closed  bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestHub_PublishesOnlyToRideSubscribers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)

	mine := &fakeConn{}
	other := &fakeConn{}
	unsubscribe := hub.subscribe("ride-1", mine)
	hub.subscribe("ride-2", other)

	require.NoError(t, hub.Publish(context.Background(), sampleEvent()))
	assert.Len(t, mine.written, 1)
	assert.Empty(t, other.written)

	unsubscribe()
	assert.True(t, mine.closed)
	assert.Equal(t, 0, hub.Subscribers("ride-1"))
}

func TestHub_DropsBrokenSubscribers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger)

	broken := &fakeConn{fail: true}
	hub.subscribe("ride-1", broken)

	require.NoError(t, hub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, 0, hub.Subscribers("ride-1"))
	assert.True(t, broken.closed)
}
