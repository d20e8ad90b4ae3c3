package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
}

func (m *memStore) LockBatch(_ context.Context, _ string, n int, _ time.Duration) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.pending) {
		n = len(m.pending)
	}
	batch := m.pending[:n]
	m.pending = m.pending[n:]
	return batch, nil
}

func (m *memStore) MarkSent(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, ids...)
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[int64]string{}
	}
	m.failed[id] = msg
	return nil
}

func (m *memStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

type memProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failOn string
}

func (p *memProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == p.failOn {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func headerMap(h []kafka.Header) map[string]string {
	out := map[string]string{}
	for _, kv := range h {
		out[kv.Key] = string(kv.Value)
	}
	return out
}

func TestDispatcher_Message(t *testing.T) {
	d := NewDispatcher(discard(), &memProducer{}, "order.events")
	msg := d.Message(Event{
		ID:            7,
		AggregateType: "checkout",
		AggregateID:   "chk-1",
		Type:          "OrdersPlaced",
		Payload:       []byte(`{}`),
		Headers:       map[string]string{"source": "checkout-service"},
		Traceparent:   "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
	})

	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, "chk-1", string(msg.Key))
	h := headerMap(msg.Headers)
	assert.Equal(t, "OrdersPlaced", h["event_type"])
	assert.Equal(t, "checkout", h["aggregate_type"])
	assert.Equal(t, "checkout-service", h["source"])
	assert.NotEmpty(t, h["traceparent"])
}

func TestRelay_RunOnceMarksSentAndFailed(t *testing.T) {
	store := &memStore{pending: []Event{
		{ID: 1, AggregateID: "a"},
		{ID: 2, AggregateID: "bad"},
		{ID: 3, AggregateID: "c"},
	}}
	producer := &memProducer{failOn: "bad"}
	r := NewRelay(discard(), store, NewDispatcher(discard(), producer, "t"), "relay-1")

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed[2], "broker unavailable")
	assert.Len(t, producer.msgs, 2)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &memStore{pending: []Event{{ID: 1, AggregateID: "a"}}}
	producer := &memProducer{}
	r := NewRelay(discard(), store, NewDispatcher(discard(), producer, "t"), "relay-1",
		WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
