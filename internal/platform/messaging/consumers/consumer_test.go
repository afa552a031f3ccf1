package consumers

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

	"github.com/settlement-closer/internal/config"
)

// fakeReader hands out queued messages and then blocks until the context ends
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) committedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.committed))
	for _, m := range r.committed {
		keys = append(keys, string(m.Key))
	}
	return keys
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewKafkaConsumer(t *testing.T) {
	cfg := &config.KafkaConfig{
		Brokers:           "localhost:9092",
		CloseRequestTopic: "test-topic",
		ConsumerGroup:     "test-group",
		MinBytes:          1024,
		MaxBytes:          10240,
		MaxWait:           time.Second,
	}

	consumer := NewKafkaConsumer(context.Background(), testLogger(), cfg)
	require.NotNil(t, consumer)
	require.NotNil(t, consumer.reader)
	assert.NoError(t, consumer.Close())
}

func TestKafkaConsumer_Subscribe_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Key: []byte("ok-1"), Value: []byte("a")},
		{Key: []byte("flaky"), Value: []byte("b")},
		{Key: []byte("ok-2"), Value: []byte("c")},
	}}
	consumer := &KafkaConsumer{reader: reader, logger: testLogger(), done: make(chan struct{}), retryBase: time.Millisecond}

	var handled []string
	var mu sync.Mutex
	failures := 2
	handler := func(_ context.Context, key, _ []byte) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, string(key))
		if string(key) == "flaky" && failures > 0 {
			failures--
			return errors.New("database unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Subscribe(ctx, "test-topic", "group", handler))

	assert.Eventually(t, func() bool {
		return len(reader.committedKeys()) == 3
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer loop did not stop")
	}

	assert.Equal(t, []string{"ok-1", "flaky", "ok-2"}, reader.committedKeys())
	mu.Lock()
	assert.Equal(t, []string{"ok-1", "flaky", "flaky", "flaky", "ok-2"}, handled)
	mu.Unlock()
}

func TestKafkaConsumer_Subscribe_CancelDuringRetryLeavesOffsetUncommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Key: []byte("stuck")},
		{Key: []byte("never-fetched")},
	}}
	consumer := &KafkaConsumer{reader: reader, logger: testLogger(), done: make(chan struct{}), retryBase: time.Millisecond}

	attempts := make(chan struct{}, 100)
	handler := func(_ context.Context, key, _ []byte) error {
		attempts <- struct{}{}
		return errors.New("still failing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Subscribe(ctx, "t", "g", handler))

	for i := 0; i < 2; i++ {
		select {
		case <-attempts:
		case <-time.After(time.Second):
			t.Fatal("handler was not retried")
		}
	}
	cancel()

	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer loop did not stop")
	}

	assert.Empty(t, reader.committedKeys())
	reader.mu.Lock()
	assert.Len(t, reader.queue, 1)
	reader.mu.Unlock()
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0, 0))
	assert.Equal(t, 10*time.Millisecond, retryDelay(10*time.Millisecond, 0))
	assert.Equal(t, 40*time.Millisecond, retryDelay(10*time.Millisecond, 2))
	assert.Equal(t, handlerRetryMax, retryDelay(time.Second, 10))
	assert.Equal(t, handlerRetryMax, retryDelay(time.Second, 1000))
}

func TestKafkaConsumer_Subscribe_RetriesFetchErrors(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("coordinator not available")},
		queue:     []kafka.Message{{Key: []byte("after-retry")}},
	}
	consumer := &KafkaConsumer{reader: reader, logger: testLogger(), done: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Subscribe(ctx, "t", "g", func(context.Context, []byte, []byte) error { return nil }))

	assert.Eventually(t, func() bool {
		return len(reader.committedKeys()) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestKafkaConsumer_Close(t *testing.T) {
	t.Run("CloseWithNilReader", func(t *testing.T) {
		consumer := &KafkaConsumer{logger: testLogger()}
		require.NoError(t, consumer.Close())
	})

	t.Run("ClosesReader", func(t *testing.T) {
		reader := &fakeReader{}
		consumer := &KafkaConsumer{reader: reader, logger: testLogger()}
		require.NoError(t, consumer.Close())
		assert.True(t, reader.closed)
	})
}
