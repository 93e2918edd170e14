package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type fakeReader struct {
	m         sync.Mutex
	msgs      chan kafkaGo.Message
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafkaGo.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafkaGo.Message, len(msgs)+1)}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	select {
	case <-ctx.Done():
		return kafkaGo.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]int64{}, r.committed...)
}

type fakeHandler struct {
	m         sync.Mutex
	users     []string
	checkouts []string
	failures  int
}

func (h *fakeHandler) CheckoutCompleted(_ context.Context, userID, checkoutID string) error {
	h.m.Lock()
	defer h.m.Unlock()
	if h.failures > 0 {
		h.failures--
		return errors.New("basket is being updated concurrently")
	}
	h.users = append(h.users, userID)
	h.checkouts = append(h.checkouts, checkoutID)
	return nil
}

func (h *fakeHandler) checkoutIDs() []string {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]string{}, h.checkouts...)
}

func (h *fakeHandler) cleared() []string {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]string{}, h.users...)
}

func event(t *testing.T, offset int64, userID string) kafkaGo.Message {
	value, err := json.Marshal(map[string]interface{}{
		"checkout_id":  fmt.Sprintf("ch-%d", offset),
		"user_id":      userID,
		"total_amount": "1",
		"currency":     "try",
		"completed_at": time.Time{},
	})
	require.NoError(t, err)
	return kafkaGo.Message{Offset: offset, Value: value}
}

func runPoller(t *testing.T, p *Poller) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestPoller_ClearsBasketAndCommits(t *testing.T) {
	reader := newFakeReader(event(t, 1, "u1"), event(t, 2, "u2"))
	handler := &fakeHandler{}
	runPoller(t, newPoller(reader, handler, zap.NewNop()))

	require.Eventually(t, func() bool {
		return len(reader.commits()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"u1", "u2"}, handler.cleared())
	assert.Equal(t, []string{"ch-1", "ch-2"}, handler.checkoutIDs())
	assert.Equal(t, []int64{1, 2}, reader.commits())
}

func TestPoller_SkipsMalformedMessages(t *testing.T) {
	reader := newFakeReader(
		kafkaGo.Message{Offset: 1, Value: []byte("not json")},
		kafkaGo.Message{Offset: 2, Value: []byte(`{"checkout_id":"ch-2"}`)},
		kafkaGo.Message{Offset: 3, Value: []byte(`{"user_id":"u9"}`)},
		event(t, 4, "u3"),
	)
	handler := &fakeHandler{}
	runPoller(t, newPoller(reader, handler, zap.NewNop()))

	require.Eventually(t, func() bool {
		return len(reader.commits()) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"u3"}, handler.cleared())
}

func TestPoller_RetriesUntilHandled(t *testing.T) {
	reader := newFakeReader(event(t, 7, "u7"))
	handler := &fakeHandler{failures: 2}
	runPoller(t, newPoller(reader, handler, zap.NewNop()))

	require.Eventually(t, func() bool {
		return len(reader.commits()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"u7"}, handler.cleared())
	assert.Equal(t, []string{"ch-7"}, handler.checkoutIDs())
}

func TestPoller_StopsOnCancel(t *testing.T) {
	reader := newFakeReader()
	p := newPoller(reader, &fakeHandler{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	p.Close()
	assert.True(t, reader.closed)
}

func TestParseEvent(t *testing.T) {
	ev, err := parseEvent([]byte(`{"checkout_id":"c1","user_id":"u1","items":"{}"}`))
	require.NoError(t, err)
	assert.Equal(t, checkoutEvent{CheckoutID: "c1", UserID: "u1"}, ev)

	_, err = parseEvent([]byte(`{"checkout_id":"c1"}`))
	assert.ErrorIs(t, err, errMissingUserID)

	_, err = parseEvent([]byte(`{"user_id":"u1"}`))
	assert.ErrorIs(t, err, errMissingCheckoutID)

	_, err = parseEvent([]byte(`{`))
	assert.ErrorContains(t, err, "error parsing message")
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second))
}

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_ConsumesFromKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	broker := setupKafka(t)
	topic := "checkout-outbox"
	createTopic(t, broker, topic)

	w := &kafkaGo.Writer{
		Addr:     kafkaGo.TCP(broker),
		Topic:    topic,
		Balancer: &kafkaGo.LeastBytes{},
	}
	msg := event(t, 0, "123")
	require.NoError(t, w.WriteMessages(context.Background(), kafkaGo.Message{Key: []byte("ch-0"), Value: msg.Value}))
	require.NoError(t, w.Close())

	handler := &fakeHandler{}
	p := NewPoller(handler, zap.NewNop(), Config{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: "basket-service-test",
	})
	t.Cleanup(p.Close)
	runPoller(t, p)

	require.Eventually(t, func() bool {
		return len(handler.cleared()) == 1
	}, 30*time.Second, 500*time.Millisecond)
	assert.Equal(t, "123", handler.cleared()[0])
}
