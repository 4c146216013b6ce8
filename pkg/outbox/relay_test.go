package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/payment-gateway/pkg/kafka"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Pending(ctx context.Context, limit int) ([]*Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Message), args.Error(1)
}

func (m *mockStore) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *mockStore) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) SendMessage(ctx context.Context, msg *kafka.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func testConfig() RelayConfig {
	return RelayConfig{
		PollInterval:    10 * time.Millisecond,
		BatchSize:       10,
		MaxRetries:      3,
		Retention:       time.Hour,
		CleanupInterval: time.Hour,
	}
}

func TestRelay_Publish_Success(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	pub := new(mockPublisher)
	relay := NewRelay(store, pub, testConfig())

	msg := &Message{
		ID:        "outbox-1",
		EventType: "payment.completed",
		Topic:     kafka.TopicPaymentEvents,
		Key:       "pay-1",
		Payload:   []byte(`{"paymentId":"pay-1"}`),
		Headers:   map[string]string{kafka.HeaderTraceID: "trace-1"},
	}

	pub.On("SendMessage", ctx, mock.MatchedBy(func(m *kafka.Message) bool {
		return m.Topic == kafka.TopicPaymentEvents &&
			string(m.Key) == "pay-1" &&
			m.Headers[kafka.HeaderTraceID] == "trace-1" &&
			m.Headers[kafka.HeaderEventType] == "payment.completed"
	})).Return(nil)
	store.On("MarkProcessed", ctx, "outbox-1").Return(nil)

	require.NoError(t, relay.Publish(ctx, msg))
	pub.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRelay_Publish_SendError(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	pub := new(mockPublisher)
	relay := NewRelay(store, pub, testConfig())

	msg := &Message{ID: "outbox-1", Topic: kafka.TopicPaymentReplies, Key: "corr-1", Payload: []byte(`{}`)}
	sendErr := errors.New("kafka unavailable")

	pub.On("SendMessage", ctx, mock.Anything).Return(sendErr)
	store.On("MarkFailed", ctx, "outbox-1", sendErr).Return(nil)

	err := relay.Publish(ctx, msg)

	assert.ErrorIs(t, err, sendErr)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestRelay_PublishPending(t *testing.T) {
	t.Run("пачка из двух записей", func(t *testing.T) {
		ctx := context.Background()
		store := new(mockStore)
		pub := new(mockPublisher)
		cfg := testConfig()
		relay := NewRelay(store, pub, cfg)

		msgs := []*Message{
			{ID: "outbox-1", Topic: kafka.TopicPaymentEvents, Key: "pay-1", Payload: []byte(`{}`)},
			{ID: "outbox-2", Topic: kafka.TopicPaymentEvents, Key: "pay-2", Payload: []byte(`{}`)},
		}
		store.On("Pending", ctx, cfg.BatchSize).Return(msgs, nil)
		pub.On("SendMessage", ctx, mock.Anything).Return(nil).Times(2)
		store.On("MarkProcessed", ctx, "outbox-1").Return(nil)
		store.On("MarkProcessed", ctx, "outbox-2").Return(nil)

		assert.Equal(t, 2, relay.PublishPending(ctx))
		store.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("dead letter уходит в DLQ", func(t *testing.T) {
		ctx := context.Background()
		store := new(mockStore)
		pub := new(mockPublisher)
		cfg := testConfig()
		relay := NewRelay(store, pub, cfg)

		lastErr := "broker down"
		dead := &Message{
			ID:          "outbox-dead",
			AggregateID: "pay-9",
			Topic:       kafka.TopicPaymentReplies,
			Key:         "corr-9",
			Payload:     []byte(`{}`),
			RetryCount:  5,
			LastError:   &lastErr,
		}
		store.On("Pending", ctx, cfg.BatchSize).Return([]*Message{dead}, nil)
		pub.On("SendMessage", ctx, mock.MatchedBy(func(m *kafka.Message) bool {
			return m.Topic == kafka.TopicDLQ &&
				m.Headers["dlq_original_topic"] == kafka.TopicPaymentReplies &&
				m.Headers["dlq_error"] == "broker down"
		})).Return(nil)
		store.On("MarkProcessed", ctx, "outbox-dead").Return(nil)

		assert.Equal(t, 0, relay.PublishPending(ctx))
		store.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("пустой outbox", func(t *testing.T) {
		ctx := context.Background()
		store := new(mockStore)
		pub := new(mockPublisher)
		relay := NewRelay(store, pub, testConfig())

		store.On("Pending", ctx, mock.AnythingOfType("int")).Return([]*Message{}, nil)

		assert.Zero(t, relay.PublishPending(ctx))
		pub.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})

	t.Run("ошибка чтения", func(t *testing.T) {
		ctx := context.Background()
		store := new(mockStore)
		pub := new(mockPublisher)
		relay := NewRelay(store, pub, testConfig())

		store.On("Pending", ctx, mock.AnythingOfType("int")).Return(nil, errors.New("db down"))

		assert.Zero(t, relay.PublishPending(ctx))
		pub.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})
}

func TestRelay_Run_StopsOnCancel(t *testing.T) {
	store := new(mockStore)
	pub := new(mockPublisher)
	relay := NewRelay(store, pub, testConfig())

	store.On("Pending", mock.Anything, mock.AnythingOfType("int")).Return([]*Message{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Relay не остановился после отмены context")
	}
}

func TestRelay_Cleanup(t *testing.T) {
	tests := []struct {
		name    string
		deleted int64
		err     error
	}{
		{"удалены старые записи", 3, nil},
		{"удалять нечего", 0, nil},
		{"ошибка БД", 0, errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := new(mockStore)
			relay := NewRelay(store, new(mockPublisher), testConfig())

			store.On("DeleteProcessedBefore", ctx, mock.MatchedBy(func(before time.Time) bool {
				return before.Before(time.Now().Add(-time.Hour + time.Minute))
			})).Return(tt.deleted, tt.err)

			assert.NotPanics(t, func() { relay.cleanup(ctx) })
			store.AssertExpectations(t)
		})
	}
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(new(mockStore), new(mockPublisher), RelayConfig{})

	assert.Equal(t, DefaultRelayConfig(), relay.cfg)
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("pay-1", "payment.failed", kafka.TopicPaymentEvents, "pay-1",
		map[string]string{"reason": "declined"}, nil)

	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, AggregatePayment, msg.AggregateType)
	assert.JSONEq(t, `{"reason":"declined"}`, string(msg.Payload))
	assert.False(t, msg.DeadLetter(3))
}
