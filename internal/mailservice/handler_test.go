package mailservice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushihentaime/blogthread/internal/common"
)

func setupMailService(t *testing.T, mailer *MockMailer) (*MailService, *MockMessageConsumer, *ackRecorder) {
	t.Helper()

	mc := newMockMessageConsumer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := newMailService(mc, mailer, 0, logger)
	s.retryDelay = time.Millisecond

	t.Cleanup(s.Close)

	return s, mc, &ackRecorder{}
}

func delivery(t *testing.T, acks *ackRecorder, tag uint64, v any) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)

	return amqp.Delivery{Acknowledger: acks, DeliveryTag: tag, Body: body}
}

func waitForSent(t *testing.T, mailer *MockMailer) sentMail {
	t.Helper()

	select {
	case m := <-mailer.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail")
		return sentMail{}
	}
}

func TestSendWelcomeEmails(t *testing.T) {
	mailer := newMockMailer(0)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(nil)
	require.NoError(t, s.SendWelcomeEmails())

	mc.deliveries <- delivery(t, acks, 1, common.UserCreatedEvent{Email: "test@example.com"})

	sent := waitForSent(t, mailer)
	assert.Equal(t, "test@example.com", sent.recipient)
	assert.Equal(t, welcomeTemplate, sent.template)
	assert.Equal(t, common.UserCreatedEvent{Email: "test@example.com"}, sent.data)

	assert.Eventually(t, func() bool { return len(acks.Acked()) == 1 }, time.Second, 10*time.Millisecond)
	mc.AssertExpectations(t)
}

func TestSendCommentNotifications(t *testing.T) {
	mailer := newMockMailer(0)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.CommentCreatedKey, common.BlogExchange, common.CommentCreatedQueue).Return(nil)
	require.NoError(t, s.SendCommentNotifications())

	event := common.CommentCreatedEvent{
		Kind:      "reply",
		Recipient: "author@example.com",
		Author:    "replier@example.com",
		BlogID:    7,
		BlogTitle: "Go",
		Content:   "agreed",
	}
	mc.deliveries <- delivery(t, acks, 1, event)

	sent := waitForSent(t, mailer)
	assert.Equal(t, "author@example.com", sent.recipient)
	assert.Equal(t, commentTemplate, sent.template)
	assert.Equal(t, event, sent.data)
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	mailer := newMockMailer(2)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(nil)
	require.NoError(t, s.SendWelcomeEmails())

	mc.deliveries <- delivery(t, acks, 1, common.UserCreatedEvent{Email: "test@example.com"})

	waitForSent(t, mailer)
	assert.Equal(t, 3, mailer.Attempts())
}

func TestSendGivesUpAndAcks(t *testing.T) {
	mailer := newMockMailer(maxRetries)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(nil)
	require.NoError(t, s.SendWelcomeEmails())

	mc.deliveries <- delivery(t, acks, 1, common.UserCreatedEvent{Email: "test@example.com"})

	assert.Eventually(t, func() bool { return len(acks.Acked()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, maxRetries, mailer.Attempts())
}

func TestUndecodableMessagesAreAcked(t *testing.T) {
	mailer := newMockMailer(0)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.CommentCreatedKey, common.BlogExchange, common.CommentCreatedQueue).Return(nil)
	require.NoError(t, s.SendCommentNotifications())

	mc.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte("not json")}
	mc.deliveries <- delivery(t, acks, 2, common.CommentCreatedEvent{Kind: "comment"})

	assert.Eventually(t, func() bool { return len(acks.Acked()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, mailer.Attempts())
}

func TestConsumeError(t *testing.T) {
	mailer := newMockMailer(0)
	s, mc, _ := setupMailService(t, mailer)

	mc.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(errors.New("channel closed"))

	err := s.SendWelcomeEmails()
	assert.ErrorContains(t, err, "channel closed")
}

func TestCloseStopsConsumers(t *testing.T) {
	mailer := newMockMailer(0)
	s, mc, acks := setupMailService(t, mailer)

	mc.On("Consume", common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue).Return(nil)
	require.NoError(t, s.SendWelcomeEmails())

	s.Close()

	mc.deliveries <- delivery(t, acks, 1, common.UserCreatedEvent{Email: "test@example.com"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, mailer.Attempts())
}
