package mailservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/exp/rand"
	"golang.org/x/time/rate"

	"github.com/sushihentaime/blogthread/internal/common"
)

const (
	maxRetries       = 5
	defaultBaseDelay = 500 * time.Millisecond

	welcomeTemplate = "welcome_email.html"
	commentTemplate = "comment_notification.html"
)

var errEmptyRecipient = errors.New("message has no recipient")

// NewMailService returns a service that sends at most perSecond mails. A perSecond of zero or less disables throttling.
func NewMailService(mb common.MessageConsumer, host, username, password, sender string, port int, perSecond float64, logger *slog.Logger) *MailService {
	return newMailService(mb, NewMailer(host, port, username, password, sender, NewTemplate()), perSecond, logger)
}

func newMailService(mb common.MessageConsumer, m Mailer, perSecond float64, logger MailLogger) *MailService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MailService{
		mb:         mb,
		m:          m,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, 1),
		retryDelay: defaultBaseDelay,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SendWelcomeEmails mails every newly registered user.
func (s *MailService) SendWelcomeEmails() error {
	return s.consume(common.UserCreatedKey, common.UserExchange, common.UserCreatedQueue, decodeWelcome)
}

// SendCommentNotifications mails blog owners about new comments and comment authors about new replies.
func (s *MailService) SendCommentNotifications() error {
	return s.consume(common.CommentCreatedKey, common.BlogExchange, common.CommentCreatedQueue, decodeComment)
}

func decodeWelcome(body []byte) (*envelope, error) {
	var event common.UserCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}

	if event.Email == "" {
		return nil, errEmptyRecipient
	}

	return &envelope{recipient: event.Email, template: welcomeTemplate, data: event}, nil
}

func decodeComment(body []byte) (*envelope, error) {
	var event common.CommentCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}

	if event.Recipient == "" {
		return nil, errEmptyRecipient
	}

	return &envelope{recipient: event.Recipient, template: commentTemplate, data: event}, nil
}

func (s *MailService) consume(key common.BindingKey, exchange common.Exchange, queue common.Queue, decode func([]byte) (*envelope, error)) error {
	msgs, err := s.mb.Consume(key, exchange, queue)
	if err != nil {
		s.logger.Error("could not consume message", slog.String("queue", string(queue)), slog.String("error", err.Error()))
		return fmt.Errorf("could not consume %s: %w", queue, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s.handle(msg, decode)

			case <-s.ctx.Done():
				s.logger.Info("stopping consumer due to context cancellation", slog.String("queue", string(queue)))
				return
			}
		}
	}()

	return nil
}

// handle acks every message it is done with, delivered or not, so a poison message is never redelivered.
func (s *MailService) handle(msg amqp.Delivery, decode func([]byte) (*envelope, error)) {
	env, err := decode(msg.Body)
	if err != nil {
		s.logger.Error("could not decode message", slog.String("error", err.Error()))
		msg.Ack(false)
		return
	}

	if err := s.deliver(env); err != nil {
		s.logger.Error("could not send email", slog.String("email", env.recipient), slog.String("template", env.template), slog.String("error", err.Error()))
	} else {
		s.logger.Info("email sent", slog.String("email", env.recipient), slog.String("template", env.template))
	}

	msg.Ack(false)
}

// deliver retries with exponential backoff and full jitter.
func (s *MailService) deliver(env *envelope) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if werr := s.limiter.Wait(s.ctx); werr != nil {
			return werr
		}

		err = s.m.send(env.recipient, env.data, env.template)
		if err == nil {
			return nil
		}

		delay := time.Duration(rand.Int63n(int64(s.retryDelay) << uint(attempt)))
		s.logger.Info("delaying email", slog.String("email", env.recipient), slog.Int("attempt", attempt), slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", maxRetries, err)
}

// Close stops the consumers and waits for in-flight mails to finish.
func (s *MailService) Close() {
	s.cancel()
	s.wg.Wait()
}
