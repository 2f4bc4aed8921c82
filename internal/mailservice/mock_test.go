package mailservice

import (
	"bytes"
	"errors"
	"sync"

	"github.com/go-mail/mail/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"

	"github.com/sushihentaime/blogthread/internal/common"
)

type MockTemplate struct {
	mock.Mock
}

func (m *MockTemplate) ParseTemplate(name string, data any) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer, error) {
	args := m.Called(name, data)
	if args.Get(0) == nil {
		return nil, nil, nil, args.Error(3)
	}
	return args.Get(0).(*bytes.Buffer), args.Get(1).(*bytes.Buffer), args.Get(2).(*bytes.Buffer), args.Error(3)
}

type MockDialer struct {
	mock.Mock
}

func (d *MockDialer) DialAndSend(m ...*mail.Message) error {
	args := d.Called(m)
	return args.Error(0)
}

type sentMail struct {
	recipient string
	template  string
	data      any
}

// MockMailer fails the first failures sends and records every successful one on sent.
type MockMailer struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     chan sentMail
}

func newMockMailer(failures int) *MockMailer {
	return &MockMailer{failures: failures, sent: make(chan sentMail, 10)}
}

func (m *MockMailer) send(recipient string, data any, templateFile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.attempts <= m.failures {
		return errors.New("smtp unavailable")
	}

	m.sent <- sentMail{recipient: recipient, template: templateFile, data: data}
	return nil
}

func (m *MockMailer) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// MockMessageConsumer hands out a channel per queue that tests feed with deliveries.
type MockMessageConsumer struct {
	mock.Mock
	deliveries chan amqp.Delivery
}

func newMockMessageConsumer() *MockMessageConsumer {
	return &MockMessageConsumer{deliveries: make(chan amqp.Delivery, 10)}
}

func (m *MockMessageConsumer) Consume(key common.BindingKey, exchange common.Exchange, queue common.Queue) (<-chan amqp.Delivery, error) {
	args := m.Called(key, exchange, queue)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return m.deliveries, nil
}

// ackRecorder satisfies amqp.Acknowledger so tests can see which deliveries were acked.
type ackRecorder struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return nil
}

func (a *ackRecorder) Acked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...)
}
