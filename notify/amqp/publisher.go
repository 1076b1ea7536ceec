// Package amqp publishes notify messages to a RabbitMQ queue for an external
// mail worker to deliver.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/notify"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultQueue is the queue declared when Config.Queue is empty.
const DefaultQueue = "email.send"

// Config locates the broker.
type Config struct {
	URL   string
	Queue string
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements notify.Sender on top of one AMQP channel.
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	log   *zap.Logger
	now   func() time.Time

	mu sync.Mutex
}

// Dial connects, opens a channel and declares a durable queue.
func Dial(cfg Config, log *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		log.Error("rabbitmq dial failed", zap.Error(err))
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.Error("rabbitmq channel open failed", zap.Error(err))
		return nil, err
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		log.Error("rabbitmq queue declare failed", zap.String("queue", cfg.Queue), zap.Error(err))
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: cfg.Queue, log: log, now: time.Now}, nil
}

// Send publishes msg as a persistent JSON message on the default exchange.
func (p *Publisher) Send(ctx context.Context, msg notify.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         string(msg.Type),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("queue", p.queue), zap.Error(err))
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
