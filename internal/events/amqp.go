package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives lifecycle events when none is configured.
const DefaultExchange = "agentdesk.events"

// AMQPConfig configures an AMQPPublisher.
type AMQPConfig struct {
	URL         string
	Exchange    string
	AppID       string
	DialTimeout time.Duration
}

// AMQPPublisher publishes events to a durable topic exchange.
type AMQPPublisher struct {
	config AMQPConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(ctx context.Context, config AMQPConfig, logger *slog.Logger) (*AMQPPublisher, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if config.Exchange == "" {
		config.Exchange = DefaultExchange
	}
	if config.AppID == "" {
		config.AppID = "agentdesk"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	host := ""
	if u, err := url.Parse(config.URL); err == nil {
		host = u.Host
	}
	logger.Info("connecting to amqp broker", "host", host, "exchange", config.Exchange)

	timeout := config.DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("connect amqp: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(config.URL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{config: config, logger: logger, conn: conn, ch: ch}, nil
}

// Publish sends env as a persistent JSON message routed by its type.
func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	if env.Meta.ID == "" {
		return fmt.Errorf("publish event: envelope id is required")
	}
	if env.Meta.Time.IsZero() {
		env.Meta.Time = time.Now().UTC()
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return fmt.Errorf("publish event: publisher closed")
	}
	err = p.ch.PublishWithContext(ctx, p.config.Exchange, string(env.Meta.Type), false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          string(env.Meta.Type),
		Timestamp:     env.Meta.Time,
		AppId:         p.config.AppID,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	_ = p.ch.Close()
	err := p.conn.Close()
	p.ch, p.conn = nil, nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close amqp: %w", err)
	}
	return nil
}
