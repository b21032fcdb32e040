/*
Package messaging connects the aggregator to RabbitMQ.

PURPOSE:
  Site systems publish progress events to a durable queue. The consumer
  records or reverses them through budget.Aggregator and publishes one
  RecomputeNotice per touched month.

TOPOLOGY:
  exchange  <AMQP_EXCHANGE>  direct, durable
  queue     <AMQP_QUEUE>     durable, bound with routing key = queue name
  notices   routing key "recompute" on the same exchange

ACK POLICY:
  - malformed JSON or a rejected event (client error, conflict, unknown
    stage): nack without requeue
  - anything else (store failure): nack with requeue
*/
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// NoticeRoutingKey is used for RecomputeNotice publications.
const NoticeRoutingKey = "recompute"

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	logger       *slog.Logger
}

func NewClient(url, exchangeName, queueName string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.With("component", "amqp"),
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return client, nil
}

// DialWithRetry retries NewClient with exponential backoff until it
// succeeds, attempts run out or ctx ends.
func DialWithRetry(ctx context.Context, url, exchangeName, queueName string, attempts int, logger *slog.Logger) (*Client, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		client, err := NewClient(url, exchangeName, queueName, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if !isConnectionError(err) {
			return nil, err
		}
		wait := exponentialBackoff(attempt)
		if logger != nil {
			logger.Warn("AMQP connection failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("AMQP unavailable after %d attempts: %w", attempts, lastErr)
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishProgress enqueues a progress message on the consumer's queue.
func (c *Client) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.publish(ctx, c.queueName, body)
}

// PublishRecompute implements Notifier.
func (c *Client) PublishRecompute(ctx context.Context, notice *RecomputeNotice) error {
	body, err := notice.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := c.publish(ctx, NoticeRoutingKey, body); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "published recompute notice",
		"stage_id", notice.StageID, "month_key", notice.MonthKey, "action", notice.Action)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Consume feeds progress messages to h until ctx ends or the channel closes.
func (c *Client) Consume(ctx context.Context, h *Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "consuming progress messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.deliver(ctx, h, delivery)
		}
	}
}

func (c *Client) deliver(ctx context.Context, h *Handler, d amqp091.Delivery) {
	msg, err := ProgressMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to decode progress message", "error", err)
		d.Nack(false, false)
		return
	}

	if err := h.Handle(ctx, msg); err != nil {
		requeue := !isPermanent(err)
		c.logger.ErrorContext(ctx, "failed to handle progress message",
			"action", msg.Action, "error", err, "requeue", requeue)
		d.Nack(false, requeue)
		return
	}
	d.Ack(false)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff doubles from one second, capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "connection closed", "eof", "no such host", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
