package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	"wa-blaster/internal/config"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/usecase"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	clientName    = "AMQPClient"
	baseBackoff   = time.Second
	jitterPercent = 25
)

// Client consumes commands from the command queue and publishes replies.
// It redials with capped, jittered backoff when the connection drops.
type Client struct {
	cfg     *config.AMQPConfig
	handler *Handler
	dial    func(url string) (*amqp091.Connection, error)
	logger  *zap.Logger

	mu  sync.Mutex
	pub *amqp091.Channel
}

type Params struct {
	fx.In

	Config  *config.Config
	Usecase *usecase.Service
	Logger  *zap.Logger
}

func NewClient(params Params) *Client {
	cfg := params.Config.AMQPConfig

	c := &Client{
		cfg:    cfg,
		dial:   amqp091.Dial,
		logger: params.Logger.With(zap.String(logg.Layer, clientName)),
	}

	c.handler = NewHandler(HandlerParams{
		Commands:  params.Usecase.Commands,
		Publisher: c,
		Exchange:  cfg.Exchange,
		ResultKey: cfg.ResultRoutingKey,
		Logger:    params.Logger,
	})

	return c
}

// Enabled reports whether a broker URL is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// Run consumes until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	const op = "Run"
	logger := c.logger.With(zap.String(logg.Operation, op))

	maxBackoff := seconds(c.cfg.ReconnectCapSecs, 30)
	backoff := baseBackoff

	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if connected {
			backoff = baseBackoff
		}

		wait := jitteredDelay(backoff, maxBackoff, jitterPercent)
		logger.Error("AMQP session ended, reconnecting", zap.Error(err), zap.Duration("retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// session runs one connection until it closes. connected reports whether
// the topology was declared and consuming began.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return false, err
	}

	pub, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open publish channel: %w", err)
	}

	c.setPublisher(pub)
	defer c.setPublisher(nil)

	msgs, err := ch.Consume(c.cfg.CommandQueue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))

	c.logger.Info("Consuming commands",
		zap.String("queue", c.cfg.CommandQueue),
		zap.String("binding", c.cfg.CommandRoutingKey),
		zap.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()

		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return true, errors.New("connection closed")
			}

			return true, amqpErr

		case d, ok := <-msgs:
			if !ok {
				return true, errors.New("delivery channel closed")
			}

			if err := c.handler.Handle(ctx, d); err != nil && !IsPoison(err) {
				c.logger.Error("Command handling failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) declareTopology(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	if _, err := ch.QueueDeclare(c.cfg.CommandQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(c.cfg.CommandQueue, c.cfg.CommandRoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

func (c *Client) setPublisher(ch *amqp091.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pub != nil && c.pub != ch {
		_ = c.pub.Close()
	}

	c.pub = ch
}

// Publish sends reply as persistent JSON.
func (c *Client) Publish(ctx context.Context, dest Destination, reply Envelope[entity.Result]) error {
	const op = "Publish"

	body, err := json.Marshal(reply)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaStage: apperr.StageTransport,
		})
	}

	correlationID := ""
	if reply.Meta.CorrelationID != nil {
		correlationID = *reply.Meta.CorrelationID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pub == nil {
		return apperr.WrapErrorWithReason(op, apperr.CodeUnavailable, "not_connected")
	}

	return c.pub.PublishWithContext(ctx, dest.Exchange, dest.RoutingKey, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     reply.Meta.ID,
		CorrelationId: correlationID,
		Timestamp:     reply.Meta.Time,
		Type:          reply.Meta.Type,
		Body:          body,
	})
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Second
	}

	return time.Duration(v) * time.Second
}

// jitteredDelay spreads base by ±pct percent and caps the result.
func jitteredDelay(base, limit time.Duration, pct int) time.Duration {
	delta := (rand.Float64()*2 - 1) * float64(pct) / 100
	wait := time.Duration(float64(base) * (1 + delta))

	if wait <= 0 {
		wait = base
	}

	return min(wait, limit)
}
