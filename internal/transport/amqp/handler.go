package amqp

import (
	"context"
	"errors"
	"time"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/usecase/adapters"
	"wa-blaster/pkg/apperr"
	"wa-blaster/pkg/logg"
	"wa-blaster/pkg/tracing"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	handlerName    = "AMQPHandler"
	handlerTracer  = "transport.amqp"
	publishTimeout = 10 * time.Second
)

// Destination is where a reply is published. An empty exchange with a
// queue name as routing key addresses the queue directly.
type Destination struct {
	Exchange   string
	RoutingKey string
}

type Publisher interface {
	Publish(ctx context.Context, dest Destination, reply Envelope[entity.Result]) error
}

// Handler turns deliveries into dispatched commands and publishes one
// reply per command.
type Handler struct {
	commands  adapters.CommandService
	publisher Publisher
	results   Destination
	logger    *zap.Logger
	tracer    trace.Tracer
}

type HandlerParams struct {
	Commands  adapters.CommandService
	Publisher Publisher
	Exchange  string
	ResultKey string
	Logger    *zap.Logger
}

func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		commands:  params.Commands,
		publisher: params.Publisher,
		results:   Destination{Exchange: params.Exchange, RoutingKey: params.ResultKey},
		logger:    params.Logger.With(zap.String(logg.Layer, handlerName)),
		tracer:    otel.Tracer(handlerTracer),
	}
}

func (h *Handler) Handle(ctx context.Context, d amqp091.Delivery) (err error) {
	const op = "Handle"
	logger := h.logger.With(
		zap.String(logg.Operation, op),
		zap.String("routing_key", d.RoutingKey),
		zap.String("message_id", d.MessageId))

	ctx, step := tracing.StartSpan(ctx, h.tracer, logger, op,
		attribute.String("routing_key", d.RoutingKey))
	defer func() {
		step.End(err)
	}()

	// Acked on receipt: a redelivered send command would message its
	// recipients twice.
	if ackErr := d.Ack(false); ackErr != nil {
		logger.Warn("Failed to ack delivery", zap.Error(ackErr))
	}

	cmd, err := DecodeCommand(d)
	if err != nil {
		logger.Warn("Dropping undecodable message", zap.Error(err))
		return err
	}

	logger = logger.With(zap.String(logg.CommandID, cmd.ID), zap.String(logg.Command, string(cmd.Type)))
	logger.Info("Command received")

	result := h.commands.Dispatch(ctx, cmd)

	dest := h.results
	if d.ReplyTo != "" {
		dest = Destination{RoutingKey: d.ReplyTo}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(pubCtx, dest, NewReply(cmd, result)); err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "publish_failed",
			apperr.MetaStage:  apperr.StageTransport,
		})
	}

	logger.Info("Reply published", zap.Bool("ok", result.OK), zap.String("routing_key", dest.RoutingKey))

	return nil
}

// IsPoison reports whether err came from an undecodable message.
func IsPoison(err error) bool {
	return errors.Is(err, ErrPoison)
}
