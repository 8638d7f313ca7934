package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"wa-blaster/internal/entity"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const producer = "wa-blaster"

// ErrPoison marks a message that can never be processed, such as a body
// that is not a command envelope.
var ErrPoison = errors.New("poison message")

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

// DecodeCommand reads an inbound command envelope. The command type falls
// back to the AMQP type property and the id to the message id.
func DecodeCommand(d amqp091.Delivery) (entity.Command, error) {
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return entity.Command{}, fmt.Errorf("%w: %v", ErrPoison, err)
	}

	typ := env.Meta.Type
	if typ == "" {
		typ = d.Type
	}

	if typ == "" {
		return entity.Command{}, fmt.Errorf("%w: missing command type", ErrPoison)
	}

	id := env.Meta.ID
	if id == "" {
		id = d.MessageId
	}

	if id == "" {
		id = uuid.NewString()
	}

	return entity.Command{ID: id, Type: entity.CommandType(typ), Data: env.Data}, nil
}

// NewReply wraps result for publishing. The reply correlates to the
// command id.
func NewReply(cmd entity.Command, result entity.Result) Envelope[entity.Result] {
	correlationID := cmd.ID
	name := producer

	return Envelope[entity.Result]{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: &correlationID,
			Producer:      &name,
			Time:          time.Now().UTC(),
			Type:          string(cmd.Type) + ".result",
		},
		Data: result,
	}
}
