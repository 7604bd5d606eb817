package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
)

var exchangeKinds = map[string]bool{
	amqp.ExchangeDirect:  true,
	amqp.ExchangeFanout:  true,
	amqp.ExchangeTopic:   true,
	amqp.ExchangeHeaders: true,
}

func validateExchange(exchange domain.Exchange) error {
	if exchange.Name == "" {
		return fmt.Errorf("%w: empty name", errval.ErrInvalidExchange)
	}
	if !exchangeKinds[exchange.Kind] {
		return fmt.Errorf("%w: unsupported type %q", errval.ErrInvalidExchange, exchange.Kind)
	}

	return nil
}

// declareExchange is idempotent on the broker for an identical name and type.
func declareExchange(ch Channel, exchange domain.Exchange) error {
	err := ch.ExchangeDeclare(
		exchange.Name, // name
		exchange.Kind, // type
		false,         // durable
		false,         // delete when unused
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %q: %w", exchange.Name, err)
	}

	return nil
}

func closeChannel(ch Channel) {
	if ch == nil {
		return
	}

	err := ch.Close()
	if err != nil && err != amqp.ErrClosed {
		slog.Error("error occurred while closing channel", "error", err.Error())
	}
}
