package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/metrics"
)

const (
	HeartbeatRoutingKey  = "service.heartbeat"
	HeartbeatContentType = "event/heartbeat"
	HeartbeatBody        = "{'event':'heartbeat'}"
	HeartbeatInterval    = 58 * time.Second
)

// heartbeat publishes on its own channel so event traffic never delays it.
type heartbeat struct {
	serviceID string
	exchange  string
	channel   Channel
	interval  time.Duration
	stop      <-chan struct{}
	fatal     chan<- error
	metrics   *metrics.Metrics
}

// run returns when stop is closed or a publish fails. A failed publish is
// reported on fatal: losing the heartbeat is treated as losing the service.
func (h *heartbeat) run() error {
	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-h.stop:
			return nil
		default:
		}

		err := h.publish()
		if err != nil {
			h.metrics.IncError("heartbeat")
			err = fmt.Errorf("%w: %w", errval.ErrHeartbeatLost, err)
			slog.Error("Service heartbeat failure", "service_id", h.serviceID, "error", err.Error())
			select {
			case h.fatal <- err:
			default:
			}
			return err
		}
		slog.Debug("heartbeat!", "service_id", h.serviceID)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.interval)

		select {
		case <-h.stop:
			return nil
		case <-timer.C:
		}
	}
}

func (h *heartbeat) publish() error {
	err := h.channel.PublishWithContext(
		context.Background(),
		h.exchange,          // exchange
		HeartbeatRoutingKey, // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType: HeartbeatContentType,
			AppId:       h.serviceID,
			Body:        []byte(HeartbeatBody),
		})
	if err != nil {
		return wrapPublishError("publish heartbeat", err)
	}

	h.metrics.IncHeartbeatsPublished()
	return nil
}
