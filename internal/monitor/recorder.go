package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/internal/rabbitmq"
)

// DefaultTTL tolerates one missed heartbeat before a service is reported dead.
const DefaultTTL = 2*rabbitmq.HeartbeatInterval + 4*time.Second

type Liveness struct {
	Service       string `json:"service"`
	Alive         bool   `json:"alive"`
	LastSeenStamp int64  `json:"last_seen_stamp"`
}

// HeartbeatRecorder turns heartbeat deliveries into liveness records keyed by the publishing service.
type HeartbeatRecorder struct {
	store domain.LivenessStore
	ttl   time.Duration
}

func NewHeartbeatRecorder(store domain.LivenessStore, ttl time.Duration) *HeartbeatRecorder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &HeartbeatRecorder{
		store: store,
		ttl:   ttl,
	}
}

func (r *HeartbeatRecorder) ConsumeEvent(message string) error {
	slog.Warn("Heartbeat received without publisher information, ignoring it", "body", message)
	return nil
}

// ConsumeFrom never fails: a store outage must not stop heartbeat consumption,
// the next heartbeat refreshes the record.
func (r *HeartbeatRecorder) ConsumeFrom(source, routingKey, message string) error {
	if routingKey != rabbitmq.HeartbeatRoutingKey {
		slog.Debug("Ignoring non-heartbeat message", "routing_key", routingKey, "source", source)
		return nil
	}
	if source == "" {
		return r.ConsumeEvent(message)
	}

	err := r.store.MarkAlive(source, r.ttl)
	if err != nil {
		slog.Error("Error occurred while recording heartbeat", "source", source, "error", err.Error())
		return nil
	}
	slog.Debug("Heartbeat recorded", "source", source, "ttl", r.ttl.String())

	return nil
}

func (r *HeartbeatRecorder) Liveness(service string) (Liveness, error) {
	lastSeen, found, err := r.store.LastSeen(service)
	if err != nil {
		return Liveness{}, fmt.Errorf("read liveness of %q: %w", service, err)
	}
	if !found {
		return Liveness{Service: service}, errval.ErrNotFound
	}

	return Liveness{
		Service:       service,
		Alive:         true,
		LastSeenStamp: lastSeen.Unix(),
	}, nil
}
