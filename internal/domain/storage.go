package domain

import (
	"context"
	"time"
)

type ArchivedEvent struct {
	ID             int64  `json:"id"`
	Source         string `json:"source"`
	RoutingKey     string `json:"routing_key"`
	Payload        string `json:"payload"`
	CreatedAtStamp int64  `json:"created_at_stamp"`
}

type EventArchive interface {
	Ping(ctx context.Context) (err error)
	InsertEvent(ctx context.Context, source, routingKey, payload string) (ID int64, err error)
	GetEventsBySource(ctx context.Context, source string, limit int32) ([]*ArchivedEvent, error)
}

type LivenessStore interface {
	Ping(ctx context.Context) (err error)
	MarkAlive(source string, ttl time.Duration) (err error)
	LastSeen(source string) (lastSeen time.Time, found bool, err error)
	Close() error
}
