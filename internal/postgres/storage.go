package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
)

const (
	insertEventQuery = `INSERT INTO archived_events (source, routing_key, payload, payload_json)
VALUES ($1, $2, $3, $4)
RETURNING id`

	getEventsBySourceQuery = `SELECT id, source, routing_key, payload, created_at
FROM archived_events
WHERE source = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
)

type storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*storage, error) {
	var pool *pgxpool.Pool
	var err error

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	err = backoff.Retry(func() error {
		if pool, err = pgxpool.ConnectConfig(ctx, config); err != nil {
			slog.ErrorContext(ctx, "failed to connect to postgres database.. retrying...", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping postgres database connection.. retrying...", "error", err)
			return err
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))

	if err != nil {
		return nil, err
	}

	return &storage{
		pool: pool,
	}, nil
}

func (s *storage) InsertEvent(ctx context.Context, source, routingKey, payload string) (ID int64, err error) {
	err = s.pool.QueryRow(ctx, insertEventQuery, source, routingKey, payload, toJSONB(payload)).Scan(&ID)
	if err != nil {
		logPgError(ctx, "error occurred while inserting archived event", err)
		return 0, err
	}

	return ID, nil
}

func (s *storage) GetEventsBySource(ctx context.Context, source string, limit int32) ([]*domain.ArchivedEvent, error) {
	rows, err := s.pool.Query(ctx, getEventsBySourceQuery, source, limit)
	if err != nil {
		logPgError(ctx, "error occurred while fetching archived events", err)
		return nil, err
	}
	defer rows.Close()

	events := []*domain.ArchivedEvent{}
	for rows.Next() {
		var item archivedEvent
		err = rows.Scan(&item.ID, &item.Source, &item.RoutingKey, &item.Payload, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, convertArchivedEvent(item))
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return nil, errval.ErrNotFound
	}

	return events, nil
}

func (s *storage) Ping(ctx context.Context) (err error) {
	return s.pool.Ping(ctx)
}

func (s *storage) Close() {
	s.pool.Close()
}

type archivedEvent struct {
	ID         int64
	Source     string
	RoutingKey string
	Payload    string
	CreatedAt  pgtype.Timestamptz
}

func convertArchivedEvent(item archivedEvent) *domain.ArchivedEvent {
	return &domain.ArchivedEvent{
		ID:             item.ID,
		Source:         item.Source,
		RoutingKey:     item.RoutingKey,
		Payload:        item.Payload,
		CreatedAtStamp: item.CreatedAt.Time.Unix(),
	}
}

// toJSONB keeps a queryable copy of payloads that are valid JSON; anything else is stored as NULL.
func toJSONB(payload string) pgtype.JSONB {
	if !json.Valid([]byte(payload)) {
		return pgtype.JSONB{Status: pgtype.Null}
	}

	return pgtype.JSONB{Bytes: []byte(payload), Status: pgtype.Present}
}

func logPgError(ctx context.Context, msg string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		slog.ErrorContext(ctx, msg, "error", pgErr.Message, "code", pgErr.Code, "detail", pgErr.Detail)
		return
	}

	slog.ErrorContext(ctx, msg, "error", err)
}
