package server

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/sf7293/event-connector/pkg/event"
)

const maxArchivedEventsLimit = 500

// Outbound routing keys are dot-delimited words; wildcards only make sense in bindings.
var publishableRoutingKey = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

func IsPublishableRoutingKey(routingKey string) bool {
	return publishableRoutingKey.MatchString(routingKey)
}

type ServerLogic struct {
	producer domain.EventSubmitter
}

func NewServerLogic(producer domain.EventSubmitter) *ServerLogic {
	return &ServerLogic{
		producer: producer,
	}
}

// SubmitEvent hands the event to the producer; publication happens asynchronously.
func (s *ServerLogic) SubmitEvent(ctx context.Context, req domain.RouterRequestSubmitEvent) {
	s.producer.Submit(event.NewJSON(req.Name, req.Payload), req.RoutingKey)
	slog.InfoContext(ctx, "Event is submitted to producer", "name", req.Name, "routing_key", req.RoutingKey)
}

type ArchiveLogic struct {
	archive domain.EventArchive
}

func NewArchiveLogic(archive domain.EventArchive) *ArchiveLogic {
	return &ArchiveLogic{
		archive: archive,
	}
}

func (a *ArchiveLogic) GetEventsBySource(ctx context.Context, source string, limit int32) (events []*domain.ArchivedEvent, err error) {
	if limit <= 0 || limit > maxArchivedEventsLimit {
		limit = maxArchivedEventsLimit
	}

	events, err = a.archive.GetEventsBySource(ctx, source, limit)
	if err != nil {
		if err == errval.ErrNotFound {
			slog.Info("no archived events found for the given source", "source", source)
			return nil, err
		}

		slog.ErrorContext(ctx, "error occurred while calling archive.GetEventsBySource", "error", err)
		return nil, errval.ErrInternal
	}

	return events, nil
}
