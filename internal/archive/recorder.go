package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sf7293/event-connector/internal/domain"
)

const defaultInsertTimeout = 5 * time.Second

// Recorder stores every consumed event. A failed insert is returned to the
// consumer, which stops consuming rather than dropping events silently.
// Inserts outlive cancellation of ctx so an event in flight at shutdown is
// still stored; each insert is bounded by the timeout.
type Recorder struct {
	ctx     context.Context
	archive domain.EventArchive
	timeout time.Duration
}

func NewRecorder(ctx context.Context, archive domain.EventArchive, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = defaultInsertTimeout
	}

	return &Recorder{
		ctx:     context.WithoutCancel(ctx),
		archive: archive,
		timeout: timeout,
	}
}

func (r *Recorder) ConsumeEvent(message string) error {
	return r.ConsumeFrom("", "", message)
}

func (r *Recorder) ConsumeFrom(source, routingKey, message string) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	id, err := r.archive.InsertEvent(ctx, source, routingKey, message)
	if err != nil {
		return fmt.Errorf("archive event %q from %q: %w", routingKey, source, err)
	}
	slog.Info("Event is archived", "id", id, "source", source, "routing_key", routingKey)

	return nil
}
