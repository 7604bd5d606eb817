package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sf7293/event-connector/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insertCall struct {
	source     string
	routingKey string
	payload    string
	deadline   bool
}

type fakeArchive struct {
	calls []insertCall
	err   error
}

// ctxArchive stands in for a driver that aborts on a cancelled context.
type ctxArchive struct {
	fakeArchive
}

func (a *ctxArchive) InsertEvent(ctx context.Context, source, routingKey, payload string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.fakeArchive.InsertEvent(ctx, source, routingKey, payload)
}

func (a *fakeArchive) Ping(ctx context.Context) error { return nil }

func (a *fakeArchive) InsertEvent(ctx context.Context, source, routingKey, payload string) (int64, error) {
	if a.err != nil {
		return 0, a.err
	}
	_, hasDeadline := ctx.Deadline()
	a.calls = append(a.calls, insertCall{source: source, routingKey: routingKey, payload: payload, deadline: hasDeadline})
	return int64(len(a.calls)), nil
}

func (a *fakeArchive) GetEventsBySource(ctx context.Context, source string, limit int32) ([]*domain.ArchivedEvent, error) {
	return nil, nil
}

var _ domain.SourcedHandler = (*Recorder)(nil)

func TestRecorder_ArchivesWithMetadata(t *testing.T) {
	archive := &fakeArchive{}
	r := NewRecorder(context.Background(), archive, time.Second)

	require.NoError(t, r.ConsumeFrom("orders-svc", "orders-svc.created", `{"id":1}`))
	require.NoError(t, r.ConsumeEvent("plain"))

	assert.Equal(t, []insertCall{
		{source: "orders-svc", routingKey: "orders-svc.created", payload: `{"id":1}`, deadline: true},
		{source: "", routingKey: "", payload: "plain", deadline: true},
	}, archive.calls)
}

func TestRecorder_PropagatesFailure(t *testing.T) {
	archive := &fakeArchive{err: errors.New("relation does not exist")}
	r := NewRecorder(context.Background(), archive, 0)

	err := r.ConsumeFrom("orders-svc", "orders-svc.created", "{}")

	assert.ErrorIs(t, err, archive.err)
	assert.Equal(t, defaultInsertTimeout, r.timeout)
}

func TestRecorder_InsertSurvivesShutdownCancellation(t *testing.T) {
	archive := &ctxArchive{}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRecorder(ctx, archive, time.Second)
	cancel()

	require.NoError(t, r.ConsumeFrom("orders-svc", "orders-svc.created", `{"id":1}`))
	require.Len(t, archive.calls, 1)
	assert.True(t, archive.calls[0].deadline)
}
