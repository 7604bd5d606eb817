package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sf7293/event-connector/internal/bootstrap"
	"github.com/sf7293/event-connector/internal/domain"
	"github.com/sf7293/event-connector/internal/errval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	events    []*domain.ArchivedEvent
	err       error
	pingErr   error
	lastLimit int32
}

func (a *fakeArchive) Ping(ctx context.Context) error { return a.pingErr }

func (a *fakeArchive) InsertEvent(ctx context.Context, source, routingKey, payload string) (int64, error) {
	return 1, nil
}

func (a *fakeArchive) GetEventsBySource(ctx context.Context, source string, limit int32) ([]*domain.ArchivedEvent, error) {
	a.lastLimit = limit
	if a.err != nil {
		return nil, a.err
	}
	return a.events, nil
}

type fakeBroker struct {
	healthy bool
}

func (b fakeBroker) IsHealthy() bool {
	return b.healthy
}

func newTestRouter(t *testing.T, archive *fakeArchive, broker fakeBroker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, _, err := bootstrap.NewMetrics()
	require.NoError(t, err)

	return setupHTTPServer(archive, broker, registry)
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestGetEventsBySource(t *testing.T) {
	archive := &fakeArchive{events: []*domain.ArchivedEvent{
		{ID: 2, Source: "orders-svc", RoutingKey: "orders-svc.created", Payload: `{"id":"2"}`, CreatedAtStamp: 1700000000},
	}}
	router := newTestRouter(t, archive, fakeBroker{healthy: true})

	w := get(router, "/events/orders-svc?limit=10")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(10), archive.lastLimit)
	assert.JSONEq(t, `{"events":[{"id":2,"source":"orders-svc","routing_key":"orders-svc.created","payload":"{\"id\":\"2\"}","created_at_stamp":1700000000}]}`, w.Body.String())
}

func TestGetEventsBySource_Errors(t *testing.T) {
	archive := &fakeArchive{err: errval.ErrNotFound}
	router := newTestRouter(t, archive, fakeBroker{healthy: true})

	assert.Equal(t, http.StatusBadRequest, get(router, "/events/orders-svc?limit=ten").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/events/orders-svc").Code)

	archive.err = errors.New("connection reset")
	assert.Equal(t, http.StatusInternalServerError, get(router, "/events/orders-svc").Code)
}

func TestLiveness(t *testing.T) {
	archive := &fakeArchive{}
	router := newTestRouter(t, archive, fakeBroker{healthy: true})
	assert.Equal(t, http.StatusOK, get(router, "/liveness").Code)

	archive.pingErr = errors.New("postgres down")
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/liveness").Code)

	router = newTestRouter(t, &fakeArchive{}, fakeBroker{healthy: false})
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/liveness").Code)
}
