package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sf7293/event-connector/internal/bootstrap"
	"github.com/sf7293/event-connector/internal/monitor"
	"github.com/sf7293/event-connector/internal/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	seen    map[string]time.Time
	pingErr error
	readErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{seen: map[string]time.Time{}}
}

func (s *memoryStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *memoryStore) MarkAlive(source string, ttl time.Duration) error {
	s.seen[source] = time.Now()
	return nil
}

func (s *memoryStore) LastSeen(source string) (time.Time, bool, error) {
	if s.readErr != nil {
		return time.Time{}, false, s.readErr
	}
	at, ok := s.seen[source]
	return at, ok, nil
}

func (s *memoryStore) Close() error { return nil }

type fakeBroker struct {
	healthy bool
}

func (b fakeBroker) IsHealthy() bool {
	return b.healthy
}

func newTestRouter(t *testing.T, store *memoryStore, broker fakeBroker) (*gin.Engine, *monitor.HeartbeatRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, _, err := bootstrap.NewMetrics()
	require.NoError(t, err)

	recorder := monitor.NewHeartbeatRecorder(store, time.Minute)
	return setupHTTPServer(recorder, store, broker, registry), recorder
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestServiceLiveness(t *testing.T) {
	store := newMemoryStore()
	router, recorder := newTestRouter(t, store, fakeBroker{healthy: true})

	w := get(router, "/services/orders-svc/liveness")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"service":"orders-svc","alive":false,"last_seen_stamp":0}`, w.Body.String())

	require.NoError(t, recorder.ConsumeFrom("orders-svc", rabbitmq.HeartbeatRoutingKey, string(rabbitmq.HeartbeatBody)))

	w = get(router, "/services/orders-svc/liveness")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive":true`)
}

func TestServiceLiveness_StoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.readErr = errors.New("connection refused")
	router, _ := newTestRouter(t, store, fakeBroker{healthy: true})

	w := get(router, "/services/orders-svc/liveness")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLiveness(t *testing.T) {
	store := newMemoryStore()
	router, _ := newTestRouter(t, store, fakeBroker{healthy: true})
	assert.Equal(t, http.StatusOK, get(router, "/liveness").Code)

	store.pingErr = errors.New("redis down")
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/liveness").Code)

	router, _ = newTestRouter(t, newMemoryStore(), fakeBroker{healthy: false})
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/liveness").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, newMemoryStore(), fakeBroker{healthy: true})

	w := get(router, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "connector_consumer_deliveries_total")
}
