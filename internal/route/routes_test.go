package route

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeagent/internal/config"
	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
	"edgeagent/internal/repository/sqlite"
	"edgeagent/internal/service/delivery"
	"edgeagent/internal/service/transport/ws"
)

type testServer struct {
	handler http.Handler
	tracker *delivery.Tracker
	cfg     *config.Config
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "routes_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	cfg := config.Default()
	cfg.LogDirectory = filepath.Join(tempDir, "logs")
	cfg.StatusToken = token

	log, err := logger.NewLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(log.Close)

	db, err := sqlite.New(filepath.Join(tempDir, "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewDeliveryRepository(db)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tracker := delivery.NewTracker(log, m, nil, 0)
	hub := ws.NewHub(4, log, m)
	t.Cleanup(hub.Close)

	require.NoError(t, repo.InsertBatch([]model.Delivery{{
		Context: 1, MessageID: "old", Channel: "temperatureOutput", Status: model.StatusOK,
		DispatchedAt: time.Unix(100, 0), SettledAt: time.Unix(101, 0),
	}}))

	h := SetupRoutes(Deps{
		Config:   cfg,
		Logger:   log,
		Status:   tracker,
		Journal:  repo,
		Hub:      hub,
		Gatherer: reg,
		Started:  time.Now(),
	})
	return &testServer{handler: h, tracker: tracker, cfg: cfg}
}

func (s *testServer) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsOpen(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestTokenRequired(t *testing.T) {
	s := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/deliveries", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/deliveries", "wrong").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/deliveries", "secret").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/deliveries?token=secret", "").Code)
}

func TestDeliveriesReport(t *testing.T) {
	s := newTestServer(t, "")
	msg := &dto.Message{ID: "m1", Payload: []byte(`{}`)}
	first := s.tracker.BeginSend(msg, "temperatureOutput")
	s.tracker.BeginSend(msg, "temperatureOutput")
	s.tracker.OnConfirmation(first, dto.Result{Status: model.StatusOK})

	rec := s.do(http.MethodGet, "/api/deliveries?recent=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report dto.DeliveryReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, uint64(2), report.Counters.Sent)
	assert.Equal(t, uint64(1), report.Counters.Confirmed)
	require.Len(t, report.Pending, 1)
	assert.Equal(t, uint64(2), report.Pending[0].Context)
	require.NotNil(t, report.Journal)
	assert.Equal(t, 1, report.Journal.Total)
	require.Len(t, report.Recent, 1)
	assert.Equal(t, "old", report.Recent[0].MessageID)
}

func TestDeliveriesRejectsBadLimit(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/deliveries?recent=abc", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	s.tracker.BeginSend(&dto.Message{ID: "m"}, "out")

	rec := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "edgeagent_delivery_sent_total 1")
}

func TestLogEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodGet, "/logs/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodGet, "/logs/info/clear", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/logs/warning/clear", "").Code)

	data, err := os.ReadFile(filepath.Join(s.cfg.LogDirectory, logger.WarningFile))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTelemetryRouteFollowsTransport(t *testing.T) {
	s := newTestServer(t, "")
	// A plain GET is not an upgrade request, but the route exists.
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/telemetry", "").Code)

	reg := prometheus.NewRegistry()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	h := SetupRoutes(Deps{
		Config:   cfg,
		Logger:   logger.Discard(),
		Status:   delivery.NewTracker(logger.Discard(), metrics.New(reg), nil, 0),
		Gatherer: reg,
		Started:  time.Now(),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/telemetry", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
