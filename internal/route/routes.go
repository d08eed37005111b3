package route

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgeagent/internal/config"
	"edgeagent/internal/handler"
	"edgeagent/internal/logger"
	"edgeagent/internal/middleware"
	"edgeagent/internal/repository"
	"edgeagent/internal/service/transport/ws"
)

// Deps are what the status server reads from.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Status   handler.DeliveryState
	Journal  repository.DeliveryRepository // optional
	Hub      *ws.Hub                       // nil unless the websocket transport is selected
	Gatherer prometheus.Gatherer
	Started  time.Time
}

// SetupRoutes registers the status endpoints and wraps the mux with the token middleware.
func SetupRoutes(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", handler.HealthHandler(deps.Started, deps.Config.Transport))

	// API endpoints
	mux.HandleFunc("/api/deliveries", handler.DeliveriesHandler(deps.Status, deps.Journal, deps.Logger))
	if deps.Hub != nil {
		mux.HandleFunc("/api/telemetry", handler.TelemetryWebsocketHandler(deps.Hub, deps.Logger))
	}

	mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	// Log endpoints
	logDir := deps.Config.LogDirectory
	for level, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(logDir, file))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(deps.Logger, file))
	}

	return middleware.AuthMiddleware(deps.Config.StatusToken, mux)
}
