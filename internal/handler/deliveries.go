package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/model"
	"edgeagent/internal/repository"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// DeliveryState exposes the live delivery state.
type DeliveryState interface {
	Counters() model.DeliveryCounters
	Pending() []model.PendingDelivery
}

// DeliveriesHandler reports counters, pending sends and, when a journal is
// configured, journal stats plus the ?recent=N latest deliveries.
func DeliveriesHandler(status DeliveryState, repo repository.DeliveryRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := dto.DeliveryReport{
			Counters: status.Counters(),
			Pending:  status.Pending(),
		}

		if repo != nil {
			stats, err := repo.GetStats()
			if err != nil {
				logger.Error("Error reading journal stats: %v", err)
				http.Error(w, "Failed to read delivery journal", http.StatusInternalServerError)
				return
			}
			report.Journal = stats

			limit := defaultRecentLimit
			if raw := r.URL.Query().Get("recent"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					http.Error(w, "Invalid recent parameter", http.StatusBadRequest)
					return
				}
				limit = min(n, maxRecentLimit)
			}
			if limit > 0 {
				recent, err := repo.GetRecent(limit)
				if err != nil {
					logger.Error("Error reading recent deliveries: %v", err)
					http.Error(w, "Failed to read delivery journal", http.StatusInternalServerError)
					return
				}
				report.Recent = recent
			}
		}

		writeJSON(w, http.StatusOK, report)
	}
}

// HealthHandler reports liveness with the process uptime.
func HealthHandler(started time.Time, transport string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"transport": transport,
			"uptime":    time.Since(started).Round(time.Second).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
