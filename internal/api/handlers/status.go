package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/controllers"
	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
	"github.com/ddlarr/ddlarr/internal/services/scrapers"
	"github.com/ddlarr/ddlarr/internal/services/transfer"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db        *models.Database
	transfers *transfer.Registry
	watcher   *controllers.WatcherController
	scrapers  *scrapers.Registry
	resolver  *resolver.Resolver
	logger    *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, transfers *transfer.Registry, watcher *controllers.WatcherController, registry *scrapers.Registry, res *resolver.Resolver, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:        db,
		transfers: transfers,
		watcher:   watcher,
		scrapers:  registry,
		resolver:  res,
		logger:    logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalJobs       int                      `json:"total_jobs"`
	JobsByState     map[string]int           `json:"jobs_by_state"`
	ActiveTransfers int                      `json:"active_transfers"`
	Watcher         controllers.WatcherStats `json:"watcher"`
	Sites           []string                 `json:"sites"`
	Debriders       []string                 `json:"debriders"`
	BypassEnabled   bool                     `json:"bypass_enabled"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.db.CountJobsByState()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count jobs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		JobsByState:     make(map[string]int, len(counts)),
		ActiveTransfers: h.transfers.Count(),
		Watcher:         h.watcher.Stats(),
		Sites:           h.scrapers.Names(),
		BypassEnabled:   h.resolver.BypassConfigured(),
	}
	for state, count := range counts {
		response.JobsByState[string(state)] = count
		response.TotalJobs += count
	}
	for _, d := range h.resolver.Debriders() {
		response.Debriders = append(response.Debriders, d.Name())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
