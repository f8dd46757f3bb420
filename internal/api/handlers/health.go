package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/downloadclients"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db         *models.Database
	resolver   *resolver.Resolver
	dispatcher *downloadclients.Dispatcher
	logger     *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *models.Database, res *resolver.Resolver, dispatcher *downloadclients.Dispatcher, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		resolver:   res,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ComponentHealth reports one dependency's state
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// ServeHTTP handles the health check endpoint. Only a broken database
// turns the response into a 503; degraded external components are
// surfaced in the body under a 200.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:     "healthy",
		Components: make(map[string]ComponentHealth),
	}

	if _, err := h.db.CountJobsByState(); err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		response.Status = "unhealthy"
		response.Components["database"] = ComponentHealth{Status: "unhealthy", Detail: err.Error()}
	} else {
		response.Components["database"] = ComponentHealth{Status: "healthy"}
	}

	if !h.resolver.BypassConfigured() {
		response.Components["bypass"] = ComponentHealth{Status: "disabled"}
	} else if err := h.resolver.BypassHealth(r.Context()); err != nil {
		response.Components["bypass"] = ComponentHealth{Status: "degraded", Detail: err.Error()}
	} else {
		response.Components["bypass"] = ComponentHealth{Status: "healthy"}
	}

	clients := h.dispatcher.Enabled()
	if len(clients) == 0 {
		response.Components["download_clients"] = ComponentHealth{Status: "disabled"}
	}
	for _, client := range clients {
		name := "client_" + client.Name()
		if err := client.TestConnection(r.Context()); err != nil {
			response.Components[name] = ComponentHealth{Status: "degraded", Detail: err.Error()}
		} else {
			response.Components[name] = ComponentHealth{Status: "healthy"}
		}
	}

	code := http.StatusOK
	if response.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
