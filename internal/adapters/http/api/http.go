// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/internal/domain/types"
)

// Catalog is the read side of the entity registry.
type Catalog interface {
	ListTracks() []registry.Track
	ListDrivers() []registry.Driver
	TopDrivers(n int) []registry.Driver
	Track(id string) (registry.Track, error)
	Driver(id string) (registry.Driver, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	Stats() types.Stats
}

// Server wires HTTP routes for the REST API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	registryHandler *RegistryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(catalog Catalog, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		registryHandler: NewRegistryHandler(catalog),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /tracks", MetricsMiddleware(s.registryHandler.HandleListTracks, "tracks"))
	mux.HandleFunc("GET /tracks/{id}", MetricsMiddleware(s.registryHandler.HandleGetTrack, "track"))
	mux.HandleFunc("GET /drivers", MetricsMiddleware(s.registryHandler.HandleListDrivers, "drivers"))
	mux.HandleFunc("GET /drivers/{id}", MetricsMiddleware(s.registryHandler.HandleGetDriver, "driver"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error kind to its status code.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, registry.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}
