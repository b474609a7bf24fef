package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/pitwall/internal/domain/registry"
	"github.com/okian/pitwall/internal/domain/types"
)

// RegistryHandler serves read-only track and driver views.
type RegistryHandler struct {
	catalog Catalog
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(catalog Catalog) *RegistryHandler {
	return &RegistryHandler{catalog: catalog}
}

// HandleListTracks handles GET /tracks.
func (h *RegistryHandler) HandleListTracks(w http.ResponseWriter, _ *http.Request) {
	tracks := h.catalog.ListTracks()
	out := make([]types.Track, len(tracks))
	for i, t := range tracks {
		out[i] = types.FromTrack(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetTrack handles GET /tracks/{id}.
func (h *RegistryHandler) HandleGetTrack(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.Track(r.PathValue("id"))
	if err != nil {
		writeError(w, WrapKind("get_track", ErrNotFound, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromTrack(t))
}

// HandleListDrivers handles GET /drivers. Optional query parameters:
// era filters by era, top=N returns the N strongest by era-adjusted skill.
func (h *RegistryHandler) HandleListDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	drivers := h.catalog.ListDrivers()
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, NewKind("list_drivers: top must be a positive integer", ErrBadRequest))
			return
		}
		drivers = h.catalog.TopDrivers(n)
	}

	era := registry.Era(strings.ToLower(strings.TrimSpace(q.Get("era"))))
	switch era {
	case "", registry.EraClassic, registry.EraModern, registry.EraHybrid:
	default:
		writeError(w, NewKind("list_drivers: unknown era", ErrBadRequest))
		return
	}

	out := make([]types.Driver, 0, len(drivers))
	for _, d := range drivers {
		if era != "" && d.Era != era {
			continue
		}
		out = append(out, types.FromDriver(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetDriver handles GET /drivers/{id}.
func (h *RegistryHandler) HandleGetDriver(w http.ResponseWriter, r *http.Request) {
	d, err := h.catalog.Driver(r.PathValue("id"))
	if err != nil {
		writeError(w, WrapKind("get_driver", ErrNotFound, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromDriver(d))
}
