package api

import (
	"encoding/json"
	"net/http"

	"github.com/sightlinehq/sightline/internal/models"
	"github.com/sightlinehq/sightline/pkg/repository"
)

type UsersHandler struct {
	locations repository.UserLocationRepo
}

func NewUsersHandler(locations repository.UserLocationRepo) *UsersHandler {
	return &UsersHandler{locations: locations}
}

type setLocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// SetLocation upserts the caller's home base: created on first write,
// updated in place thereafter.
func (h *UsersHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req setLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.Validationf("body", "invalid json"))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, models.Validationf("location", "latitude and longitude are required"))
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 {
		writeError(w, models.Validationf("latitude", "must be within [-90, 90]"))
		return
	}
	if *req.Longitude < -180 || *req.Longitude > 180 {
		writeError(w, models.Validationf("longitude", "must be within [-180, 180]"))
		return
	}

	if err := h.locations.UpsertLocation(r.Context(), UserID(r.Context()), *req.Latitude, *req.Longitude); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locations.GetLocation(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, loc, http.StatusOK)
}
