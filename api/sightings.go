package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sightlinehq/sightline/internal/models"
	"github.com/sightlinehq/sightline/internal/pipeline"
)

type SightingsHandler struct {
	pipe *pipeline.Pipeline
}

func NewSightingsHandler(pipe *pipeline.Pipeline) *SightingsHandler {
	return &SightingsHandler{pipe: pipe}
}

type addSightingRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Details   string   `json:"details,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"`
}

type addSightingResponse struct {
	ID string `json:"id"`
}

func (h *SightingsHandler) AddSighting(w http.ResponseWriter, r *http.Request) {
	wantedID := mux.Vars(r)["id"]

	var req addSightingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.Validationf("body", "invalid json"))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, models.Validationf("location", "latitude and longitude are required"))
		return
	}

	id, err := h.pipe.AddSighting(r.Context(), pipeline.AddSightingInput{
		WantedID:   wantedID,
		ReportedBy: UserID(r.Context()),
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Details:    req.Details,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, addSightingResponse{ID: id}, http.StatusCreated)
}

// GetTrail returns the subject's movement trail, oldest sighting first, so
// dashboards reconstruct the route by connecting consecutive points.
func (h *SightingsHandler) GetTrail(w http.ResponseWriter, r *http.Request) {
	wantedID := mux.Vars(r)["id"]

	trail, err := h.pipe.Trail(r.Context(), wantedID)
	if err != nil {
		writeError(w, err)
		return
	}
	if trail == nil {
		trail = []models.Sighting{}
	}

	writeJSON(w, map[string]any{"items": trail}, http.StatusOK)
}
