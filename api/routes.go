package api

import (
	"github.com/gorilla/mux"

	"github.com/sightlinehq/sightline/internal/config"
	"github.com/sightlinehq/sightline/internal/hub"
	"github.com/sightlinehq/sightline/internal/pipeline"
	"github.com/sightlinehq/sightline/pkg/repository"
)

// Repos groups the repositories the handlers read from directly.
type Repos struct {
	Reports   repository.ReportRepo
	Locations repository.UserLocationRepo
}

func SetupRoutes(cfg *config.Config, version, buildTime string, pipe *pipeline.Pipeline, repos Repos, h *hub.Hub) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	reportsHandler := NewReportsHandler(pipe, repos.Reports, cfg.MaxPageSize)
	sightingsHandler := NewSightingsHandler(pipe)
	usersHandler := NewUsersHandler(repos.Locations)
	wsHandler := NewWSHandler(h)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Report endpoints
	apiV1.HandleFunc("/reports", reportsHandler.SubmitReport).Methods("POST")
	apiV1.HandleFunc("/reports", reportsHandler.ListReports).Methods("GET")
	apiV1.HandleFunc("/reports/{id}", reportsHandler.GetReport).Methods("GET")

	// Sighting endpoints
	apiV1.HandleFunc("/wanted/{id}/sightings", sightingsHandler.AddSighting).Methods("POST")
	apiV1.HandleFunc("/wanted/{id}/sightings", sightingsHandler.GetTrail).Methods("GET")

	// User location endpoints
	apiV1.HandleFunc("/users/location", usersHandler.GetLocation).Methods("GET")
	apiV1.HandleFunc("/users/location", usersHandler.SetLocation).Methods("PUT")

	// Real-time channel
	apiV1.HandleFunc("/ws", wsHandler.Subscribe).Methods("GET")

	return r
}
