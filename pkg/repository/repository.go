package repository

import (
	"context"

	"github.com/sightlinehq/sightline/internal/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

type ReportRepo interface {
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)

	// ListReports returns reports ordered by created descending, matches
	// loaded, for dashboard pagination.
	ListReports(ctx context.Context, limit, offset int) ([]models.Report, error)
	CountReports(ctx context.Context) (int64, error)

	// CompleteReport and FailReport are the only writers of a report's
	// terminal state. Both apply only while the row is still PENDING and
	// report applied=false otherwise, which makes duplicate engine result
	// delivery a no-op.
	CompleteReport(ctx context.Context, id string, matches []models.Match) (bool, error)
	FailReport(ctx context.Context, id string) (bool, error)
}

type SightingRepo interface {
	CreateSighting(ctx context.Context, s *models.Sighting) error

	// ListByWanted returns the subject's trail: all sightings ordered by
	// created ascending.
	ListByWanted(ctx context.Context, wantedID string) ([]models.Sighting, error)
}

type UserLocationRepo interface {
	UpsertLocation(ctx context.Context, userID string, lat, lng float64) error
	GetLocation(ctx context.Context, userID string) (*models.UserLocation, error)
}
