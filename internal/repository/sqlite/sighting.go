package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sightlinehq/sightline/internal/models"
)

func (r *SQLiteRepo) CreateSighting(ctx context.Context, s *models.Sighting) error {
	if s == nil {
		return fmt.Errorf("sighting is nil")
	}
	if s.Created == 0 {
		s.Created = now()
	}

	_, err := r.conn.Exec(ctx,
		`INSERT INTO sightings (id, wanted_id, reported_by, latitude, longitude, details, image_url, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.WantedID, s.ReportedBy, s.Latitude, s.Longitude, s.Details, s.ImageURL, s.Created)
	return err
}

// ListByWanted returns the subject's trail ordered by created ascending.
// Rows are immutable after insert, so the trail is stable across reads.
func (r *SQLiteRepo) ListByWanted(ctx context.Context, wantedID string) ([]models.Sighting, error) {
	rows, err := r.conn.QueryRows(ctx,
		`SELECT id, wanted_id, reported_by, latitude, longitude, details, image_url, created FROM sightings WHERE wanted_id = ? ORDER BY created ASC, id ASC`,
		wantedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sighting
	for rows.Next() {
		var s models.Sighting
		var details, imageURL sql.NullString
		if err := rows.Scan(&s.ID, &s.WantedID, &s.ReportedBy, &s.Latitude, &s.Longitude, &details, &imageURL, &s.Created); err != nil {
			return nil, err
		}
		if details.Valid {
			s.Details = details.String
		}
		if imageURL.Valid {
			s.ImageURL = imageURL.String
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
