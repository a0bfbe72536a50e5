package sqlite

import (
	"context"
	"database/sql"

	"github.com/sightlinehq/sightline/internal/models"
)

// UpsertLocation creates the caller's home-base row on first write and
// updates it in place thereafter.
func (r *SQLiteRepo) UpsertLocation(ctx context.Context, userID string, lat, lng float64) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO user_locations (user_id, latitude, longitude, updated) VALUES (?, ?, ?, ?) ON CONFLICT(user_id) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude, updated = excluded.updated`,
		userID, lat, lng, now())
	return err
}

func (r *SQLiteRepo) GetLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT user_id, latitude, longitude, updated FROM user_locations WHERE user_id = ?`, userID)
	var loc models.UserLocation
	if err := row.Scan(&loc.UserID, &loc.Latitude, &loc.Longitude, &loc.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}
