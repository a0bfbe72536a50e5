package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sightlinehq/sightline/internal/models"
)

func (r *SQLiteRepo) CreateReport(ctx context.Context, rep *models.Report) error {
	if rep == nil {
		return fmt.Errorf("report is nil")
	}
	if rep.Created == 0 {
		rep.Created = now()
	}
	if rep.Status == "" {
		rep.Status = models.StatusPending
	}

	_, err := r.conn.Exec(ctx,
		`INSERT INTO reports (id, wanted_id, image_url, description, latitude, longitude, status, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.WantedID, rep.ImageURL, rep.Description, rep.Latitude, rep.Longitude, string(rep.Status), rep.Created)
	return err
}

func (r *SQLiteRepo) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT id, wanted_id, image_url, description, latitude, longitude, status, created FROM reports WHERE id = ?`, id)

	rep, err := scanReport(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	matches, err := r.matchesFor(ctx, []string{rep.ID})
	if err != nil {
		return nil, err
	}
	rep.Matches = matches[rep.ID]
	if rep.Matches == nil {
		rep.Matches = []models.Match{}
	}
	return rep, nil
}

func (r *SQLiteRepo) ListReports(ctx context.Context, limit, offset int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.QueryRows(ctx,
		`SELECT id, wanted_id, image_url, description, latitude, longitude, status, created FROM reports ORDER BY created DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Report
	var ids []string
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		rep.Matches = []models.Match{}
		out = append(out, *rep)
		ids = append(ids, rep.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		matches, err := r.matchesFor(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range out {
			if m, ok := matches[out[i].ID]; ok {
				out[i].Matches = m
			}
		}
	}

	return out, nil
}

func (r *SQLiteRepo) CountReports(ctx context.Context) (int64, error) {
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM reports`)
	var cnt int64
	if err := row.Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

// CompleteReport records the COMPLETED terminal state together with the match
// list in a single transaction. The status flip is conditional on the row
// still being PENDING; when another terminal write already won, the match
// inserts are rolled back and applied=false is returned.
func (r *SQLiteRepo) CompleteReport(ctx context.Context, id string, matches []models.Match) (bool, error) {
	tx, err := r.conn.GetConn().BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE reports SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusCompleted), id, string(models.StatusPending))
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	for i, m := range matches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_matches (report_id, position, url, confidence) VALUES (?, ?, ?, ?)`,
			id, i, m.URL, m.Confidence); err != nil {
			_ = tx.Rollback()
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// FailReport records the FAILED terminal state. FAILED reports never carry
// matches, so no match rows are touched.
func (r *SQLiteRepo) FailReport(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx,
		`UPDATE reports SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusFailed), id, string(models.StatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepo) matchesFor(ctx context.Context, reportIDs []string) (map[string][]models.Match, error) {
	args := make([]any, len(reportIDs))
	placeholders := ""
	for i, id := range reportIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}

	rows, err := r.conn.QueryRows(ctx,
		`SELECT report_id, url, confidence FROM report_matches WHERE report_id IN (`+placeholders+`) ORDER BY report_id, position`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]models.Match)
	for rows.Next() {
		var reportID string
		var m models.Match
		if err := rows.Scan(&reportID, &m.URL, &m.Confidence); err != nil {
			return nil, err
		}
		out[reportID] = append(out[reportID], m)
	}
	return out, rows.Err()
}

func scanReport(scan func(...any) error) (*models.Report, error) {
	var rep models.Report
	var imageURL, description sql.NullString
	var lat, lng sql.NullFloat64
	var status string
	if err := scan(&rep.ID, &rep.WantedID, &imageURL, &description, &lat, &lng, &status, &rep.Created); err != nil {
		return nil, err
	}
	rep.Status = models.ReportStatus(status)
	if imageURL.Valid {
		rep.ImageURL = imageURL.String
	}
	if description.Valid {
		rep.Description = description.String
	}
	if lat.Valid {
		v := lat.Float64
		rep.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		rep.Longitude = &v
	}
	return &rep, nil
}
