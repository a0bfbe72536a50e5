package sqlite

import (
	"log/slog"
	"time"

	"github.com/sightlinehq/sightline/internal/db"
	"github.com/sightlinehq/sightline/pkg/repository"
)

// SQLiteRepo implements the repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.ReportRepo = (*SQLiteRepo)(nil)
var _ repository.SightingRepo = (*SQLiteRepo)(nil)
var _ repository.UserLocationRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}
