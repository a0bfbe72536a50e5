package jobs

import (
	"context"
	"time"

	"github.com/sightlinehq/sightline/internal/models"
)

// Job type for asynchronous biometric analysis of a report's image.
const TypeMatchAnalyze = "match.analyze"

// MatchAnalyzePayload is the payload carried by a match.analyze job.
type MatchAnalyzePayload struct {
	ReportID string `json:"report_id"`
	ImageURL string `json:"image_url"`
}

// Handler is the function that processes a job. Returning an error schedules
// a retry with backoff until max attempts, then the job is dead-lettered.
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
