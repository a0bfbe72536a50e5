// Package pipeline orchestrates the report lifecycle: accept a submission,
// persist it PENDING, hand the image to the match engine asynchronously,
// record the terminal state, and fan the transition out to subscribed
// dashboards. It also owns sighting creation and the movement trail reads.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sightlinehq/sightline/internal/hub"
	"github.com/sightlinehq/sightline/internal/jobs"
	"github.com/sightlinehq/sightline/internal/models"
	"github.com/sightlinehq/sightline/pkg/repository"
)

// Uploader is the object-store collaborator: bytes in, durable URL out.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Analyzer is the match engine collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string) ([]models.Match, error)
}

// Enqueuer hands match work off to the background queue. Satisfied by
// *jobs.WorkerPool.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

// ReportProcessedEvent is published on the reports topic after a terminal
// transition. Consumers re-query for full state rather than trusting the
// payload to be complete.
type ReportProcessedEvent struct {
	ReportID string              `json:"reportId"`
	WantedID string              `json:"wantedId"`
	Status   models.ReportStatus `json:"status"`
}

// LocationEvent is published on the sightings topic when a sighting lands.
type LocationEvent struct {
	WantedID   string  `json:"wantedId"`
	ReportedBy string  `json:"reportedBy"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Created    int64   `json:"created"`
}

type Pipeline struct {
	reports   repository.ReportRepo
	sightings repository.SightingRepo
	uploader  Uploader
	engine    Analyzer
	queue     Enqueuer
	hub       *hub.Hub
	logger    *slog.Logger

	// matchTimeout bounds a single engine invocation so a report cannot
	// stay PENDING on a hung engine call.
	matchTimeout time.Duration
}

func New(reports repository.ReportRepo, sightings repository.SightingRepo, uploader Uploader, engine Analyzer, queue Enqueuer, h *hub.Hub, matchTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if matchTimeout <= 0 {
		matchTimeout = 60 * time.Second
	}
	return &Pipeline{
		reports:      reports,
		sightings:    sightings,
		uploader:     uploader,
		engine:       engine,
		queue:        queue,
		hub:          h,
		logger:       logger,
		matchTimeout: matchTimeout,
	}
}

type SubmitReportInput struct {
	WantedID    string
	Description string
	Latitude    *float64
	Longitude   *float64

	// Either raw image bytes (uploaded to the object store first) or an
	// already-durable image reference. Raw bytes win when both are set.
	ImageData   []byte
	ContentType string
	ImageURL    string
}

// SubmitReport validates the submission, uploads raw image bytes if present,
// persists a PENDING report, and hands the image to the match engine via the
// job queue. The caller gets the report id immediately and never blocks on
// the match result. An upload failure aborts the whole submission before any
// report row exists.
func (p *Pipeline) SubmitReport(ctx context.Context, in SubmitReportInput) (string, error) {
	in.WantedID = strings.TrimSpace(in.WantedID)
	in.Description = strings.TrimSpace(in.Description)

	if in.WantedID == "" {
		return "", models.Validationf("wantedId", "required")
	}
	if len(in.ImageData) == 0 && in.ImageURL == "" && in.Description == "" {
		return "", models.Validationf("report", "either an image or a description is required")
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return "", models.Validationf("latitude", "must be within [-90, 90]")
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return "", models.Validationf("longitude", "must be within [-180, 180]")
	}

	imageURL := in.ImageURL
	if len(in.ImageData) > 0 {
		url, err := p.uploader.Upload(ctx, in.ImageData, in.ContentType)
		if err != nil {
			return "", fmt.Errorf("upload evidence: %w", err)
		}
		imageURL = url
	}

	rep := &models.Report{
		ID:          uuid.NewString(),
		WantedID:    in.WantedID,
		ImageURL:    imageURL,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.StatusPending,
	}
	if err := p.reports.CreateReport(ctx, rep); err != nil {
		return "", fmt.Errorf("persist report: %w", err)
	}

	if imageURL == "" {
		// Nothing to analyze: a description-only report completes right
		// away with zero matches.
		if err := p.ResolveMatchResult(ctx, rep.ID, []models.Match{}, nil); err != nil {
			p.logger.Error("complete description-only report", "report_id", rep.ID, "err", err)
		}
		return rep.ID, nil
	}

	payload := jobs.MatchAnalyzePayload{ReportID: rep.ID, ImageURL: imageURL}
	if _, err := p.queue.Enqueue(ctx, jobs.TypeMatchAnalyze, payload, 100, 3); err != nil {
		// The report row exists; fail it rather than leave it PENDING with
		// no job to resolve it.
		p.logger.Error("enqueue match job", "report_id", rep.ID, "err", err)
		if rerr := p.ResolveMatchResult(ctx, rep.ID, nil, err); rerr != nil {
			p.logger.Error("fail unqueued report", "report_id", rep.ID, "err", rerr)
		}
		return rep.ID, nil
	}

	p.logger.Info("report submitted", "report_id", rep.ID, "wanted_id", rep.WantedID, "has_image", imageURL != "")
	return rep.ID, nil
}

// HandleMatchJob is the jobs.Handler for match.analyze jobs. The engine call
// runs under the configured timeout; engine failure is not retried by the
// queue, it resolves the report to FAILED. Only repository failures bubble
// up so the queue retries them.
func (p *Pipeline) HandleMatchJob(ctx context.Context, j *models.BackgroundJob) error {
	var payload jobs.MatchAnalyzePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return fmt.Errorf("decode match payload: %w", err)
	}

	engineCtx, cancel := context.WithTimeout(ctx, p.matchTimeout)
	matches, engineErr := p.engine.Analyze(engineCtx, payload.ImageURL)
	cancel()

	return p.ResolveMatchResult(ctx, payload.ReportID, matches, engineErr)
}

// HandleDeadLetter resolves the report of a permanently failed match job so
// that a job exhausted by repository errors still reaches a terminal state.
func (p *Pipeline) HandleDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	if j.Type != jobs.TypeMatchAnalyze {
		return nil
	}
	var payload jobs.MatchAnalyzePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return fmt.Errorf("decode match payload: %w", err)
	}
	return p.ResolveMatchResult(ctx, payload.ReportID, nil, fmt.Errorf("%w: job dead-lettered: %s", models.ErrMatchEngine, j.LastError))
}

// ResolveMatchResult applies the engine's result to the report. Success
// transitions PENDING -> COMPLETED with the match list (confidences clamped
// to [0,100], order preserved); failure transitions PENDING -> FAILED with no
// matches. The terminal write is conditional on the row still being PENDING,
// so duplicate delivery of a result is a no-op and publishes nothing. The
// notification is published only after the store write that it announces.
func (p *Pipeline) ResolveMatchResult(ctx context.Context, reportID string, matches []models.Match, engineErr error) error {
	var applied bool
	var err error

	if engineErr != nil {
		p.logger.Warn("match analysis failed", "report_id", reportID, "err", engineErr)
		applied, err = p.reports.FailReport(ctx, reportID)
	} else {
		applied, err = p.reports.CompleteReport(ctx, reportID, clampConfidences(matches))
	}
	if err != nil {
		return fmt.Errorf("record terminal state: %w", err)
	}
	if !applied {
		p.logger.Info("duplicate match result ignored", "report_id", reportID)
		return nil
	}

	rep, err := p.reports.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report after transition: %w", err)
	}

	p.hub.Publish(hub.TopicReports, hub.Event{
		Name: hub.EventReportProcessed,
		Data: ReportProcessedEvent{ReportID: rep.ID, WantedID: rep.WantedID, Status: rep.Status},
	})
	p.logger.Info("report processed", "report_id", rep.ID, "status", rep.Status, "matches", len(rep.Matches))
	return nil
}

type AddSightingInput struct {
	WantedID   string
	ReportedBy string
	Latitude   float64
	Longitude  float64
	Details    string
	ImageURL   string
}

// AddSighting appends an immutable sighting to the subject's trail and
// publishes the location to subscribed dashboards.
func (p *Pipeline) AddSighting(ctx context.Context, in AddSightingInput) (string, error) {
	in.WantedID = strings.TrimSpace(in.WantedID)
	if in.WantedID == "" {
		return "", models.Validationf("wantedId", "required")
	}
	if in.ReportedBy == "" {
		return "", models.Validationf("reportedBy", "required")
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return "", models.Validationf("latitude", "must be within [-90, 90]")
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return "", models.Validationf("longitude", "must be within [-180, 180]")
	}

	s := &models.Sighting{
		ID:         uuid.NewString(),
		WantedID:   in.WantedID,
		ReportedBy: in.ReportedBy,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Details:    in.Details,
		ImageURL:   in.ImageURL,
	}
	if err := p.sightings.CreateSighting(ctx, s); err != nil {
		return "", fmt.Errorf("persist sighting: %w", err)
	}

	p.hub.Publish(hub.TopicSightings, hub.Event{
		Name: hub.EventReceiveLocation,
		Data: LocationEvent{
			WantedID:   s.WantedID,
			ReportedBy: s.ReportedBy,
			Latitude:   s.Latitude,
			Longitude:  s.Longitude,
			Created:    s.Created,
		},
	})
	p.logger.Info("sighting recorded", "sighting_id", s.ID, "wanted_id", s.WantedID)
	return s.ID, nil
}

// Trail returns the subject's sightings ordered oldest first.
func (p *Pipeline) Trail(ctx context.Context, wantedID string) ([]models.Sighting, error) {
	return p.sightings.ListByWanted(ctx, wantedID)
}

func clampConfidences(matches []models.Match) []models.Match {
	out := make([]models.Match, len(matches))
	for i, m := range matches {
		if m.Confidence < 0 {
			m.Confidence = 0
		}
		if m.Confidence > 100 {
			m.Confidence = 100
		}
		out[i] = m
	}
	return out
}
