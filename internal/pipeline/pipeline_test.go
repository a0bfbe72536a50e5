package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightlinehq/sightline/internal/hub"
	"github.com/sightlinehq/sightline/internal/models"
	"github.com/sightlinehq/sightline/internal/pipeline"
	"github.com/sightlinehq/sightline/pkg/repository/mock"
)

type fixture struct {
	pipe      *pipeline.Pipeline
	reports   *mock.ReportRepo
	sightings *mock.SightingRepo
	uploader  *mock.Uploader
	engine    *mock.Analyzer
	queue     *mock.SyncQueue
	hub       *hub.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reports:   mock.NewReportRepo(),
		sightings: mock.NewSightingRepo(),
		uploader:  &mock.Uploader{URL: "http://media.local/ev.jpg"},
		engine:    &mock.Analyzer{},
		queue:     &mock.SyncQueue{},
		hub:       hub.New(nil),
	}
	f.pipe = pipeline.New(f.reports, f.sightings, f.uploader, f.engine, f.queue, f.hub, 5*time.Second, nil)
	return f
}

func recvEvent(t *testing.T, sub *hub.Subscriber) hub.Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return hub.Event{}
	}
}

func assertNoEvent(t *testing.T, sub *hub.Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmitReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipe.SubmitReport(ctx, pipeline.SubmitReportInput{Description: "seen downtown"})
	assert.True(t, models.IsValidation(err), "missing wantedId should be a validation error")

	_, err = f.pipe.SubmitReport(ctx, pipeline.SubmitReportInput{WantedID: "w1"})
	assert.True(t, models.IsValidation(err), "image-or-description is required")

	bad := 1000.0
	_, err = f.pipe.SubmitReport(ctx, pipeline.SubmitReportInput{WantedID: "w1", Description: "x", Latitude: &bad})
	assert.True(t, models.IsValidation(err))
}

func TestSubmitReportUploadFailureCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.uploader.Err = fmt.Errorf("%w: minio down", models.ErrStorageUnavailable)

	_, err := f.pipe.SubmitReport(context.Background(), pipeline.SubmitReportInput{
		WantedID:  "w1",
		ImageData: []byte{0xff, 0xd8},
	})
	require.ErrorIs(t, err, models.ErrStorageUnavailable)

	// the whole submission aborts before any report row exists
	n, _ := f.reports.CountReports(context.Background())
	assert.Zero(t, n)
}

func TestSubmitReportWithImageEnqueuesMatchJob(t *testing.T) {
	f := newFixture(t)
	enqueued := 0
	f.queue.Handler = func(ctx context.Context, typ string, payload any) error {
		enqueued++
		assert.Equal(t, "match.analyze", typ)
		return nil
	}

	id, err := f.pipe.SubmitReport(context.Background(), pipeline.SubmitReportInput{
		WantedID:  "w1",
		ImageData: []byte{0xff, 0xd8},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, enqueued)
	assert.Equal(t, 1, f.uploader.Calls)

	// caller got the id back while the report is still pending
	rep, err := f.reports.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rep.Status)
	assert.Empty(t, rep.Matches)
}

func TestSubmitDescriptionOnlyCompletesImmediately(t *testing.T) {
	f := newFixture(t)
	sub := f.hub.Subscribe(hub.TopicReports)
	defer f.hub.Unsubscribe(sub)

	id, err := f.pipe.SubmitReport(context.Background(), pipeline.SubmitReportInput{
		WantedID:    "w1",
		Description: "seen near the docks",
	})
	require.NoError(t, err)

	rep, err := f.reports.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rep.Status)
	assert.Empty(t, rep.Matches)
	assert.Equal(t, 0, f.engine.CallCount(), "nothing to analyze without an image")
	assert.Equal(t, 0, f.uploader.Calls)

	ev := recvEvent(t, sub)
	assert.Equal(t, hub.EventReportProcessed, ev.Name)
}

func TestResolveMatchResultSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.hub.Subscribe(hub.TopicReports)
	defer f.hub.Unsubscribe(sub)

	rep := &models.Report{ID: "r1", WantedID: "w1", Status: models.StatusPending}
	require.NoError(t, f.reports.CreateReport(ctx, rep))

	matches := []models.Match{
		{URL: "a", Confidence: 140},  // clamped to 100
		{URL: "b", Confidence: 61.5}, // untouched
		{URL: "c", Confidence: -3},   // clamped to 0
	}
	require.NoError(t, f.pipe.ResolveMatchResult(ctx, "r1", matches, nil))

	got, err := f.reports.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	// clamped into [0,100], order preserved as received
	assert.Equal(t, []models.Match{{URL: "a", Confidence: 100}, {URL: "b", Confidence: 61.5}, {URL: "c", Confidence: 0}}, got.Matches)

	ev := recvEvent(t, sub)
	data, ok := ev.Data.(pipeline.ReportProcessedEvent)
	require.True(t, ok)
	assert.Equal(t, "r1", data.ReportID)
	assert.Equal(t, "w1", data.WantedID)
	assert.Equal(t, models.StatusCompleted, data.Status)
}

func TestResolveMatchResultFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.hub.Subscribe(hub.TopicReports)
	defer f.hub.Unsubscribe(sub)

	require.NoError(t, f.reports.CreateReport(ctx, &models.Report{ID: "r1", WantedID: "w1", Status: models.StatusPending}))
	require.NoError(t, f.pipe.ResolveMatchResult(ctx, "r1", nil, fmt.Errorf("%w: timeout", models.ErrMatchEngine)))

	got, err := f.reports.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Empty(t, got.Matches, "failed reports never carry matches")

	ev := recvEvent(t, sub)
	data := ev.Data.(pipeline.ReportProcessedEvent)
	assert.Equal(t, models.StatusFailed, data.Status)
}

func TestDuplicateResultDeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.hub.Subscribe(hub.TopicReports)
	defer f.hub.Unsubscribe(sub)

	require.NoError(t, f.reports.CreateReport(ctx, &models.Report{ID: "r1", WantedID: "w1", Status: models.StatusPending}))

	first := []models.Match{{URL: "a", Confidence: 90}}
	require.NoError(t, f.pipe.ResolveMatchResult(ctx, "r1", first, nil))
	recvEvent(t, sub)

	// second delivery with a different payload: the first applied state wins
	second := []models.Match{{URL: "z", Confidence: 10}}
	require.NoError(t, f.pipe.ResolveMatchResult(ctx, "r1", second, nil))
	require.NoError(t, f.pipe.ResolveMatchResult(ctx, "r1", nil, fmt.Errorf("late failure")))

	got, err := f.reports.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, first, got.Matches)

	// exactly one publish per terminal transition
	assertNoEvent(t, sub)
}

func TestHandleMatchJobTimeoutFailsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// recreate the pipeline with a very short match timeout
	f.pipe = pipeline.New(f.reports, f.sightings, f.uploader, slowAnalyzer{}, f.queue, f.hub, 20*time.Millisecond, nil)

	require.NoError(t, f.reports.CreateReport(ctx, &models.Report{ID: "r1", WantedID: "w1", Status: models.StatusPending}))

	job := &models.BackgroundJob{Type: "match.analyze", Payload: []byte(`{"report_id":"r1","image_url":"http://media.local/ev.jpg"}`)}
	require.NoError(t, f.pipe.HandleMatchJob(ctx, job))

	got, err := f.reports.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestHandleDeadLetterFailsReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reports.CreateReport(ctx, &models.Report{ID: "r1", WantedID: "w1", Status: models.StatusPending}))

	job := &models.BackgroundJob{
		Type:      "match.analyze",
		Payload:   []byte(`{"report_id":"r1","image_url":"http://media.local/ev.jpg"}`),
		LastError: "db unavailable",
	}
	require.NoError(t, f.pipe.HandleDeadLetter(ctx, job))

	got, err := f.reports.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestAddSighting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.hub.Subscribe(hub.TopicSightings)
	defer f.hub.Unsubscribe(sub)

	id, err := f.pipe.AddSighting(ctx, pipeline.AddSightingInput{
		WantedID:   "w1",
		ReportedBy: "agent-7",
		Latitude:   44.43,
		Longitude:  26.10,
		Details:    "crossing the bridge",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ev := recvEvent(t, sub)
	assert.Equal(t, hub.EventReceiveLocation, ev.Name)
	loc := ev.Data.(pipeline.LocationEvent)
	assert.Equal(t, "w1", loc.WantedID)
	assert.Equal(t, "agent-7", loc.ReportedBy)
}

func TestAddSightingRejectsBadCoordinates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipe.AddSighting(ctx, pipeline.AddSightingInput{WantedID: "w1", ReportedBy: "a", Latitude: 1000, Longitude: 0})
	assert.True(t, models.IsValidation(err))

	_, err = f.pipe.AddSighting(ctx, pipeline.AddSightingInput{WantedID: "w1", ReportedBy: "a", Latitude: 0, Longitude: -200})
	assert.True(t, models.IsValidation(err))

	// no row was created
	trail, err := f.pipe.Trail(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, trail)
}

type slowAnalyzer struct{}

func (slowAnalyzer) Analyze(ctx context.Context, imageURL string) ([]models.Match, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", models.ErrMatchEngine, ctx.Err())
	case <-time.After(5 * time.Second):
		return nil, nil
	}
}
