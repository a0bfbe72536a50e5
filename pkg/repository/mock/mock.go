package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/sightlinehq/sightline/internal/models"
)

// In-memory repositories for handler and pipeline tests.

type ReportRepo struct {
	mu      sync.Mutex
	Reports map[string]*models.Report

	CreateErr error
}

func NewReportRepo() *ReportRepo {
	return &ReportRepo{Reports: make(map[string]*models.Report)}
}

func (m *ReportRepo) CreateReport(ctx context.Context, r *models.Report) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Created == 0 {
		r.Created = int64(len(m.Reports) + 1)
	}
	cp := *r
	cp.Matches = append([]models.Match{}, r.Matches...)
	m.Reports[r.ID] = &cp
	return nil
}

func (m *ReportRepo) GetReport(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Reports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	cp.Matches = append([]models.Match{}, r.Matches...)
	return &cp, nil
}

func (m *ReportRepo) ListReports(ctx context.Context, limit, offset int) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]models.Report, 0, len(m.Reports))
	for _, r := range m.Reports {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Created > all[j].Created })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *ReportRepo) CountReports(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Reports)), nil
}

func (m *ReportRepo) CompleteReport(ctx context.Context, id string, matches []models.Match) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Reports[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusCompleted
	r.Matches = append([]models.Match{}, matches...)
	return true, nil
}

func (m *ReportRepo) FailReport(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Reports[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusFailed
	r.Matches = nil
	return true, nil
}

type SightingRepo struct {
	mu        sync.Mutex
	Sightings []models.Sighting
}

func NewSightingRepo() *SightingRepo { return &SightingRepo{} }

func (m *SightingRepo) CreateSighting(ctx context.Context, s *models.Sighting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Created == 0 {
		s.Created = int64(len(m.Sightings) + 1)
	}
	m.Sightings = append(m.Sightings, *s)
	return nil
}

func (m *SightingRepo) ListByWanted(ctx context.Context, wantedID string) ([]models.Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Sighting
	for _, s := range m.Sightings {
		if s.WantedID == wantedID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out, nil
}

type UserLocationRepo struct {
	mu        sync.Mutex
	Locations map[string]*models.UserLocation
}

func NewUserLocationRepo() *UserLocationRepo {
	return &UserLocationRepo{Locations: make(map[string]*models.UserLocation)}
}

func (m *UserLocationRepo) UpsertLocation(ctx context.Context, userID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locations[userID] = &models.UserLocation{UserID: userID, Latitude: lat, Longitude: lng}
	return nil
}

func (m *UserLocationRepo) GetLocation(ctx context.Context, userID string) (*models.UserLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.Locations[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *loc
	return &cp, nil
}

// Uploader is a canned object-store collaborator.
type Uploader struct {
	URL string
	Err error

	mu    sync.Mutex
	Calls int
}

func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	u.Calls++
	u.mu.Unlock()
	if u.Err != nil {
		return "", u.Err
	}
	if u.URL != "" {
		return u.URL, nil
	}
	return "http://media.local/object", nil
}

// Analyzer is a canned match engine collaborator.
type Analyzer struct {
	Matches []models.Match
	Err     error

	mu    sync.Mutex
	Calls int
}

func (a *Analyzer) Analyze(ctx context.Context, imageURL string) ([]models.Match, error) {
	a.mu.Lock()
	a.Calls++
	a.mu.Unlock()
	if a.Err != nil {
		return nil, a.Err
	}
	return append([]models.Match{}, a.Matches...), nil
}

func (a *Analyzer) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Calls
}

// SyncQueue runs handlers inline instead of going through the DB-backed
// queue, keeping pipeline tests synchronous.
type SyncQueue struct {
	Handler func(ctx context.Context, typ string, payload any) error
	Err     error
}

func (q *SyncQueue) Enqueue(ctx context.Context, typ string, payload any, priority, maxAttempts int) (int64, error) {
	if q.Err != nil {
		return 0, q.Err
	}
	if q.Handler != nil {
		if err := q.Handler(ctx, typ, payload); err != nil {
			return 0, err
		}
	}
	return 1, nil
}
