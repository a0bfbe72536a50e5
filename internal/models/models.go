package models

import (
	"encoding/json"
	"time"
)

// ReportStatus is the lifecycle state of a report. PENDING is the only
// non-terminal state; COMPLETED and FAILED never transition further.
type ReportStatus string

const (
	StatusPending   ReportStatus = "PENDING"
	StatusCompleted ReportStatus = "COMPLETED"
	StatusFailed    ReportStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s ReportStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Match is a single candidate returned by the match engine for a report.
// List order is preserved as received from the engine.
type Match struct {
	URL        string  `json:"url" db:"url"`
	Confidence float64 `json:"confidence" db:"confidence"`
}

type Report struct {
	ID          string       `json:"id" db:"id"`
	WantedID    string       `json:"wantedId" db:"wanted_id"`
	ImageURL    string       `json:"url,omitempty" db:"image_url"`
	Description string       `json:"description,omitempty" db:"description"`
	Latitude    *float64     `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64     `json:"longitude,omitempty" db:"longitude"`
	Status      ReportStatus `json:"status" db:"status"`
	Matches     []Match      `json:"matches"`
	Created     int64        `json:"created" db:"created"`
}

type Sighting struct {
	ID         string  `json:"id" db:"id"`
	WantedID   string  `json:"wantedId" db:"wanted_id"`
	ReportedBy string  `json:"reportedBy" db:"reported_by"`
	Latitude   float64 `json:"latitude" db:"latitude"`
	Longitude  float64 `json:"longitude" db:"longitude"`
	Details    string  `json:"details,omitempty" db:"details"`
	ImageURL   string  `json:"url,omitempty" db:"image_url"`
	Created    int64   `json:"created" db:"created"`
}

// UserLocation is the "home base" a caller has set, one row per identity.
type UserLocation struct {
	UserID    string  `json:"userId" db:"user_id"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Updated   int64   `json:"updated" db:"updated"`
}

// BackgroundJob is a row in the background job queue.
type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
