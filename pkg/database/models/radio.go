package models

import (
	"time"

	"github.com/google/uuid"
)

// Playback outcomes recorded in the journal.
const (
	OutcomePlayed  = "played"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// PlaybackRecord represents one track's trip through the broadcast engine
type PlaybackRecord struct {
	ID           uuid.UUID `gorm:"primaryKey" json:"id"`
	TrackID      string    `gorm:"index;not null" json:"track_id"`
	Source       string    `gorm:"index;not null" json:"source"` // youtube, soundcloud
	URL          string    `gorm:"type:text;not null" json:"url"`
	Title        string    `gorm:"type:text" json:"title"`
	RequestedBy  string    `gorm:"index" json:"requested_by"`
	StartedAt    time.Time `gorm:"index" json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationSecs float64   `json:"duration_secs"`
	Outcome      string    `gorm:"index;not null" json:"outcome"` // played, skipped, failed
}

// StreamError represents a persisted warning or error from the stream pipeline
type StreamError struct {
	ID        uuid.UUID              `gorm:"primaryKey" json:"id"`
	Component string                 `gorm:"index;not null;default:'radio'" json:"component"`
	Level     string                 `gorm:"index;not null" json:"level"` // WARN, ERROR
	Message   string                 `gorm:"type:text;not null" json:"message"`
	Error     string                 `gorm:"type:text" json:"error"`
	Fields    map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"fields"`
	TrackID   string                 `gorm:"index" json:"track_id"`
	Source    string                 `gorm:"index" json:"source"`
	Timestamp time.Time              `gorm:"index;not null" json:"timestamp"`
	Resolved  bool                   `gorm:"default:false" json:"resolved"`
}

// ListenerSample is a point-in-time count of attached stream listeners
type ListenerSample struct {
	ID        uuid.UUID `gorm:"primaryKey" json:"id"`
	Count     int       `gorm:"not null" json:"count"`
	SampledAt time.Time `gorm:"index;not null" json:"sampled_at"`
}

// TableName returns the table name for PlaybackRecord
func (PlaybackRecord) TableName() string {
	return "playback_records"
}

// TableName returns the table name for StreamError
func (StreamError) TableName() string {
	return "stream_errors"
}

// TableName returns the table name for ListenerSample
func (ListenerSample) TableName() string {
	return "listener_samples"
}
