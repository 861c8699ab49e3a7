package common

import (
	"time"
)

// Track sources accepted by the broadcast engine.
const (
	SourceYouTube    = "youtube"
	SourceSoundCloud = "soundcloud"
)

// Requester identifies the user who queued a track
type Requester struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Track is a queued or playing audio item. Tracks are immutable after
// enqueue except for StartedAt, which the engine writes exactly once when
// the first MP3 chunk of the track goes out.
type Track struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Duration    float64   `json:"duration,omitempty"` // seconds, best effort
	StartedAt   *int64    `json:"startedAt,omitempty"` // ms since epoch
	Source      string    `json:"source"`
	RequestedBy Requester `json:"requestedBy"`
	AddedAt     time.Time `json:"-"`
}

// TrackPayload carries the resolved attributes of a track into Enqueue
type TrackPayload struct {
	Source      string
	URL         string
	Title       string
	Thumbnail   string
	Duration    float64
	RequestedBy Requester
}

// Clone returns a shallow copy so snapshot consumers can shift StartedAt
// without touching the stored track
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	clone := *t
	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		clone.StartedAt = &startedAt
	}
	return &clone
}
