package common

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// TrackQueue manages the shared pending-track sequence. The currently
// playing track is never in the queue; Dequeue hands ownership to the
// broadcast engine at play start.
type TrackQueue struct {
	items  []*Track
	mu     sync.RWMutex
	logger logging.Logger
}

// NewTrackQueue creates a new empty track queue
func NewTrackQueue() *TrackQueue {
	loggerFactory := logging.GetGlobalLoggerFactory()
	logger := loggerFactory.CreateLogger("queue")

	return &TrackQueue{
		items:  make([]*Track, 0),
		logger: logger,
	}
}

// Enqueue assigns a fresh id to the payload and appends it to the queue
func (q *TrackQueue) Enqueue(payload TrackPayload) *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	track := &Track{
		ID:          uuid.New().String(),
		Title:       payload.Title,
		URL:         payload.URL,
		Thumbnail:   payload.Thumbnail,
		Duration:    payload.Duration,
		Source:      payload.Source,
		RequestedBy: payload.RequestedBy,
		AddedAt:     time.Now(),
	}

	q.items = append(q.items, track)

	if q.logger != nil {
		q.logger.Info("Added track to queue", map[string]interface{}{
			"track_id":     track.ID,
			"title":        track.Title,
			"source":       track.Source,
			"requested_by": track.RequestedBy.ID,
			"queue_size":   len(q.items),
		})
	}

	return track
}

// Dequeue removes and returns the head of the queue, or nil when empty
func (q *TrackQueue) Dequeue() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	track := q.items[0]
	q.items = q.items[1:]
	return track
}

// Peek returns the head of the queue without removing it
func (q *TrackQueue) Peek() *Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Snapshot returns a stable shallow copy of the pending tracks
func (q *TrackQueue) Snapshot() []*Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Track, len(q.items))
	copy(result, q.items)
	return result
}

// Size returns the number of pending tracks
func (q *TrackQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Remove removes the track with the given id. Returns false if absent.
func (q *TrackQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, track := range q.items {
		if track.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)

			if q.logger != nil {
				q.logger.Info("Removed track from queue", map[string]interface{}{
					"track_id":   id,
					"title":      track.Title,
					"queue_size": len(q.items),
				})
			}
			return true
		}
	}
	return false
}

// Move repositions the track with the given id. The destination index is
// clamped to [0, size-1]. Returns false if the id is absent.
func (q *TrackQueue) Move(id string, newIndex int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	position := -1
	for i, track := range q.items {
		if track.ID == id {
			position = i
			break
		}
	}
	if position == -1 {
		return false
	}

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(q.items)-1 {
		newIndex = len(q.items) - 1
	}

	track := q.items[position]
	q.items = append(q.items[:position], q.items[position+1:]...)

	q.items = append(q.items, nil)
	copy(q.items[newIndex+1:], q.items[newIndex:])
	q.items[newIndex] = track

	if q.logger != nil {
		q.logger.Info("Moved track in queue", map[string]interface{}{
			"track_id": id,
			"from":     position,
			"to":       newIndex,
		})
	}
	return true
}

// Clear empties the queue
func (q *TrackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := len(q.items)
	q.items = make([]*Track, 0)

	if q.logger != nil {
		q.logger.Info("Cleared queue", map[string]interface{}{
			"items_cleared": cleared,
		})
	}
}
