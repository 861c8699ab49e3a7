package radio

import (
	"github.com/hibikilabs/hibiki/pkg/common"
)

// StreamState is the wire shape served by the status endpoint
type StreamState struct {
	Current   *common.Track   `json:"current"`
	Queue     []*common.Track `json:"queue"`
	Listeners int             `json:"listeners"`
	Paused    bool            `json:"paused"`
}

// Snapshot returns a consistent view of the broadcast: the current track with
// its pause-adjusted start stamp, the pending queue, the sink count and the
// paused flag, all read under one lock acquisition.
func (e *EngineImpl) Snapshot() *StreamState {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := &StreamState{
		Queue:     e.queue.Snapshot(),
		Listeners: e.bus.count(),
		Paused:    e.state == StatePaused,
	}

	// Between tracks the last played one stands in; once the queue has
	// fully drained there is nothing to report
	track := e.current
	if track == nil {
		track = e.lastPlayed
	}

	if track != nil {
		clone := track.Clone()
		if clone.StartedAt != nil {
			// Shift by the committed pause time only, so elapsed time
			// derived from this stamp equals audible seconds. An
			// in-progress pause is committed at resume.
			adjusted := *clone.StartedAt + e.totalPaused.Milliseconds()
			clone.StartedAt = &adjusted
		}
		snapshot.Current = clone
	}

	return snapshot
}
