package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// EngineImpl implements the BroadcastEngine interface as a serial actor. One
// coarse mutex guards the queue advance, the playback state, the pause
// bookkeeping and the listener set together, because the invariants span all
// of them. Encoder events arrive as channel messages and each takes the same
// lock, so nothing observes a half-applied transition.
type EngineImpl struct {
	mu sync.Mutex

	state EngineState

	// generation tags the pipeline currently allowed to drive the engine.
	// Events and timers carry the generation they were created under and are
	// dropped when it no longer matches, which is what makes killed encoders
	// harmless.
	generation uint64

	queue      *common.TrackQueue
	current    *common.Track
	lastPlayed *common.Track

	pipeline       EncoderPipeline
	encoderPID     int
	firstDataTimer *time.Timer

	startedAt   time.Time
	pausedAt    time.Time
	totalPaused time.Duration

	// pauseBySilence is set when the encoder cannot be suspended and pause
	// falls back to replacing outgoing chunks with silence
	pauseBySilence bool

	// thumbnails caches the playing track's artwork URL per source tag for
	// the thumbnail proxy
	thumbnails map[string]string

	bus *fanoutBus

	fetchers     map[string]SourceFetcher
	config       *PipelineConfig
	errorHandler ErrorHandler
	metrics      MetricsCollector
	history      repository.HistoryRepository
	logger       logging.Logger

	// newPipeline builds the encoder for one fetched input
	newPipeline func(input *AudioInput, config *PipelineConfig, logger logging.Logger) EncoderPipeline

	done   chan struct{}
	closed bool
}

// NewEngine creates the broadcast engine and starts its idle-silence timer
func NewEngine(
	queue *common.TrackQueue,
	fetchers []SourceFetcher,
	config *PipelineConfig,
	errorHandler ErrorHandler,
	metrics MetricsCollector,
	history repository.HistoryRepository,
	logger logging.Logger,
) *EngineImpl {
	engine := &EngineImpl{
		state:        StateIdle,
		queue:        queue,
		thumbnails:   make(map[string]string),
		fetchers:     make(map[string]SourceFetcher),
		config:       config,
		errorHandler: errorHandler,
		metrics:      metrics,
		history:      history,
		logger:       logger,
		done:         make(chan struct{}),
	}
	engine.newPipeline = func(input *AudioInput, config *PipelineConfig, logger logging.Logger) EncoderPipeline {
		return NewFFmpegPipeline(input, config, logger)
	}
	engine.bus = newFanoutBus(config.SinkBuffer, logger, metrics)

	for _, fetcher := range fetchers {
		engine.fetchers[fetcher.Source()] = fetcher
	}

	go engine.idleSilenceLoop()

	return engine
}

// Enqueue appends a track to the shared queue and starts playback if the
// engine is idle
func (e *EngineImpl) Enqueue(payload *common.TrackPayload) (*common.Track, error) {
	const op = "radio.Engine.Enqueue"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, Errorf(KindInternal, op, "engine is shut down")
	}
	if _, ok := e.fetchers[payload.Source]; !ok {
		return nil, Errorf(KindUnsupportedURL, op, "no fetcher for source %q", payload.Source)
	}

	track := e.queue.Enqueue(*payload)
	e.metrics.RecordQueueDepth(e.queue.Size())

	e.logger.Info("Track enqueued", map[string]interface{}{
		"track_id":   track.ID,
		"title":      track.Title,
		"source":     track.Source,
		"queue_size": e.queue.Size(),
	})

	e.ensurePlayingLocked()

	return track, nil
}

// Skip abandons the current track. The cooldown makes rapid repeated skips
// collapse into one advance.
func (e *EngineImpl) Skip() error {
	const op = "radio.Engine.Skip"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Errorf(KindInternal, op, "engine is shut down")
	}

	switch e.state {
	case StateIdle:
		// Nothing to skip
		return nil
	case StateSkipping:
		// Inside the cooldown window, the scheduled advance will run
		return nil
	}

	e.logger.Info("Skipping current track", map[string]interface{}{
		"track_id": trackID(e.current),
		"state":    e.state.String(),
	})

	skipped := e.current
	e.abandonPipelineLocked()

	if skipped != nil {
		e.recordPlaybackLocked(skipped, models.OutcomeSkipped)
		e.lastPlayed = skipped
	}
	e.current = nil
	e.resetPauseLocked()
	e.setStateLocked(StateSkipping)
	e.metrics.RecordSkip()

	// Gap silence so decoders stay fed across the boundary
	e.broadcastSilenceLocked("gap")

	time.AfterFunc(e.config.SkipCooldown, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || e.state != StateSkipping {
			return
		}
		e.setStateLocked(StateIdle)
		e.playNextLocked()
	})

	return nil
}

// SetPaused pauses or resumes the broadcast clock. Pausing suspends the
// encoder subprocess and flushes a block of silence so the pause is audibly
// immediate; resuming continues the encoder.
func (e *EngineImpl) SetPaused(paused bool) error {
	const op = "radio.Engine.SetPaused"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Errorf(KindInternal, op, "engine is shut down")
	}

	if paused {
		if e.state != StatePlaying {
			return nil
		}

		e.pausedAt = time.Now()
		e.setStateLocked(StatePaused)
		e.metrics.RecordPause(true)

		if e.pipeline != nil {
			if err := e.pipeline.Suspend(); err != nil {
				// Stop signals unavailable, fall back to dropping chunks
				// to silence in the fan-out
				e.pauseBySilence = true
				e.logger.Warn("Encoder suspend failed, pausing by silence substitution", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}

		// Purge the client's forward buffer so the pause lands now
		e.bus.broadcast(PauseFlushBlock())
		e.metrics.RecordSilenceFrame("pause_flush")

		e.logger.Info("Broadcast paused", map[string]interface{}{
			"track_id": trackID(e.current),
		})
		return nil
	}

	if e.state != StatePaused {
		return nil
	}

	e.totalPaused += time.Since(e.pausedAt)
	e.pausedAt = time.Time{}
	e.setStateLocked(StatePlaying)
	e.metrics.RecordPause(false)

	if e.pipeline != nil && !e.pauseBySilence {
		if err := e.pipeline.Resume(); err != nil {
			e.logger.Error("Encoder resume failed", err, map[string]interface{}{
				"track_id": trackID(e.current),
			})
		}
	}
	e.pauseBySilence = false

	e.logger.Info("Broadcast resumed", map[string]interface{}{
		"track_id":     trackID(e.current),
		"total_paused": e.totalPaused.String(),
	})
	return nil
}

// RemoveTrack removes a queued track by id
func (e *EngineImpl) RemoveTrack(trackID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.queue.Remove(trackID)
	if removed {
		e.metrics.RecordQueueDepth(e.queue.Size())
	}
	return removed
}

// MoveTrack moves a queued track to a new position
func (e *EngineImpl) MoveTrack(trackID string, newIndex int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Move(trackID, newIndex)
}

// AttachListener registers a new listener sink and primes its decoder with
// one silence frame
func (e *EngineImpl) AttachListener() (*Listener, error) {
	const op = "radio.Engine.AttachListener"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, Errorf(KindInternal, op, "engine is shut down")
	}

	listener := e.bus.attach()
	listener.ch <- SilenceFrame()
	e.metrics.RecordListenerCount(e.bus.count())

	return listener, nil
}

// DetachListener removes a listener sink. Safe to call after eviction.
func (e *EngineImpl) DetachListener(listenerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bus.detach(listenerID) {
		e.metrics.RecordListenerCount(e.bus.count())
	}
}

// ListenerCount returns the number of attached sinks
func (e *EngineImpl) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bus.count()
}

// QueueSize returns the number of queued tracks
func (e *EngineImpl) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Size()
}

// ThumbnailURL returns the cached thumbnail for a source tag
func (e *EngineImpl) ThumbnailURL(source string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	url, ok := e.thumbnails[source]
	return url, ok && url != ""
}

// Shutdown stops playback, kills the encoder and closes every sink
func (e *EngineImpl) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)

	e.abandonPipelineLocked()
	e.current = nil
	e.lastPlayed = nil
	e.resetPauseLocked()
	e.setStateLocked(StateIdle)
	e.bus.closeAll()

	e.logger.Info("Broadcast engine shut down", map[string]interface{}{
		"queued_tracks": e.queue.Size(),
	})

	return ctx.Err()
}

// ensurePlayingLocked starts playback when idle. Idempotent: callers that
// observe any other state return immediately.
func (e *EngineImpl) ensurePlayingLocked() {
	if e.state != StateIdle {
		return
	}
	if e.queue.Size() == 0 {
		return
	}
	e.playNextLocked()
}

// playNextLocked dequeues the next track and launches its pipeline. Guarded
// against double-advance: a track already starting or playing wins.
func (e *EngineImpl) playNextLocked() {
	switch e.state {
	case StateStarting, StatePlaying, StatePaused:
		return
	}

	track := e.queue.Dequeue()
	e.metrics.RecordQueueDepth(e.queue.Size())

	if track == nil {
		// Queue fully drained, nothing to report as current anymore
		e.lastPlayed = nil
		e.setStateLocked(StateIdle)
		return
	}

	e.generation++
	generation := e.generation
	e.current = track
	e.resetPauseLocked()
	e.setStateLocked(StateStarting)

	e.logger.Info("Starting track", map[string]interface{}{
		"track_id": track.ID,
		"title":    track.Title,
		"source":   track.Source,
		"url":      SanitizeURL(track.URL),
	})

	go e.startPipeline(generation, track)
}

// startPipeline fetches the track's audio and launches its encoder. Runs
// outside the lock because a fetch can take the better part of two minutes;
// the generation check on re-entry discards the work if the engine moved on.
func (e *EngineImpl) startPipeline(generation uint64, track *common.Track) {
	fetcher := e.fetchers[track.Source]

	input, err := fetcher.Fetch(context.Background(), track)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.generation != generation || e.state != StateStarting {
		// Skipped or shut down while fetching
		if input != nil {
			input.Close()
		}
		return
	}

	if err != nil {
		e.metrics.RecordFetchFailure(track.Source)
		e.failStartLocked(track, fmt.Errorf("fetch failed: %w", err))
		return
	}

	pipeline := e.newPipeline(input, e.config, e.logger)
	if err := pipeline.Start(context.Background()); err != nil {
		input.Close()
		e.failStartLocked(track, fmt.Errorf("encoder start failed: %w", err))
		return
	}

	e.pipeline = pipeline
	go e.consumeEvents(pipeline, generation, track)

	e.firstDataTimer = time.AfterFunc(e.config.FirstDataTimeout, func() {
		e.onFirstDataTimeout(generation, track)
	})
}

// failStartLocked reports a starting-phase failure and schedules the next
// track after the failure delay
func (e *EngineImpl) failStartLocked(track *common.Track, err error) {
	e.errorHandler.LogError(err, fmt.Sprintf("starting track %s", track.ID))

	e.recordPlaybackLocked(track, models.OutcomeFailed)
	e.lastPlayed = track
	e.current = nil
	e.pipeline = nil
	e.encoderPID = 0
	e.setStateLocked(StateIdle)
	e.broadcastSilenceLocked("gap")

	e.scheduleAdvanceLocked(e.config.FailureDelay)
}

// onFirstDataTimeout destroys a pipeline that produced no audio within the
// safety window and advances
func (e *EngineImpl) onFirstDataTimeout(generation uint64, track *common.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.generation != generation || e.state != StateStarting {
		return
	}

	e.logger.Error("Encoder produced no data within safety timeout", nil, map[string]interface{}{
		"track_id": track.ID,
		"timeout":  e.config.FirstDataTimeout.String(),
	})
	e.metrics.RecordEncoderTimeout()

	e.abandonPipelineLocked()
	e.failStartLocked(track, Errorf(KindTimeout, "radio.Engine", "no encoder data within %s", e.config.FirstDataTimeout))
}

// consumeEvents drains one pipeline's event channel. Every event takes the
// engine lock, so encoder callbacks can never observe or interleave with a
// half-applied state transition.
func (e *EngineImpl) consumeEvents(pipeline EncoderPipeline, generation uint64, track *common.Track) {
	for event := range pipeline.Events() {
		e.handleEvent(generation, track, event)
	}
}

// handleEvent applies a single pipeline event under the engine lock
func (e *EngineImpl) handleEvent(generation uint64, track *common.Track, event PipelineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.generation != generation {
		// A killed pipeline drains silently
		return
	}

	switch event.Kind {
	case EventStarted:
		e.encoderPID = event.PID

	case EventData:
		e.handleDataLocked(track, event.Chunk)

	case EventEnd:
		if e.state == StateSkipping {
			return
		}
		e.finishTrackLocked(track, models.OutcomePlayed, e.config.TrackEndDelay)

	case EventError:
		if e.state == StateSkipping {
			return
		}
		e.errorHandler.LogError(event.Err, fmt.Sprintf("playing track %s", track.ID))
		e.finishTrackLocked(track, models.OutcomeFailed, e.config.FailureDelay)
	}
}

// handleDataLocked broadcasts one encoder chunk, transitioning starting to
// playing on the first one
func (e *EngineImpl) handleDataLocked(track *common.Track, chunk []byte) {
	switch e.state {
	case StateStarting:
		e.markTrackStartedLocked(track)
		e.bus.broadcast(chunk)

	case StatePlaying:
		e.bus.broadcast(chunk)

	case StatePaused:
		// Encoder still running: pause is emulated by substituting silence
		e.bus.broadcast(SilenceFrame())
		e.metrics.RecordSilenceFrame("pause")

	default:
		// Data straggling across a transition is dropped
	}
}

// markTrackStartedLocked stamps the wall-clock start on the first MP3 chunk
func (e *EngineImpl) markTrackStartedLocked(track *common.Track) {
	if e.firstDataTimer != nil {
		e.firstDataTimer.Stop()
		e.firstDataTimer = nil
	}

	now := time.Now()
	e.startedAt = now
	e.totalPaused = 0
	e.pausedAt = time.Time{}
	e.pauseBySilence = false

	startedAtMs := now.UnixMilli()
	track.StartedAt = &startedAtMs

	// Cache this source's artwork for the thumbnail proxy and drop any
	// stale entries, including this source's previous track
	for source := range e.thumbnails {
		delete(e.thumbnails, source)
	}
	if track.Thumbnail != "" {
		e.thumbnails[track.Source] = track.Thumbnail
	}

	e.setStateLocked(StatePlaying)
	e.metrics.RecordTrackStart(track.Source)

	e.logger.Info("Track playing", map[string]interface{}{
		"track_id":    track.ID,
		"title":       track.Title,
		"source":      track.Source,
		"encoder_pid": e.encoderPID,
		"listeners":   e.bus.count(),
	})
}

// finishTrackLocked closes out the current track and schedules the advance
func (e *EngineImpl) finishTrackLocked(track *common.Track, outcome string, advanceAfter time.Duration) {
	e.recordPlaybackLocked(track, outcome)

	e.lastPlayed = track
	e.current = nil
	e.pipeline = nil
	e.encoderPID = 0
	if e.firstDataTimer != nil {
		e.firstDataTimer.Stop()
		e.firstDataTimer = nil
	}
	e.resetPauseLocked()
	e.setStateLocked(StateIdle)

	// Gap silence so decoders stay fed across the boundary
	e.broadcastSilenceLocked("gap")

	e.logger.Info("Track finished", map[string]interface{}{
		"track_id": track.ID,
		"outcome":  outcome,
	})

	e.scheduleAdvanceLocked(advanceAfter)
}

// scheduleAdvanceLocked arms a one-shot advance to the next track. The state
// re-check on fire makes it safe against a concurrent ensurePlaying that got
// there first.
func (e *EngineImpl) scheduleAdvanceLocked(delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return
		}
		e.playNextLocked()
	})
}

// abandonPipelineLocked invalidates the current pipeline so its remaining
// events are stale, then kills it
func (e *EngineImpl) abandonPipelineLocked() {
	e.generation++

	if e.firstDataTimer != nil {
		e.firstDataTimer.Stop()
		e.firstDataTimer = nil
	}

	if e.pipeline != nil {
		e.pipeline.Kill()
		e.pipeline = nil
	}
	e.encoderPID = 0
}

// recordPlaybackLocked persists one playback journal row
func (e *EngineImpl) recordPlaybackLocked(track *common.Track, outcome string) {
	playedSeconds := e.audibleSecondsLocked()
	e.metrics.RecordTrackEnd(track.Source, outcome, playedSeconds)

	record := &models.PlaybackRecord{
		ID:           uuid.New(),
		TrackID:      track.ID,
		Source:       track.Source,
		URL:          track.URL,
		Title:        track.Title,
		RequestedBy:  track.RequestedBy.ID,
		FinishedAt:   time.Now(),
		DurationSecs: playedSeconds,
		Outcome:      outcome,
	}
	if !e.startedAt.IsZero() {
		record.StartedAt = e.startedAt
	} else {
		record.StartedAt = time.Now()
	}

	// Persisted off the hot path, a failed insert never stalls playback
	go func() {
		if err := e.history.SavePlayback(record); err != nil {
			e.logger.Warn("Failed to save playback record", map[string]interface{}{
				"track_id": record.TrackID,
				"error":    err.Error(),
			})
		}
	}()
}

// audibleSecondsLocked returns how many seconds of the current track
// listeners actually heard
func (e *EngineImpl) audibleSecondsLocked() float64 {
	if e.startedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(e.startedAt) - e.totalPaused
	if e.state == StatePaused && !e.pausedAt.IsZero() {
		elapsed -= time.Since(e.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Seconds()
}

// resetPauseLocked clears the pause bookkeeping and start stamp
func (e *EngineImpl) resetPauseLocked() {
	e.startedAt = time.Time{}
	e.pausedAt = time.Time{}
	e.totalPaused = 0
	e.pauseBySilence = false
}

// setStateLocked applies a state transition and records it
func (e *EngineImpl) setStateLocked(state EngineState) {
	if e.state == state {
		return
	}

	e.logger.Debug("Engine state transition", map[string]interface{}{
		"from": e.state.String(),
		"to":   state.String(),
	})

	e.state = state
	e.metrics.RecordStateChange(state)
}

// broadcastSilenceLocked emits one silence frame to every sink
func (e *EngineImpl) broadcastSilenceLocked(kind string) {
	if e.bus.count() == 0 {
		return
	}
	e.bus.broadcast(SilenceFrame())
	e.metrics.RecordSilenceFrame(kind)
}

// idleSilenceLoop feeds listener decoders while no real audio is flowing.
// Anything except actively playing gets the keepalive cadence; while paused
// this is also what makes the silence continuous.
func (e *EngineImpl) idleSilenceLoop() {
	ticker := time.NewTicker(IdleSilenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.closed && e.state != StatePlaying && e.bus.count() > 0 {
				e.bus.broadcast(SilenceFrame())
				e.metrics.RecordSilenceFrame("idle")
			}
			e.mu.Unlock()
		}
	}
}

func trackID(track *common.Track) string {
	if track == nil {
		return ""
	}
	return track.ID
}
