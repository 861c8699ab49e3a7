package radio

import (
	"context"
	"io"
	"time"

	"github.com/hibikilabs/hibiki/pkg/common"
)

// EngineState represents the current state of the broadcast engine
type EngineState int

const (
	StateIdle EngineState = iota
	StateStarting
	StatePlaying
	StatePaused
	StateSkipping
)

// String returns the string representation of the engine state
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSkipping:
		return "skipping"
	default:
		return "unknown"
	}
}

// EventKind identifies the pipeline event type
type EventKind int

const (
	EventStarted EventKind = iota
	EventData
	EventEnd
	EventError
)

// String returns the string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PipelineEvent is a message emitted by an encoder pipeline and consumed by
// the engine. Exactly one terminal event (end or error) is emitted per
// pipeline, after which the event channel closes.
type PipelineEvent struct {
	Kind  EventKind
	PID   int
	Chunk []byte
	Err   error
}

// AudioInput is the handoff between a source fetcher and the encoder. It is
// either a readable byte stream the encoder consumes from its input pipe, or
// a remote URL plus headers the encoder opens itself.
type AudioInput struct {
	Stream  io.ReadCloser
	URL     string
	Headers map[string]string
	HLS     bool
}

// NewStreamInput wraps a raw audio byte stream
func NewStreamInput(stream io.ReadCloser) *AudioInput {
	return &AudioInput{Stream: stream}
}

// NewRemoteInput wraps a remote URL the encoder opens itself
func NewRemoteInput(url string, headers map[string]string, hls bool) *AudioInput {
	return &AudioInput{URL: url, Headers: headers, HLS: hls}
}

// IsStream reports whether the input carries a byte stream
func (in *AudioInput) IsStream() bool {
	return in.Stream != nil
}

// Close releases the underlying stream if one is held
func (in *AudioInput) Close() error {
	if in.Stream != nil {
		return in.Stream.Close()
	}
	return nil
}

// EncoderPipeline converts one AudioInput into a paced 128 kbps MP3 byte
// stream, reported through Events
type EncoderPipeline interface {
	// Start launches the encoder subprocess and the event pump
	Start(ctx context.Context) error

	// Events returns the channel of pipeline events. Closed after the
	// terminal event.
	Events() <-chan PipelineEvent

	// Suspend freezes encoding without closing pipes
	Suspend() error

	// Resume continues a suspended encoder
	Resume() error

	// Kill terminates the subprocess immediately
	Kill()

	// PID returns the subprocess id, 0 before Start
	PID() int
}

// SourceFetcher resolves a track URL into an AudioInput
type SourceFetcher interface {
	// Fetch produces the audio input for a track. The context carries the
	// startup timeout.
	Fetch(ctx context.Context, track *common.Track) (*AudioInput, error)

	// Source returns the source tag this fetcher serves
	Source() string
}

// BroadcastEngine is the server-authoritative radio: one shared queue, one
// encoder at a time, all listeners hearing the same bytes
type BroadcastEngine interface {
	// Enqueue appends a track and starts playback if the engine is idle
	Enqueue(payload *common.TrackPayload) (*common.Track, error)

	// Skip abandons the current track and advances
	Skip() error

	// SetPaused pauses or resumes the broadcast clock
	SetPaused(paused bool) error

	// RemoveTrack removes a queued track by id
	RemoveTrack(trackID string) bool

	// MoveTrack moves a queued track to a new position
	MoveTrack(trackID string, newIndex int) bool

	// Snapshot returns the wire-shaped stream state
	Snapshot() *StreamState

	// AttachListener registers a new listener sink
	AttachListener() (*Listener, error)

	// DetachListener removes a listener sink by id
	DetachListener(listenerID string)

	// ListenerCount returns the number of attached sinks
	ListenerCount() int

	// QueueSize returns the number of queued tracks
	QueueSize() int

	// ThumbnailURL returns the cached thumbnail for a source, if any
	ThumbnailURL(source string) (string, bool)

	// Shutdown stops playback, kills the encoder and closes all sinks
	Shutdown(ctx context.Context) error
}

// ErrorHandler defines the interface for error handling and retry logic
type ErrorHandler interface {
	// HandleError processes an error and determines retry behavior
	HandleError(err error, context string) (shouldRetry bool, delay time.Duration)

	// LogError logs an error to the console and the stream-error journal
	LogError(err error, context string)

	// IsRetryableError determines if an error should trigger a retry
	IsRetryableError(err error) bool

	// GetRetryDelay calculates the delay for a retry attempt
	GetRetryDelay(attempt int) time.Duration

	// GetMaxRetries returns the maximum number of retry attempts
	GetMaxRetries() int

	// ShouldRetryAfterAttempts determines if retrying should continue
	ShouldRetryAfterAttempts(attempts int, err error) bool
}

// MetricsCollector defines the interface for engine instrumentation
type MetricsCollector interface {
	RecordTrackStart(source string)
	RecordTrackEnd(source, outcome string, playedSeconds float64)
	RecordFetchFailure(source string)
	RecordEncoderTimeout()
	RecordBroadcastBytes(n int)
	RecordSilenceFrame(kind string)
	RecordListenerCount(n int)
	RecordListenerEvicted()
	RecordQueueDepth(n int)
	RecordStateChange(state EngineState)
	RecordSkip()
	RecordPause(paused bool)
}

// ConfigProvider supplies the engine's configuration sections
type ConfigProvider interface {
	GetPipelineConfig() *PipelineConfig
	GetRetryConfig() *RetryConfig
	GetSourceConfig() *SourceConfig
	GetLoggerConfig() *LoggerConfig
	Validate() error
	ValidateDependencies() error
}
