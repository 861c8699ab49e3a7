package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hibikilabs/hibiki/internal/config"
	"github.com/hibikilabs/hibiki/internal/session"
	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/metadata"
	"github.com/hibikilabs/hibiki/pkg/radio"
	"github.com/hibikilabs/hibiki/pkg/thumbnail"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLoggerFactory(&nopLoggerFactory{})
	os.Exit(m.Run())
}

type nopLogger struct{}

func (nopLogger) Info(msg string, fields map[string]interface{})             {}
func (nopLogger) Warn(msg string, fields map[string]interface{})             {}
func (nopLogger) Debug(msg string, fields map[string]interface{})            {}
func (nopLogger) Error(msg string, err error, fields map[string]interface{}) {}
func (nopLogger) WithPipeline(pipeline string) logging.Logger                { return nopLogger{} }
func (nopLogger) WithContext(ctx map[string]interface{}) logging.Logger      { return nopLogger{} }

type nopLoggerFactory struct{}

func (nopLoggerFactory) CreateLogger(component string) logging.Logger     { return nopLogger{} }
func (nopLoggerFactory) CreateEngineLogger() logging.Logger               { return nopLogger{} }
func (nopLoggerFactory) CreateFetcherLogger(source string) logging.Logger { return nopLogger{} }
func (nopLoggerFactory) CreateRequestLogger(route string) logging.Logger  { return nopLogger{} }

// recordingLogger keeps error messages so middleware tests can assert on them
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{})  {}
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *recordingLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
func (l *recordingLogger) WithPipeline(pipeline string) logging.Logger           { return l }
func (l *recordingLogger) WithContext(ctx map[string]interface{}) logging.Logger { return l }

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

type moveCall struct {
	trackID string
	index   int
}

// fakeEngine satisfies radio.BroadcastEngine with canned answers and a call
// record, so handler behavior is tested without encoder machinery
type fakeEngine struct {
	mu sync.Mutex

	enqueued   []*common.TrackPayload
	enqueueErr error

	skipCalls int
	skipErr   error

	pauseCalls []bool
	pauseErr   error
	paused     bool

	removed  []string
	removeOK bool

	moved  []moveCall
	moveOK bool

	snapshot *radio.StreamState

	attachErr error

	listeners int
	queueSize int
	thumbs    map[string]string
}

func (f *fakeEngine) Enqueue(payload *common.TrackPayload) (*common.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}

	f.enqueued = append(f.enqueued, payload)
	return &common.Track{
		ID:          fmt.Sprintf("track-%d", len(f.enqueued)),
		Title:       payload.Title,
		URL:         payload.URL,
		Thumbnail:   payload.Thumbnail,
		Duration:    payload.Duration,
		Source:      payload.Source,
		RequestedBy: payload.RequestedBy,
		AddedAt:     time.Now(),
	}, nil
}

func (f *fakeEngine) Skip() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipCalls++
	return f.skipErr
}

func (f *fakeEngine) SetPaused(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.pauseCalls = append(f.pauseCalls, paused)
	f.paused = paused
	return nil
}

func (f *fakeEngine) RemoveTrack(trackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, trackID)
	return f.removeOK
}

func (f *fakeEngine) MoveTrack(trackID string, newIndex int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, moveCall{trackID: trackID, index: newIndex})
	return f.moveOK
}

func (f *fakeEngine) Snapshot() *radio.StreamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot != nil {
		return f.snapshot
	}
	return &radio.StreamState{
		Queue:     []*common.Track{},
		Listeners: f.listeners,
		Paused:    f.paused,
	}
}

func (f *fakeEngine) AttachListener() (*radio.Listener, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.attachErr
}

func (f *fakeEngine) DetachListener(listenerID string) {}

func (f *fakeEngine) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listeners
}

func (f *fakeEngine) QueueSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueSize
}

func (f *fakeEngine) ThumbnailURL(source string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.thumbs[source]
	return url, ok
}

func (f *fakeEngine) Shutdown(ctx context.Context) error { return nil }

// fakeResolver satisfies metadata.Resolver with one canned answer
type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	info  *metadata.TrackInfo
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, source, rawURL string) (*metadata.TrackInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeHistory satisfies repository.HistoryRepository in memory
type fakeHistory struct {
	mu        sync.Mutex
	playbacks []models.PlaybackRecord
	limits    []int
	queryErr  error
}

func (f *fakeHistory) SavePlayback(record *models.PlaybackRecord) error        { return nil }
func (f *fakeHistory) SaveError(streamError *models.StreamError) error         { return nil }
func (f *fakeHistory) SaveListenerSample(sample *models.ListenerSample) error  { return nil }
func (f *fakeHistory) RecentErrors(limit int) ([]models.StreamError, error)    { return nil, nil }
func (f *fakeHistory) GetPlaybackStats() (*repository.PlaybackStats, error)    { return nil, nil }
func (f *fakeHistory) PruneBefore(cutoff time.Time) (int64, error)             { return 0, nil }

func (f *fakeHistory) RecentPlaybacks(limit int) ([]models.PlaybackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if limit > len(f.playbacks) {
		limit = len(f.playbacks)
	}
	return f.playbacks[:limit], nil
}

type envOptions struct {
	engine     radio.BroadcastEngine
	allowedIDs []string
	adminIDs   []string
	rateLimit  int
}

type testEnv struct {
	engine   *fakeEngine
	resolver *fakeResolver
	history  *fakeHistory
	sessions *session.Manager
	server   *Server
	handler  http.Handler
}

// newTestEnv builds a Server with fakes behind the full router, so every
// request in these tests passes through the real middleware stack
func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	if opts.rateLimit == 0 {
		opts.rateLimit = 100
	}

	fake := &fakeEngine{thumbs: map[string]string{}}
	var engine radio.BroadcastEngine = fake
	if opts.engine != nil {
		engine = opts.engine
		fake = nil
	}

	resolver := &fakeResolver{
		info: &metadata.TrackInfo{
			Title:        "Night Drive",
			DurationSecs: 212,
			Thumbnail:    "https://img.example/night-drive.jpg",
		},
	}
	history := &fakeHistory{}
	sessions := session.NewManager("handlers-test-secret", false, nopLogger{})

	server := NewServer(Options{
		Engine:   engine,
		Resolver: resolver,
		Thumbs:   thumbnail.NewProxy(engine, nopLogger{}),
		Sessions: sessions,
		Policy:   session.NewPolicy(opts.allowedIDs, opts.adminIDs),
		History:  history,
		Config: &config.Config{
			Port:                 "0",
			ClientOrigin:         "http://radio.test",
			SessionSecret:        "handlers-test-secret",
			RateLimitRequests:    opts.rateLimit,
			RateLimitWindow:      time.Minute,
			HistoryRetentionDays: 30,
		},
		Logger: nopLogger{},
	})

	return &testEnv{
		engine:   fake,
		resolver: resolver,
		history:  history,
		sessions: sessions,
		server:   server,
		handler:  server.Router(),
	}
}

// login mints a session cookie the way the external relying party would
func (env *testEnv) login(t *testing.T, id, displayName string) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := env.sessions.SaveIdentity(rec, req, &session.Identity{
		ID:          id,
		DisplayName: displayName,
	})
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "SaveIdentity set no cookie")
	return cookies[0]
}

func (env *testEnv) request(t *testing.T, method, target string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
