package logging

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordedEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]interface{}
}

// recordingLogger captures every call for assertions
type recordingLogger struct {
	mu      sync.Mutex
	entries []recordedEntry
}

func (l *recordingLogger) record(level, msg string, err error, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedEntry{level: level, msg: msg, err: err, fields: fields})
}

func (l *recordingLogger) Info(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, nil, fields)
}

func (l *recordingLogger) Warn(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, nil, fields)
}

func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.record("ERROR", msg, err, fields)
}

func (l *recordingLogger) WithPipeline(pipeline string) Logger           { return l }
func (l *recordingLogger) WithContext(ctx map[string]interface{}) Logger { return l }

func (l *recordingLogger) last(t *testing.T) recordedEntry {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		t.Fatal("no log entries recorded")
	}
	return l.entries[len(l.entries)-1]
}

func (l *recordingLogger) find(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.msg == msg {
			return true
		}
	}
	return false
}

// channelRepository delivers persisted entries to the test goroutine
type channelRepository struct {
	entries chan LogEntry
	err     error
}

func newChannelRepository() *channelRepository {
	return &channelRepository{entries: make(chan LogEntry, 16)}
}

func (r *channelRepository) SaveLog(entry LogEntry) error {
	r.entries <- entry
	return r.err
}

func (r *channelRepository) await(t *testing.T) LogEntry {
	t.Helper()
	select {
	case entry := <-r.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("no log entry persisted within 2s")
		return LogEntry{}
	}
}

func TestDatabaseLoggerPersistsErrors(t *testing.T) {
	base := &recordingLogger{}
	repo := newChannelRepository()
	logger := NewDatabaseLogger(base, "radio", repo)

	logger.Error("Broadcast pipeline error occurred", errors.New("ffmpeg exited"), map[string]interface{}{
		"track_id": "t-1",
		"source":   "youtube",
	})

	entry := repo.await(t)
	if entry.Level != "ERROR" {
		t.Errorf("level = %q", entry.Level)
	}
	if entry.Component != "radio" {
		t.Errorf("component = %q", entry.Component)
	}
	if entry.Message != "Broadcast pipeline error occurred" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Error != "ffmpeg exited" {
		t.Errorf("error = %q", entry.Error)
	}
	if entry.TrackID != "t-1" || entry.Source != "youtube" {
		t.Errorf("track context not lifted: track_id=%q source=%q", entry.TrackID, entry.Source)
	}

	// The base logger still saw the call
	if got := base.last(t); got.level != "ERROR" {
		t.Errorf("base level = %q", got.level)
	}
}

func TestDatabaseLoggerPersistsWarnings(t *testing.T) {
	repo := newChannelRepository()
	logger := NewDatabaseLogger(&recordingLogger{}, "fetch", repo)

	logger.Warn("In-process fetch failed, falling back to fetcher subprocess", nil)

	entry := repo.await(t)
	if entry.Level != "WARN" {
		t.Errorf("level = %q", entry.Level)
	}
	if entry.Error != "" {
		t.Errorf("warning carries error %q", entry.Error)
	}
}

func TestDatabaseLoggerSkipsInfoAndDebug(t *testing.T) {
	repo := newChannelRepository()
	logger := NewDatabaseLogger(&recordingLogger{}, "radio", repo)

	logger.Info("Track started", nil)
	logger.Debug("FFmpeg stderr", nil)

	select {
	case entry := <-repo.entries:
		t.Errorf("info/debug persisted: %+v", entry)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDatabaseLoggerNilRepository(t *testing.T) {
	base := &recordingLogger{}
	logger := NewDatabaseLogger(base, "radio", nil)

	logger.Error("boom", errors.New("x"), nil)
	logger.Warn("careful", nil)

	if got := base.last(t); got.msg != "careful" {
		t.Errorf("base logging broken without repository: %q", got.msg)
	}
}

func TestDatabaseLoggerReportsSaveFailure(t *testing.T) {
	base := &recordingLogger{}
	repo := newChannelRepository()
	repo.err = errors.New("connection refused")
	logger := NewDatabaseLogger(base, "radio", repo)

	logger.Warn("disk almost full", nil)
	repo.await(t)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if base.find("Failed to persist log entry") {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("save failure never reported to the base logger")
}

func TestDatabaseLoggerWithPipelineKeepsPersistence(t *testing.T) {
	repo := newChannelRepository()
	logger := NewDatabaseLogger(&recordingLogger{}, "radio", repo).WithPipeline("encoder")

	logger.Warn("slow start", nil)

	entry := repo.await(t)
	if entry.Component != "radio" {
		t.Errorf("component = %q", entry.Component)
	}
}

func TestFactoryCachesLoggersPerComponent(t *testing.T) {
	factory := NewLoggerFactory()

	first := factory.CreateLogger("queue")
	second := factory.CreateLogger("queue")
	other := factory.CreateLogger("radio")

	if first != second {
		t.Error("same component produced different loggers")
	}
	if first == other {
		t.Error("different components share a logger")
	}
}

func TestDatabaseFactoryWrapsWithPersistence(t *testing.T) {
	repo := newChannelRepository()
	factory := NewDatabaseLoggerFactory(repo)

	logger := factory.CreateLogger("radio")
	if _, ok := logger.(*DatabaseLogger); !ok {
		t.Fatalf("factory produced %T, want *DatabaseLogger", logger)
	}
	if again := factory.CreateLogger("radio"); again != logger {
		t.Error("database factory lost its cache")
	}
}

func TestPipelineLoggerEnrichesFields(t *testing.T) {
	base := &recordingLogger{}
	logger := NewPipelineLogger(base, "fetcher-youtube")

	logger.Info("started", map[string]interface{}{"attempt": 1})

	got := base.last(t)
	if got.msg != "[fetcher-youtube] started" {
		t.Errorf("message = %q", got.msg)
	}
	if got.fields["pipeline"] != "fetcher-youtube" {
		t.Errorf("pipeline field = %v", got.fields["pipeline"])
	}
	if got.fields["attempt"] != 1 {
		t.Errorf("caller field lost: %v", got.fields)
	}
}

func TestPipelineLoggerContextAccumulates(t *testing.T) {
	base := &recordingLogger{}
	root := NewPipelineLogger(base, "engine")

	enriched := root.WithContext(map[string]interface{}{"track_id": "t-1"}).
		WithContext(map[string]interface{}{"url": "https://example.com"})
	enriched.Warn("stall", nil)

	got := base.last(t)
	if got.fields["track_id"] != "t-1" || got.fields["url"] != "https://example.com" {
		t.Errorf("context not accumulated: %v", got.fields)
	}

	// The root logger's context stays untouched
	root.Info("clean", nil)
	if got := base.last(t); got.fields["track_id"] != nil {
		t.Errorf("root context polluted: %v", got.fields)
	}
}

func TestStreamLoggerTrackContext(t *testing.T) {
	base := &recordingLogger{}
	logger := NewStreamLogger(base)

	logger.WithTrack("t-9", "Night Drive").Info("Track started", nil)

	got := base.last(t)
	if got.msg != "[engine] Track started" {
		t.Errorf("message = %q", got.msg)
	}
	if got.fields["track_id"] != "t-9" || got.fields["title"] != "Night Drive" {
		t.Errorf("track context missing: %v", got.fields)
	}
}

func TestRequestLoggerCarriesRouteAndRequest(t *testing.T) {
	base := &recordingLogger{}
	logger := NewRequestLogger(base, "/api/queue")

	logger.WithRequest("POST", "req-42").Info("Track enqueued", nil)

	got := base.last(t)
	if got.fields["route"] != "/api/queue" {
		t.Errorf("route = %v", got.fields["route"])
	}
	if got.fields["method"] != "POST" || got.fields["request_id"] != "req-42" {
		t.Errorf("request context missing: %v", got.fields)
	}
	if got.fields["pipeline"] != "http" {
		t.Errorf("pipeline = %v", got.fields["pipeline"])
	}
}
