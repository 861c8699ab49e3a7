package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

// newStreamEngine builds a real broadcast engine with no fetchers. Listener
// attachment, the priming frame and the idle keepalive all work without any
// track playing, which is exactly what the stream handler tests need.
func newStreamEngine(t *testing.T) *radio.EngineImpl {
	t.Helper()

	cfg := *radio.DefaultPipelineConfig
	cfg.SinkBuffer = 16

	history := repository.NewNopHistoryRepository()
	engine := radio.NewEngine(
		common.NewTrackQueue(),
		nil,
		&cfg,
		radio.NewBasicErrorHandler(radio.DefaultRetryConfig, nopLogger{}, history),
		radio.NewNopMetrics(),
		history,
		nopLogger{},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})
	return engine
}

func TestStreamDeliversPrimedKeepalive(t *testing.T) {
	engine := newStreamEngine(t)
	env := newTestEnv(t, envOptions{engine: engine})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(rec, req)
		close(done)
	}()

	waitUntil(t, time.Second, func() bool { return engine.ListenerCount() == 1 })

	// Nothing is playing, so everything reaching the client is keepalive
	// silence. Give the 50ms ticker room for a few emissions.
	time.Sleep(150 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "audio/mpeg", res.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))

	frame := radio.SilenceFrame()
	body := rec.Body.Bytes()
	require.NotEmpty(t, body)
	assert.True(t, bytes.HasPrefix(body, frame), "stream does not open with the priming frame")
	assert.Zero(t, len(body)%len(frame), "stream carries partial silence frames")
	assert.GreaterOrEqual(t, len(body)/len(frame), 2, "keepalive frames missing behind the priming frame")

	// The deferred detach ran before the handler returned
	assert.Zero(t, engine.ListenerCount())
}

func TestStreamEndsOnEngineShutdown(t *testing.T) {
	engine := newStreamEngine(t)
	env := newTestEnv(t, envOptions{engine: engine})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(rec, req)
		close(done)
	}()

	waitUntil(t, time.Second, func() bool { return engine.ListenerCount() == 1 })

	ctx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
	defer cancelShutdown()
	require.NoError(t, engine.Shutdown(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not return after engine shutdown")
	}

	assert.Equal(t, http.StatusOK, rec.Result().StatusCode)
}

func TestStreamAttachFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.engine.attachErr = radio.Errorf(radio.KindInternal, "radio.Engine.AttachListener", "engine is shut down")

	rec := env.request(t, http.MethodGet, "/stream", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// plainWriter deliberately does not implement http.Flusher
type plainWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *plainWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *plainWriter) WriteHeader(status int)      { w.status = status }
func (w *plainWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func TestStreamRejectsNonFlushingWriter(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := &plainWriter{}
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	env.server.handleStream(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.status)
	assert.Zero(t, env.engine.ListenerCount(), "listener attached despite unusable writer")
}
