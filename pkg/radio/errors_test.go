package radio

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindUnsupportedURL, http.StatusUnprocessableEntity},
		{KindFeatureDisabled, http.StatusServiceUnavailable},
		{KindUpstreamFailure, http.StatusBadGateway},
		{KindTimeout, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestKindOfUnwrapsThroughChains(t *testing.T) {
	base := Errorf(KindUnsupportedURL, "radio.test", "playlists are not supported")
	wrapped := fmt.Errorf("enqueue failed: %w", base)
	doubleWrapped := fmt.Errorf("handler: %w", wrapped)

	if got := KindOf(doubleWrapped); got != KindUnsupportedURL {
		t.Errorf("KindOf(wrapped) = %s, want %s", got, KindUnsupportedURL)
	}
	if got := HTTPStatusOf(doubleWrapped); got != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatusOf(wrapped) = %d, want 422", got)
	}

	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %s, want %s", got, KindInternal)
	}
	if got := KindOf(nil); got != KindInternal {
		t.Errorf("KindOf(nil) = %s, want %s", got, KindInternal)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindTimeout, "radio.Engine", errors.New("no data"))
	want := "radio.Engine: timeout: no data"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &Error{Kind: KindNotFound, Op: "radio.lookup"}
	if bare.Error() != "radio.lookup: not_found" {
		t.Errorf("Error() without cause = %q", bare.Error())
	}

	if !errors.Is(err, err.Err) {
		t.Error("Unwrap does not expose the cause")
	}
}

func testRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

func TestExponentialBackoff(t *testing.T) {
	handler := NewBasicErrorHandler(testRetryConfig(), newTestLogger(), repository.NewNopHistoryRepository())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{0, 2 * time.Second},  // clamped to the first attempt
	}

	for _, tt := range tests {
		if got := handler.GetRetryDelay(tt.attempt); got != tt.want {
			t.Errorf("GetRetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	handler := NewBasicErrorHandler(testRetryConfig(), newTestLogger(), repository.NewNopHistoryRepository())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout kind", Errorf(KindTimeout, "op", "no data"), true},
		{"upstream kind", Errorf(KindUpstreamFailure, "op", "resolve returned status 502"), true},
		{"unsupported kind", Errorf(KindUnsupportedURL, "op", "playlist"), false},
		{"feature disabled kind", Errorf(KindFeatureDisabled, "op", "no client id"), false},
		{"not found kind", Errorf(KindNotFound, "op", "gone"), false},
		{"connection refused", errors.New("dial tcp 1.2.3.4:443: connection refused"), true},
		{"broken pipe", errors.New("write |1: broken pipe"), true},
		{"rate limited fetch", errors.New("HTTP Error 429: Too Many Requests"), true},
		{"plain failure", errors.New("unparseable response"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handler.IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestShouldRetryAfterAttempts(t *testing.T) {
	handler := NewBasicErrorHandler(testRetryConfig(), newTestLogger(), repository.NewNopHistoryRepository())
	retryable := Errorf(KindTimeout, "op", "slow upstream")

	if !handler.ShouldRetryAfterAttempts(1, retryable) {
		t.Error("first retry of a retryable error refused")
	}
	if handler.ShouldRetryAfterAttempts(3, retryable) {
		t.Error("retrying continued past max_retries")
	}
	if handler.ShouldRetryAfterAttempts(1, Errorf(KindUnsupportedURL, "op", "playlist")) {
		t.Error("non-retryable error retried")
	}
	if got := handler.GetMaxRetries(); got != 3 {
		t.Errorf("GetMaxRetries() = %d, want 3", got)
	}
}

// captureRepository records stream errors handed to the journal
type captureRepository struct {
	repository.HistoryRepository
	mu     sync.Mutex
	errors []*models.StreamError
}

func newCaptureRepository() *captureRepository {
	return &captureRepository{HistoryRepository: repository.NewNopHistoryRepository()}
}

func (r *captureRepository) SaveError(streamError *models.StreamError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, streamError)
	return nil
}

func (r *captureRepository) saved() []*models.StreamError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.StreamError(nil), r.errors...)
}

func TestLogErrorPersistsToJournal(t *testing.T) {
	repo := newCaptureRepository()
	logger := newTestLogger()
	handler := NewBasicErrorHandler(testRetryConfig(), logger, repo)

	handler.LogError(Errorf(KindUpstreamFailure, "radio.fetch", "resolve returned status 502"), "starting track abc")

	saved := repo.saved()
	if len(saved) != 1 {
		t.Fatalf("journal received %d errors, want 1", len(saved))
	}
	record := saved[0]
	if record.Component != "radio" || record.Level != "ERROR" {
		t.Errorf("record component/level = %s/%s", record.Component, record.Level)
	}
	if record.Message != "starting track abc" {
		t.Errorf("record message = %q", record.Message)
	}
	if record.Fields["error_type"] != "upstream_failure" {
		t.Errorf("record error_type = %v, want upstream_failure", record.Fields["error_type"])
	}
	if !logger.contains("Broadcast pipeline error occurred") {
		t.Error("error was not logged")
	}
}

func TestHandleErrorReportsRetryDecision(t *testing.T) {
	handler := NewBasicErrorHandler(testRetryConfig(), newTestLogger(), repository.NewNopHistoryRepository())

	shouldRetry, delay := handler.HandleError(Errorf(KindTimeout, "op", "no data"), "pipeline")
	if !shouldRetry {
		t.Error("timeout not marked for retry")
	}
	if delay != 2*time.Second {
		t.Errorf("first retry delay = %v, want 2s", delay)
	}

	shouldRetry, delay = handler.HandleError(Errorf(KindUnsupportedURL, "op", "playlist"), "enqueue")
	if shouldRetry || delay != 0 {
		t.Errorf("unsupported url retry = %v/%v, want false/0", shouldRetry, delay)
	}
}
