package radio

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// Kind classifies failures for HTTP mapping and recovery policy
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindUnsupportedURL
	KindFeatureDisabled
	KindUpstreamFailure
	KindTimeout
)

// String returns the string representation of the error kind
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnsupportedURL:
		return "unsupported_url"
	case KindFeatureDisabled:
		return "feature_disabled"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to its response status code
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnsupportedURL:
		return http.StatusUnprocessableEntity
	case KindFeatureDisabled:
		return http.StatusServiceUnavailable
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindTimeout, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure carrying the operation that produced it
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error from a format string
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain, defaulting to internal
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// HTTPStatusOf maps any error to a response status code
func HTTPStatusOf(err error) int {
	return KindOf(err).HTTPStatus()
}

// BasicErrorHandler implements the ErrorHandler interface with retry logic
// and persistence of pipeline failures
type BasicErrorHandler struct {
	retryConfig *RetryConfig
	logger      logging.Logger
	repository  repository.HistoryRepository
}

// NewBasicErrorHandler creates a new BasicErrorHandler instance
func NewBasicErrorHandler(config *RetryConfig, logger logging.Logger, repo repository.HistoryRepository) ErrorHandler {
	return &BasicErrorHandler{
		retryConfig: config,
		logger:      logger.WithPipeline("error-handler"),
		repository:  repo,
	}
}

// HandleError processes an error and determines if it should be retried and with what delay
func (h *BasicErrorHandler) HandleError(err error, context string) (shouldRetry bool, delay time.Duration) {
	h.LogError(err, context)

	if !h.IsRetryableError(err) {
		h.logger.Info("Error is not retryable, skipping retry logic", map[string]interface{}{
			"error":      err.Error(),
			"context":    context,
			"error_type": h.classifyErrorType(err),
		})
		return false, 0
	}

	delay = h.calculateExponentialBackoff(1)

	h.logger.Info("Error is retryable, will attempt retry", map[string]interface{}{
		"error":       err.Error(),
		"context":     context,
		"error_type":  h.classifyErrorType(err),
		"retry_delay": delay.String(),
		"max_retries": h.retryConfig.MaxRetries,
	})

	return true, delay
}

// LogError logs an error to the console and the stream-error journal
func (h *BasicErrorHandler) LogError(err error, context string) {
	errorType := h.classifyErrorType(err)

	h.logger.Error("Broadcast pipeline error occurred", err, map[string]interface{}{
		"error_type": errorType,
		"context":    context,
		"retryable":  h.IsRetryableError(err),
	})

	if h.repository != nil {
		record := &models.StreamError{
			ID:        uuid.New(),
			Component: "radio",
			Level:     "ERROR",
			Message:   context,
			Error:     err.Error(),
			Fields: map[string]interface{}{
				"error_type": errorType,
			},
			Timestamp: time.Now(),
		}
		if saveErr := h.repository.SaveError(record); saveErr != nil {
			h.logger.Warn("Failed to save error to journal", map[string]interface{}{
				"save_error":     saveErr.Error(),
				"original_error": err.Error(),
			})
		}
	}
}

// IsRetryableError determines whether a failure is worth another attempt
func (h *BasicErrorHandler) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var classified *Error
	if errors.As(err, &classified) {
		switch classified.Kind {
		case KindUnsupportedURL, KindFeatureDisabled, KindBadRequest, KindForbidden, KindUnauthenticated, KindNotFound:
			return false
		case KindTimeout, KindUpstreamFailure:
			return true
		}
	}

	if isNetworkError(err) {
		return true
	}
	if isProcessError(err) {
		return true
	}

	errorStr := strings.ToLower(err.Error())
	if isFetcherRetryableError(errorStr) {
		return true
	}
	if isEncoderRetryableError(errorStr) {
		return true
	}

	return false
}

// GetRetryDelay calculates the delay for a specific retry attempt number
func (h *BasicErrorHandler) GetRetryDelay(attempt int) time.Duration {
	return h.calculateExponentialBackoff(attempt)
}

// GetMaxRetries returns the maximum number of retries configured
func (h *BasicErrorHandler) GetMaxRetries() int {
	return h.retryConfig.MaxRetries
}

// ShouldRetryAfterAttempts determines if retrying should continue after a given number of attempts
func (h *BasicErrorHandler) ShouldRetryAfterAttempts(attempts int, err error) bool {
	if attempts >= h.retryConfig.MaxRetries {
		h.logger.Info("Maximum retry attempts reached", map[string]interface{}{
			"attempts":    attempts,
			"max_retries": h.retryConfig.MaxRetries,
			"final_error": err.Error(),
			"error_type":  h.classifyErrorType(err),
		})
		return false
	}

	return h.IsRetryableError(err)
}

// calculateExponentialBackoff computes the delay for the given attempt
func (h *BasicErrorHandler) calculateExponentialBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := float64(h.retryConfig.BaseDelay) * math.Pow(h.retryConfig.Multiplier, float64(attempt-1))
	if delay > float64(h.retryConfig.MaxDelay) {
		return h.retryConfig.MaxDelay
	}

	return time.Duration(delay)
}

// classifyErrorType buckets an error for journal rows and log fields
func (h *BasicErrorHandler) classifyErrorType(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind.String()
	}

	errorStr := strings.ToLower(err.Error())

	if isNetworkError(err) {
		return "network"
	}
	if isProcessError(err) {
		return "process"
	}
	if strings.Contains(errorStr, "yt-dlp") || strings.Contains(errorStr, "fetch") {
		return "fetcher"
	}
	if strings.Contains(errorStr, "ffmpeg") || strings.Contains(errorStr, "encoder") {
		return "encoder"
	}
	if strings.Contains(errorStr, "config") || strings.Contains(errorStr, "invalid") {
		return "configuration"
	}

	return "unknown"
}

// Helper functions for error classification

// isNetworkError checks if an error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errorStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"network unreachable",
		"host unreachable",
		"no route to host",
		"temporary failure",
		"timeout",
		"dial tcp",
		"i/o timeout",
		"connection aborted",
		"broken pipe",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errorStr, pattern) {
			return true
		}
	}

	return false
}

// isProcessError checks if an error is process-related
func isProcessError(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR:
			return true
		}
	}

	errorStr := strings.ToLower(err.Error())
	processPatterns := []string{
		"process killed",
		"process terminated",
		"signal: killed",
		"signal: terminated",
		"exit status",
	}

	for _, pattern := range processPatterns {
		if strings.Contains(errorStr, pattern) {
			return true
		}
	}

	return false
}

// isFetcherRetryableError checks if a source fetcher error is retryable
func isFetcherRetryableError(errorStr string) bool {
	retryablePatterns := []string{
		"http error 429", // Rate limiting
		"http error 503", // Service unavailable
		"http error 502", // Bad gateway
		"http error 504", // Gateway timeout
		"connection timed out",
		"temporary failure",
		"unable to download webpage",
		"download error",
		"network error",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorStr, pattern) {
			return true
		}
	}

	return false
}

// isEncoderRetryableError checks if an encoder subprocess error is retryable
func isEncoderRetryableError(errorStr string) bool {
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"i/o error",
		"resource temporarily unavailable",
		"interrupted system call",
		"broken pipe",
		"protocol error",
		"server returned 5", // 5xx HTTP errors
		"timeout",
		"ffmpeg failed",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorStr, pattern) {
			return true
		}
	}

	return false
}

// CreateRetryableError wraps an error with retry context information
func CreateRetryableError(originalErr error, context string, attempt int) error {
	return fmt.Errorf("retry attempt %d failed in %s: %w", attempt, context, originalErr)
}

// CreateFatalError wraps an error to indicate it should not be retried
func CreateFatalError(originalErr error, reason string) error {
	return fmt.Errorf("fatal error (%s): %w", reason, originalErr)
}
