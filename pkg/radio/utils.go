package radio

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/hibikilabs/hibiki/pkg/common"
)

// timestampParams are the YouTube query parameters that seek into a video.
// They are stripped at enqueue time so playback always begins at 0.
var timestampParams = []string{"t", "start", "time_continue", "timestamp"}

// ValidateURL validates that a URL is not empty and has a basic valid format
// Used by Handlers, Engine
func ValidateURL(urlStr string) error {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("url must be a valid HTTP/HTTPS URL")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("url must have a valid host")
	}

	return nil
}

// IsYouTubeHost reports whether a hostname belongs to YouTube
// Used by DetectSource, NormalizeURL, Fetchers
func IsYouTubeHost(host string) bool {
	host = strings.ToLower(host)
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// IsSoundCloudHost reports whether a hostname belongs to SoundCloud
// Used by DetectSource, Fetchers
func IsSoundCloudHost(host string) bool {
	host = strings.ToLower(host)
	return host == "soundcloud.com" || strings.HasSuffix(host, ".soundcloud.com")
}

// DetectSource classifies a track URL by provider
// Used by Handlers, Engine
func DetectSource(urlStr string) (string, error) {
	if err := ValidateURL(urlStr); err != nil {
		return "", NewError(KindBadRequest, "radio.DetectSource", err)
	}

	parsedURL, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", NewError(KindBadRequest, "radio.DetectSource", err)
	}

	host := parsedURL.Hostname()
	switch {
	case IsYouTubeHost(host):
		return common.SourceYouTube, nil
	case IsSoundCloudHost(host):
		return common.SourceSoundCloud, nil
	}

	return "", Errorf(KindUnsupportedURL, "radio.DetectSource", "unsupported url host %q", host)
}

// NormalizeURL strips YouTube timestamp parameters so playback starts at 0.
// Non-YouTube URLs and URLs without timestamp markers pass through unchanged.
// Used by Handlers before enqueue
func NormalizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if !IsYouTubeHost(parsedURL.Hostname()) {
		return rawURL
	}

	changed := false

	query := parsedURL.Query()
	for _, param := range timestampParams {
		if query.Has(param) {
			query.Del(param)
			changed = true
		}
	}
	if changed {
		parsedURL.RawQuery = query.Encode()
	}

	if strings.HasPrefix(parsedURL.Fragment, "t=") || strings.HasPrefix(parsedURL.Fragment, "time_continue=") {
		parsedURL.Fragment = ""
		changed = true
	}

	if !changed {
		return rawURL
	}

	return parsedURL.String()
}

// SanitizeURL removes sensitive information from URLs for logging
// Used by Engine, Fetchers, ErrorHandler for safe logging
func SanitizeURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		if len(urlStr) > 100 {
			return urlStr[:100] + "..."
		}
		return urlStr
	}

	parsedURL.User = nil

	// For YouTube URLs, preserve the video ID but remove other parameters
	if IsYouTubeHost(parsedURL.Hostname()) {
		if videoID := parsedURL.Query().Get("v"); videoID != "" {
			parsedURL.RawQuery = "v=" + videoID
		} else {
			parsedURL.RawQuery = ""
		}
		parsedURL.Fragment = ""
		return parsedURL.String()
	}

	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""

	sanitized := parsedURL.String()
	if len(sanitized) > 100 {
		return sanitized[:100] + "..."
	}

	return sanitized
}

// FormatDuration formats a duration into a human-readable string
// Used by Engine, Jobs, Logger
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60

	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// ValidateBinaryDependency validates that a required binary is available and executable
// Used by Factory, ConfigProvider for dependency validation
func ValidateBinaryDependency(binaryName, binaryPath string) error {
	if binaryPath == "" {
		return fmt.Errorf("%s binary path cannot be empty", binaryName)
	}

	_, err := exec.LookPath(binaryPath)
	if err != nil {
		return fmt.Errorf("%s binary not found at path '%s': %w", binaryName, binaryPath, err)
	}

	return nil
}

// ValidateFFmpegBinary validates FFmpeg binary and basic functionality
// Used by Factory, EncoderPipeline for FFmpeg validation
func ValidateFFmpegBinary(binaryPath string) error {
	if err := ValidateBinaryDependency("ffmpeg", binaryPath); err != nil {
		return err
	}

	cmd := exec.Command(binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffmpeg binary validation failed - unable to get version: %w", err)
	}

	if !strings.Contains(string(output), "ffmpeg version") {
		return fmt.Errorf("ffmpeg binary validation failed - unexpected version output")
	}

	return nil
}

// ValidateYtDlpBinary validates yt-dlp binary and basic functionality
// Used by Factory, YouTube fetcher for yt-dlp validation
func ValidateYtDlpBinary(binaryPath string) error {
	if err := ValidateBinaryDependency("yt-dlp", binaryPath); err != nil {
		return err
	}

	cmd := exec.Command(binaryPath, "--version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("yt-dlp binary validation failed - unable to get version: %w", err)
	}

	if strings.TrimSpace(string(output)) == "" {
		return fmt.Errorf("yt-dlp binary validation failed - empty version output")
	}

	return nil
}

// ValidateAllBinaryDependencies validates all required binary dependencies
// Used by Factory for startup dependency validation
func ValidateAllBinaryDependencies(ffmpegPath, ytDlpPath string) error {
	if err := ValidateFFmpegBinary(ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg validation failed: %w", err)
	}

	if err := ValidateYtDlpBinary(ytDlpPath); err != nil {
		return fmt.Errorf("yt-dlp validation failed: %w", err)
	}

	return nil
}
