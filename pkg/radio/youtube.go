package radio

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// YouTubeFetcher resolves YouTube tracks with two strategies: a fast
// in-process client and the fetcher subprocess. The default tries the
// in-process client first and falls back to the subprocess, which is slower
// to start but survives formats the client cannot handle.
type YouTubeFetcher struct {
	config   *PipelineConfig
	source   *SourceConfig
	client   *youtube.Client
	external SourceFetcher
	logger   logging.Logger
}

// NewYouTubeFetcher creates a YouTube fetcher with both strategies wired
func NewYouTubeFetcher(config *PipelineConfig, source *SourceConfig, external SourceFetcher, logger logging.Logger) *YouTubeFetcher {
	httpClient := &http.Client{
		Transport: &headerRoundTripper{
			base:      http.DefaultTransport,
			cookie:    source.YouTubeCookie,
			userAgent: source.YouTubeUserAgent,
		},
	}

	return &YouTubeFetcher{
		config:   config,
		source:   source,
		client:   &youtube.Client{HTTPClient: httpClient},
		external: external,
		logger:   logger.WithPipeline("fetcher-youtube"),
	}
}

// Source returns the source tag this fetcher serves
func (f *YouTubeFetcher) Source() string {
	return common.SourceYouTube
}

// Fetch resolves a YouTube track to an audio input
func (f *YouTubeFetcher) Fetch(ctx context.Context, track *common.Track) (*AudioInput, error) {
	if f.source.ExternalFetcherFirst {
		return f.external.Fetch(ctx, track)
	}

	input, err := f.fetchInProcess(ctx, track)
	if err == nil {
		return input, nil
	}

	if f.source.DisableExternalFetcher {
		return nil, err
	}

	f.logger.Warn("In-process fetch failed, falling back to fetcher subprocess", map[string]interface{}{
		"url":   SanitizeURL(track.URL),
		"error": err.Error(),
	})

	return f.external.Fetch(ctx, track)
}

// fetchInProcess resolves the video with the in-process client. Successful
// metadata resolution is the startup signal, so only it runs under the
// in-process timeout.
func (f *YouTubeFetcher) fetchInProcess(ctx context.Context, track *common.Track) (*AudioInput, error) {
	const op = "radio.YouTubeFetcher.fetchInProcess"

	metaCtx, cancel := context.WithTimeout(ctx, f.config.InProcessTimeout)
	defer cancel()

	video, err := f.client.GetVideoContext(metaCtx, track.URL)
	if err != nil {
		if metaCtx.Err() != nil {
			return nil, NewError(KindTimeout, op, err)
		}
		return nil, NewError(KindUpstreamFailure, op, err)
	}

	format, err := pickAudioFormat(video.Formats)
	if err != nil {
		return nil, NewError(KindUpstreamFailure, op, err)
	}

	// The stream outlives this call by the track's whole duration, so it is
	// not bound to the startup context
	stream, _, err := f.client.GetStreamContext(context.Background(), video, format)
	if err != nil {
		return nil, NewError(KindUpstreamFailure, op, err)
	}

	f.logger.Info("In-process fetch streaming", map[string]interface{}{
		"url":       SanitizeURL(track.URL),
		"video_id":  video.ID,
		"mime_type": format.MimeType,
	})

	return NewStreamInput(stream), nil
}

// pickAudioFormat selects the best audio-only format, falling back to any
// format that carries audio channels
func pickAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range formats {
		format := &formats[i]
		if !strings.HasPrefix(format.MimeType, "audio/") {
			continue
		}
		if best == nil || format.Bitrate > best.Bitrate {
			best = format
		}
	}
	if best != nil {
		return best, nil
	}

	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return nil, fmt.Errorf("no audio formats available")
	}
	return &withAudio[0], nil
}

// headerRoundTripper injects the configured cookie and user agent into every
// request the in-process client makes
type headerRoundTripper struct {
	base      http.RoundTripper
	cookie    string
	userAgent string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.cookie == "" && t.userAgent == "" {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if t.cookie != "" {
		clone.Header.Set("Cookie", t.cookie)
	}
	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(clone)
}
