package radio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

const soundcloudAPIBase = "https://api-v2.soundcloud.com"

// soundcloudTrack is the subset of the resolve response the fetcher needs
type soundcloudTrack struct {
	Kind       string `json:"kind"`
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Duration   int64  `json:"duration"`
	ArtworkURL string `json:"artwork_url"`
	Media      struct {
		Transcodings []soundcloudTranscoding `json:"transcodings"`
	} `json:"media"`
}

type soundcloudTranscoding struct {
	URL    string `json:"url"`
	Format struct {
		Protocol string `json:"protocol"`
		MimeType string `json:"mime_type"`
	} `json:"format"`
}

type soundcloudStream struct {
	URL string `json:"url"`
}

// SoundCloudFetcher resolves SoundCloud tracks through the provider API and
// streams the transcoding it advertises. Resolution failures fall back to the
// fetcher subprocess.
type SoundCloudFetcher struct {
	config   *PipelineConfig
	source   *SourceConfig
	client   *http.Client
	external SourceFetcher
	apiBase  string
	logger   logging.Logger
}

// NewSoundCloudFetcher creates a SoundCloud fetcher
func NewSoundCloudFetcher(config *PipelineConfig, source *SourceConfig, external SourceFetcher, logger logging.Logger) *SoundCloudFetcher {
	return &SoundCloudFetcher{
		config:   config,
		source:   source,
		client:   newFetchClient(),
		external: external,
		apiBase:  soundcloudAPIBase,
		logger:   logger.WithPipeline("fetcher-soundcloud"),
	}
}

// Source returns the source tag this fetcher serves
func (f *SoundCloudFetcher) Source() string {
	return common.SourceSoundCloud
}

// Fetch resolves a SoundCloud track to an audio input
func (f *SoundCloudFetcher) Fetch(ctx context.Context, track *common.Track) (*AudioInput, error) {
	const op = "radio.SoundCloudFetcher.Fetch"

	if f.source.SoundCloudClientID == "" {
		return nil, Errorf(KindFeatureDisabled, op, "soundcloud client id is not configured")
	}

	resolved, err := f.resolve(ctx, track.URL)
	if err != nil {
		f.logger.Warn("SoundCloud resolution failed, falling back to fetcher subprocess", map[string]interface{}{
			"url":   SanitizeURL(track.URL),
			"error": err.Error(),
		})
		return f.external.Fetch(ctx, track)
	}

	if resolved.Kind == "playlist" {
		return nil, Errorf(KindUnsupportedURL, op, "playlists are not supported")
	}
	if resolved.Kind != "track" || resolved.Duration <= 0 {
		return nil, Errorf(KindUnsupportedURL, op, "only single tracks with a known duration are accepted")
	}

	var progressive, hls *soundcloudTranscoding
	for i := range resolved.Media.Transcodings {
		transcoding := &resolved.Media.Transcodings[i]
		switch transcoding.Format.Protocol {
		case "progressive":
			if progressive == nil {
				progressive = transcoding
			}
		case "hls":
			if hls == nil {
				hls = transcoding
			}
		}
	}

	switch {
	case progressive != nil:
		streamURL, err := f.streamURL(ctx, progressive)
		if err != nil {
			return nil, err
		}
		stream, err := fetchAudioStream(context.Background(), f.client, streamURL, nil)
		if err != nil {
			return nil, err
		}
		f.logger.Info("SoundCloud progressive stream opened", map[string]interface{}{
			"url":      SanitizeURL(track.URL),
			"track_id": resolved.ID,
		})
		return NewStreamInput(stream), nil

	case hls != nil:
		streamURL, err := f.streamURL(ctx, hls)
		if err != nil {
			return nil, err
		}
		f.logger.Info("SoundCloud HLS stream resolved", map[string]interface{}{
			"url":      SanitizeURL(track.URL),
			"track_id": resolved.ID,
		})
		// The encoder assembles HLS fragments itself
		return NewRemoteInput(streamURL, nil, true), nil
	}

	f.logger.Warn("SoundCloud track has no usable transcodings, falling back to fetcher subprocess", map[string]interface{}{
		"url": SanitizeURL(track.URL),
	})
	return f.external.Fetch(ctx, track)
}

// resolve asks the provider API to describe a track URL
func (f *SoundCloudFetcher) resolve(ctx context.Context, trackURL string) (*soundcloudTrack, error) {
	const op = "radio.SoundCloudFetcher.resolve"

	endpoint := fmt.Sprintf("%s/resolve?url=%s&client_id=%s",
		f.apiBase, url.QueryEscape(trackURL), url.QueryEscape(f.source.SoundCloudClientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(KindInternal, op, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, NewError(KindUpstreamFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, Errorf(KindNotFound, op, "track not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Errorf(KindUpstreamFailure, op, "resolve returned status %d", resp.StatusCode)
	}

	var track soundcloudTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, NewError(KindUpstreamFailure, op, fmt.Errorf("failed to decode resolve response: %w", err))
	}

	return &track, nil
}

// streamURL exchanges a transcoding reference for its signed stream URL
func (f *SoundCloudFetcher) streamURL(ctx context.Context, transcoding *soundcloudTranscoding) (string, error) {
	const op = "radio.SoundCloudFetcher.streamURL"

	endpoint, err := url.Parse(transcoding.URL)
	if err != nil {
		return "", NewError(KindUpstreamFailure, op, err)
	}
	query := endpoint.Query()
	query.Set("client_id", f.source.SoundCloudClientID)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", NewError(KindInternal, op, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", NewError(KindUpstreamFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", Errorf(KindUpstreamFailure, op, "transcoding lookup returned status %d", resp.StatusCode)
	}

	var stream soundcloudStream
	if err := json.NewDecoder(resp.Body).Decode(&stream); err != nil {
		return "", NewError(KindUpstreamFailure, op, fmt.Errorf("failed to decode stream response: %w", err))
	}
	if stream.URL == "" {
		return "", Errorf(KindUpstreamFailure, op, "transcoding lookup returned no stream url")
	}

	return stream.URL, nil
}
