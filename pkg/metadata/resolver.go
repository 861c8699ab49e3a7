package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	cache "github.com/patrickmn/go-cache"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

const (
	cacheTTL       = 30 * time.Minute
	cacheSweep     = 10 * time.Minute
	resolveTimeout = 10 * time.Second

	oembedEndpoint    = "https://www.youtube.com/oembed"
	soundcloudAPIBase = "https://api-v2.soundcloud.com"
)

// TrackInfo carries the metadata resolved for a URL before it enters the queue
type TrackInfo struct {
	Title        string `json:"title"`
	DurationSecs int    `json:"duration_secs"`
	Thumbnail    string `json:"thumbnail"`
}

// Resolver resolves track metadata for a submitted URL
// Used by the queue handler to build complete tracks at enqueue time
type Resolver interface {
	Resolve(ctx context.Context, source, rawURL string) (*TrackInfo, error)
}

// CachingResolver implements Resolver with a memoizing cache in front of
// the per-source lookups
type CachingResolver struct {
	config     *radio.SourceConfig
	client     *http.Client
	youtube    *youtube.Client
	cache      *cache.Cache
	oembedBase string
	scAPIBase  string
	logger     logging.Logger
}

// NewResolver creates a CachingResolver for the supported sources
func NewResolver(config *radio.SourceConfig, logger logging.Logger) *CachingResolver {
	return &CachingResolver{
		config:     config,
		client:     &http.Client{Timeout: resolveTimeout},
		youtube:    &youtube.Client{},
		cache:      cache.New(cacheTTL, cacheSweep),
		oembedBase: oembedEndpoint,
		scAPIBase:  soundcloudAPIBase,
		logger:     logger.WithPipeline("metadata"),
	}
}

// Resolve returns the metadata for the URL, memoizing successful lookups
// Failures are not cached so a transient upstream error does not stick
func (r *CachingResolver) Resolve(ctx context.Context, source, rawURL string) (*TrackInfo, error) {
	cacheKey := fmt.Sprintf("%s:%s", source, rawURL)
	if cached, found := r.cache.Get(cacheKey); found {
		if info, ok := cached.(*TrackInfo); ok {
			return info, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	var info *TrackInfo
	var err error

	switch source {
	case common.SourceYouTube:
		info, err = r.resolveYouTube(ctx, rawURL)
	case common.SourceSoundCloud:
		info, err = r.resolveSoundCloud(ctx, rawURL)
	default:
		return nil, radio.Errorf(radio.KindUnsupportedURL, "metadata.Resolve", "unknown source %q", source)
	}

	if err != nil {
		return nil, err
	}

	r.cache.Set(cacheKey, info, cache.DefaultExpiration)
	return info, nil
}

// resolveYouTube reads video metadata through the in-process client and
// falls back to the public oEmbed endpoint when the client fails
func (r *CachingResolver) resolveYouTube(ctx context.Context, rawURL string) (*TrackInfo, error) {
	video, err := r.youtube.GetVideoContext(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, radio.NewError(radio.KindTimeout, "metadata.resolveYouTube", ctx.Err())
		}

		r.logger.Warn("In-process video lookup failed, falling back to oEmbed", map[string]interface{}{
			"url":   radio.SanitizeURL(rawURL),
			"error": err.Error(),
		})
		return r.resolveOEmbed(ctx, rawURL)
	}

	return &TrackInfo{
		Title:        video.Title,
		DurationSecs: int(video.Duration / time.Second),
		Thumbnail:    bestThumbnail(video.Thumbnails),
	}, nil
}

// resolveOEmbed fetches title and thumbnail from the oEmbed endpoint
// oEmbed carries no duration, so the track length stays unknown
func (r *CachingResolver) resolveOEmbed(ctx context.Context, rawURL string) (*TrackInfo, error) {
	const op = "metadata.resolveOEmbed"

	endpoint := fmt.Sprintf("%s?format=json&url=%s", r.oembedBase, url.QueryEscape(rawURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, radio.NewError(radio.KindInternal, op, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, radio.NewError(radio.KindTimeout, op, ctx.Err())
		}
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}
	defer resp.Body.Close()

	// oEmbed answers 401 for private and unembeddable videos
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized {
		return nil, radio.Errorf(radio.KindNotFound, op, "video not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, radio.Errorf(radio.KindUpstreamFailure, op, "oembed returned status %d", resp.StatusCode)
	}

	var payload struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}

	return &TrackInfo{
		Title:     payload.Title,
		Thumbnail: payload.ThumbnailURL,
	}, nil
}

// resolveSoundCloud resolves the URL through the api-v2 resolve endpoint
// Playlists and tracks without a known duration are rejected here so they
// never enter the queue
func (r *CachingResolver) resolveSoundCloud(ctx context.Context, rawURL string) (*TrackInfo, error) {
	const op = "metadata.resolveSoundCloud"

	if r.config.SoundCloudClientID == "" {
		return nil, radio.Errorf(radio.KindFeatureDisabled, op, "soundcloud client id is not configured")
	}

	endpoint := fmt.Sprintf("%s/resolve?url=%s&client_id=%s",
		r.scAPIBase, url.QueryEscape(rawURL), url.QueryEscape(r.config.SoundCloudClientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, radio.NewError(radio.KindInternal, op, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, radio.NewError(radio.KindTimeout, op, ctx.Err())
		}
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, radio.Errorf(radio.KindNotFound, op, "track not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, radio.Errorf(radio.KindUpstreamFailure, op, "resolve returned status %d", resp.StatusCode)
	}

	var payload struct {
		Kind       string `json:"kind"`
		Title      string `json:"title"`
		Duration   int64  `json:"duration"`
		ArtworkURL string `json:"artwork_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}

	if payload.Kind == "playlist" {
		return nil, radio.Errorf(radio.KindUnsupportedURL, op, "playlists are not supported")
	}
	if payload.Kind != "track" || payload.Duration <= 0 {
		return nil, radio.Errorf(radio.KindUnsupportedURL, op, "only single tracks with a known duration are accepted")
	}

	return &TrackInfo{
		Title:        payload.Title,
		DurationSecs: int(payload.Duration / 1000),
		Thumbnail:    payload.ArtworkURL,
	}, nil
}

// bestThumbnail picks the widest thumbnail the video offers
func bestThumbnail(thumbnails youtube.Thumbnails) string {
	best := ""
	bestWidth := uint(0)
	for _, t := range thumbnails {
		if t.URL == "" {
			continue
		}
		if best == "" || t.Width > bestWidth {
			best = t.URL
			bestWidth = t.Width
		}
	}
	return best
}
