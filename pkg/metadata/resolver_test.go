package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	youtube "github.com/kkdai/youtube/v2"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, fields map[string]interface{})             {}
func (nopLogger) Warn(msg string, fields map[string]interface{})             {}
func (nopLogger) Debug(msg string, fields map[string]interface{})            {}
func (nopLogger) Error(msg string, err error, fields map[string]interface{}) {}
func (nopLogger) WithPipeline(pipeline string) logging.Logger                { return nopLogger{} }
func (nopLogger) WithContext(ctx map[string]interface{}) logging.Logger      { return nopLogger{} }

func newTestResolver(clientID string) *CachingResolver {
	return NewResolver(&radio.SourceConfig{SoundCloudClientID: clientID}, nopLogger{})
}

func TestResolveSoundCloudTrack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("client_id"); got != "cid-test" {
			t.Errorf("client_id = %q", got)
		}
		fmt.Fprint(w, `{"kind":"track","title":"Night Drive","duration":215000,"artwork_url":"https://i1.sndcdn.com/artworks-large.jpg"}`)
	}))
	defer server.Close()

	resolver := newTestResolver("cid-test")
	resolver.scAPIBase = server.URL

	info, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/artist/night-drive")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Title != "Night Drive" {
		t.Errorf("title = %q", info.Title)
	}
	if info.DurationSecs != 215 {
		t.Errorf("duration = %d secs, want 215 (milliseconds converted)", info.DurationSecs)
	}
	if info.Thumbnail != "https://i1.sndcdn.com/artworks-large.jpg" {
		t.Errorf("thumbnail = %q", info.Thumbnail)
	}
}

func TestResolveSoundCloudRejectsPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"playlist","title":"Album","duration":3600000}`)
	}))
	defer server.Close()

	resolver := newTestResolver("cid-test")
	resolver.scAPIBase = server.URL

	_, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/artist/sets/album")
	if err == nil {
		t.Fatal("playlist accepted")
	}
	if kind := radio.KindOf(err); kind != radio.KindUnsupportedURL {
		t.Errorf("kind = %v, want unsupported_url", kind)
	}
}

func TestResolveSoundCloudWithoutClientID(t *testing.T) {
	resolver := newTestResolver("")

	_, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/artist/song")
	if err == nil {
		t.Fatal("resolve without client id accepted")
	}
	if kind := radio.KindOf(err); kind != radio.KindFeatureDisabled {
		t.Errorf("kind = %v, want feature_disabled", kind)
	}
}

func TestResolveSoundCloudNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	resolver := newTestResolver("cid-test")
	resolver.scAPIBase = server.URL

	_, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/artist/deleted")
	if err == nil {
		t.Fatal("missing track accepted")
	}
	if kind := radio.KindOf(err); kind != radio.KindNotFound {
		t.Errorf("kind = %v, want not_found", kind)
	}
}

func TestResolveYouTubeFallsBackToOEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		fmt.Fprint(w, `{"title":"Fallback Video","thumbnail_url":"https://i.ytimg.com/vi/x/hqdefault.jpg"}`)
	}))
	defer server.Close()

	resolver := newTestResolver("")
	resolver.oembedBase = server.URL

	// No video id, so the in-process client fails before any network call
	// and the oEmbed fallback answers
	info, err := resolver.Resolve(context.Background(), common.SourceYouTube, "https://www.youtube.com/watch")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Title != "Fallback Video" {
		t.Errorf("title = %q", info.Title)
	}
	if info.DurationSecs != 0 {
		t.Errorf("oEmbed carries no duration, got %d", info.DurationSecs)
	}
	if info.Thumbnail != "https://i.ytimg.com/vi/x/hqdefault.jpg" {
		t.Errorf("thumbnail = %q", info.Thumbnail)
	}
}

func TestResolveOEmbedPrivateVideoIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	resolver := newTestResolver("")
	resolver.oembedBase = server.URL

	_, err := resolver.Resolve(context.Background(), common.SourceYouTube, "https://www.youtube.com/watch")
	if err == nil {
		t.Fatal("private video accepted")
	}
	if kind := radio.KindOf(err); kind != radio.KindNotFound {
		t.Errorf("kind = %v, want not_found", kind)
	}
}

func TestResolveMemoizesSuccess(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"kind":"track","title":"Cached","duration":1000}`)
	}))
	defer server.Close()

	resolver := newTestResolver("cid-test")
	resolver.scAPIBase = server.URL

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/a/b"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"kind":"track","title":"Recovered","duration":1000}`)
	}))
	defer server.Close()

	resolver := newTestResolver("cid-test")
	resolver.scAPIBase = server.URL

	if _, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/a/b"); err == nil {
		t.Fatal("first resolve should fail")
	}
	info, err := resolver.Resolve(context.Background(), common.SourceSoundCloud, "https://soundcloud.com/a/b")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if info.Title != "Recovered" {
		t.Errorf("title = %q", info.Title)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("upstream hits = %d, want 2 (failure not cached)", got)
	}
}

func TestResolveUnknownSource(t *testing.T) {
	resolver := newTestResolver("")

	_, err := resolver.Resolve(context.Background(), "vimeo", "https://vimeo.com/12345")
	if err == nil {
		t.Fatal("unknown source accepted")
	}
	if kind := radio.KindOf(err); kind != radio.KindUnsupportedURL {
		t.Errorf("kind = %v, want unsupported_url", kind)
	}
}

func TestBestThumbnailPicksWidest(t *testing.T) {
	thumbnails := youtube.Thumbnails{
		{URL: "small.jpg", Width: 120},
		{URL: "large.jpg", Width: 1280},
		{URL: "", Width: 9999},
		{URL: "medium.jpg", Width: 640},
	}
	if got := bestThumbnail(thumbnails); got != "large.jpg" {
		t.Errorf("bestThumbnail = %q, want large.jpg", got)
	}
	if got := bestThumbnail(nil); got != "" {
		t.Errorf("empty thumbnails = %q, want empty", got)
	}
}
