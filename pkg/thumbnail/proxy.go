package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	_ "image/jpeg"

	_ "golang.org/x/image/webp"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

const (
	fetchTimeout = 10 * time.Second
	coverSize    = 256
)

// ThumbnailSource exposes the cached artwork URL of whatever is on air
type ThumbnailSource interface {
	ThumbnailURL(source string) (string, bool)
}

// Proxy fetches the current track's artwork and re-encodes it as PNG
// Used by the thumbnail endpoints
type Proxy struct {
	engine ThumbnailSource
	client *http.Client
	logger logging.Logger
}

// NewProxy creates a thumbnail proxy backed by the broadcast engine's cache
func NewProxy(engine ThumbnailSource, logger logging.Logger) *Proxy {
	return &Proxy{
		engine: engine,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger.WithPipeline("thumbnail"),
	}
}

// Render returns the current thumbnail for the source as PNG bytes
// SoundCloud artwork is cover-fit scaled to a 256x256 square
func (p *Proxy) Render(ctx context.Context, source string) ([]byte, error) {
	const op = "thumbnail.Render"

	rawURL, ok := p.engine.ThumbnailURL(source)
	if !ok || rawURL == "" {
		return nil, radio.Errorf(radio.KindNotFound, op, "no thumbnail for source %q", source)
	}

	img, err := p.fetch(ctx, rawURL)
	if err != nil {
		p.logger.Warn("Thumbnail fetch failed", map[string]interface{}{
			"source": source,
			"url":    radio.SanitizeURL(rawURL),
			"error":  err.Error(),
		})
		return nil, err
	}

	if source == common.SourceSoundCloud {
		img = coverResize(img, coverSize)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, radio.NewError(radio.KindInternal, op, err)
	}

	return buf.Bytes(), nil
}

// fetch downloads and decodes the artwork image
func (p *Proxy) fetch(ctx context.Context, rawURL string) (image.Image, error) {
	const op = "thumbnail.fetch"

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, radio.NewError(radio.KindInternal, op, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, radio.Errorf(radio.KindUpstreamFailure, op, "artwork fetch returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, radio.NewError(radio.KindUpstreamFailure, op, err)
	}

	return img, nil
}

// coverResize scales the image to fill a size x size square, cropping the
// longer dimension around the center
func coverResize(src image.Image, size int) image.Image {
	bounds := src.Bounds()
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	if side <= 0 {
		return src
	}

	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(out, out.Bounds(), src, crop, draw.Src, nil)
	return out
}
