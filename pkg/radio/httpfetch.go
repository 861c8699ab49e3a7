package radio

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// maxRedirects bounds redirect chains on the generic HTTP fallback
	maxRedirects = 5

	// perHopTimeout is the budget for each hop of the fetch: dial, TLS and
	// response headers
	perHopTimeout = 10 * time.Second
)

// newFetchClient builds the HTTP client used for direct audio fetches. The
// body read itself is unbounded since tracks stream for minutes.
func newFetchClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: perHopTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   perHopTimeout,
			ResponseHeaderTimeout: perHopTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return Errorf(KindUpstreamFailure, "radio.fetchAudioStream", "stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// isAudioContentType reports whether a response looks like an audio payload.
// Octet-stream and media containers are accepted because CDNs rarely label
// audio precisely.
func isAudioContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	switch mediaType {
	case "application/ogg", "application/octet-stream", "video/mp4", "video/webm":
		return true
	}
	return false
}

// fetchAudioStream opens a direct audio URL and returns its body. Non-2xx
// responses and non-audio content types are upstream failures.
func fetchAudioStream(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	const op = "radio.fetchAudioStream"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(KindBadRequest, op, err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(KindTimeout, op, err)
		}
		return nil, NewError(KindUpstreamFailure, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, Errorf(KindUpstreamFailure, op, "upstream returned status %d for %s", resp.StatusCode, SanitizeURL(url))
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" && !isAudioContentType(contentType) {
		resp.Body.Close()
		return nil, Errorf(KindUpstreamFailure, op, "upstream returned non-audio content type %q for %s", contentType, SanitizeURL(url))
	}

	return resp.Body, nil
}
