package radio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// ExternalProcessFetcher resolves a track by piping the fetcher subprocess's
// stdout. It handles every provider the subprocess supports, which makes it
// both the YouTube fallback and the SoundCloud resolution fallback.
type ExternalProcessFetcher struct {
	config  *PipelineConfig
	source  *SourceConfig
	cookies *cookieFileCache
	logger  logging.Logger
}

// NewExternalProcessFetcher creates a fetcher backed by the yt-dlp subprocess
func NewExternalProcessFetcher(config *PipelineConfig, source *SourceConfig, logger logging.Logger) *ExternalProcessFetcher {
	return &ExternalProcessFetcher{
		config:  config,
		source:  source,
		cookies: &cookieFileCache{},
		logger:  logger.WithPipeline("fetcher-external"),
	}
}

// Source returns the source tag this fetcher serves
func (f *ExternalProcessFetcher) Source() string {
	return "external"
}

// Fetch starts the subprocess and waits for the first audio byte within the
// subprocess startup timeout
func (f *ExternalProcessFetcher) Fetch(ctx context.Context, track *common.Track) (*AudioInput, error) {
	const op = "radio.ExternalProcessFetcher.Fetch"

	args, err := f.buildArgs(track.URL)
	if err != nil {
		return nil, NewError(KindInternal, op, err)
	}

	cmd := exec.Command(f.config.YtDlpPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewError(KindInternal, op, fmt.Errorf("failed to create stdout pipe: %w", err))
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, NewError(KindInternal, op, fmt.Errorf("failed to create stderr pipe: %w", err))
	}

	f.logger.Info("Starting fetcher subprocess", map[string]interface{}{
		"url":     SanitizeURL(track.URL),
		"command": f.config.YtDlpPath + " " + strings.Join(args, " "),
	})

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, NewError(KindUpstreamFailure, op, fmt.Errorf("failed to start fetcher subprocess: %w", err))
	}

	stream := &processStream{reader: stdout, cmd: cmd}

	var stderrTail tailBuffer
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrTail.append(scanner.Text())
		}
	}()

	firstChunk, err := waitFirstByte(ctx, stdout, f.config.SubprocessTimeout)
	if err != nil {
		stream.Close()
		f.logger.Warn("Fetcher subprocess produced no audio", map[string]interface{}{
			"url":           SanitizeURL(track.URL),
			"error":         err.Error(),
			"recent_stderr": stderrTail.String(),
		})
		if KindOf(err) == KindTimeout {
			return nil, err
		}
		return nil, Errorf(KindUpstreamFailure, op, "fetcher subprocess failed: %v (stderr: %s)", err, stderrTail.String())
	}

	stream.reader = io.MultiReader(bytes.NewReader(firstChunk), stdout)

	f.logger.Info("Fetcher subprocess streaming", map[string]interface{}{
		"url": SanitizeURL(track.URL),
		"pid": cmd.Process.Pid,
	})

	return NewStreamInput(stream), nil
}

// buildArgs constructs the subprocess arguments for one track URL
func (f *ExternalProcessFetcher) buildArgs(url string) ([]string, error) {
	format := f.source.ExternalFetcherFormat
	if format == "" {
		format = DefaultExternalFetcherFormat
	}

	args := []string{
		"-o", "-",
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		"--format", format,
	}

	if f.source.YouTubeUserAgent != "" {
		args = append(args, "--user-agent", f.source.YouTubeUserAgent)
	}

	cookieFile := f.source.YouTubeCookieFile
	if cookieFile == "" && f.source.YouTubeCookie != "" {
		path, err := f.cookies.get(f.source.YouTubeCookie)
		if err != nil {
			return nil, err
		}
		cookieFile = path
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}

	return append(args, url), nil
}

// waitFirstByte reads until the first chunk of audio arrives or the startup
// timeout elapses. The read goroutine is released by closing the underlying
// stream.
func waitFirstByte(ctx context.Context, reader io.Reader, timeout time.Duration) ([]byte, error) {
	const op = "radio.waitFirstByte"

	type readResult struct {
		data []byte
		err  error
	}

	resultCh := make(chan readResult, 1)
	go func() {
		buf := make([]byte, chunkSize)
		n, err := reader.Read(buf)
		resultCh <- readResult{data: buf[:n], err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		if len(result.data) == 0 {
			if result.err != nil {
				return nil, result.err
			}
			return nil, Errorf(KindUpstreamFailure, op, "stream ended before any audio")
		}
		return result.data, nil
	case <-timer.C:
		return nil, Errorf(KindTimeout, op, "no audio within %s", timeout)
	case <-ctx.Done():
		return nil, NewError(KindTimeout, op, ctx.Err())
	}
}

// processStream ties a subprocess's lifetime to its output stream: closing
// the stream kills the process group and reaps the child.
type processStream struct {
	reader io.Reader
	cmd    *exec.Cmd
	once   sync.Once
	err    error
}

func (s *processStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *processStream) Close() error {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			if err := syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
				s.err = err
			}
		}
		s.cmd.Wait()
	})
	return s.err
}

// tailBuffer keeps the most recent stderr lines for error context
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *tailBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= maxStderrLines {
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
