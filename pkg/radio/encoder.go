package radio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/hibikilabs/hibiki/pkg/logging"
)

const (
	// chunkSize is the read size on the encoder's stdout pipe
	chunkSize = 4096

	// maxStderrLines is how many recent stderr lines are kept for error context
	maxStderrLines = 50

	// eventBuffer sizes the pipeline event channel
	eventBuffer = 64
)

// hlsProtocolWhitelist is passed to ffmpeg for HLS inputs, which pull
// fragments over a mix of transports
const hlsProtocolWhitelist = "file,http,https,tcp,tls,crypto"

// FFmpegPipeline implements the EncoderPipeline interface. It runs one ffmpeg
// subprocess that converts an AudioInput into a 128 kbps MP3 stream, paced at
// wall-clock real time, and reports everything through the event channel.
type FFmpegPipeline struct {
	config *PipelineConfig
	input  *AudioInput

	cmd        *exec.Cmd
	outputPipe io.ReadCloser
	errorPipe  io.ReadCloser
	events     chan PipelineEvent

	pid          int
	killed       bool
	suspended    bool
	stderrBuffer []string
	stderrDone   sync.WaitGroup
	mu           sync.Mutex

	logger logging.Logger
}

// NewFFmpegPipeline creates a pipeline for one audio input. Start must be
// called exactly once.
func NewFFmpegPipeline(input *AudioInput, config *PipelineConfig, logger logging.Logger) *FFmpegPipeline {
	return &FFmpegPipeline{
		config: config,
		input:  input,
		events: make(chan PipelineEvent, eventBuffer),
		logger: logger.WithPipeline("ffmpeg"),
	}
}

// Events returns the pipeline event channel
func (p *FFmpegPipeline) Events() <-chan PipelineEvent {
	return p.events
}

// PID returns the ffmpeg process id, 0 before Start
func (p *FFmpegPipeline) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Start launches the ffmpeg subprocess and the goroutines that pump its
// output into the event channel
func (p *FFmpegPipeline) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := p.buildArgs()
	p.cmd = exec.Command(p.config.FFmpegPath, args...)

	// Process group so the whole tree dies on kill
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.input.IsStream() {
		p.cmd.Stdin = p.input.Stream
	}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	p.outputPipe = stdout

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}
	p.errorPipe = stderr

	p.logger.Info("Starting encoder pipeline", map[string]interface{}{
		"ffmpeg_command": p.config.FFmpegPath + " " + strings.Join(args, " "),
		"input_kind":     p.inputKind(),
	})

	if err := p.cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start ffmpeg process: %w", err)
	}

	p.mu.Lock()
	p.pid = p.cmd.Process.Pid
	p.stderrBuffer = make([]string, 0, maxStderrLines)
	p.mu.Unlock()

	p.events <- PipelineEvent{Kind: EventStarted, PID: p.cmd.Process.Pid}

	p.stderrDone.Add(1)
	go p.monitorStderr()
	go p.run()

	return nil
}

// buildArgs constructs the ffmpeg argument list for this input
func (p *FFmpegPipeline) buildArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
	}

	// -re paces input reads at native frame rate, which is what keeps every
	// listener on the same wall-clock position
	args = append(args, "-re")

	if p.input.IsStream() {
		args = append(args, "-i", "pipe:0")
	} else {
		if len(p.input.Headers) > 0 {
			args = append(args, "-headers", formatHeaders(p.input.Headers))
		}
		if p.input.HLS {
			args = append(args, "-protocol_whitelist", hlsProtocolWhitelist)
		}
		args = append(args, "-i", p.input.URL)
	}

	args = append(args,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", p.config.Bitrate),
		"-ar", fmt.Sprintf("%d", p.config.SampleRate),
		"-ac", fmt.Sprintf("%d", p.config.Channels),
		"-f", "mp3",
		"pipe:1",
	)

	return args
}

// formatHeaders renders HTTP headers the way ffmpeg's -headers flag expects
func formatHeaders(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(headers[key])
		builder.WriteString("\r\n")
	}
	return builder.String()
}

func (p *FFmpegPipeline) inputKind() string {
	if p.input.IsStream() {
		return "stream"
	}
	if p.input.HLS {
		return "hls"
	}
	return "remote"
}

// run pumps encoded audio from ffmpeg's stdout into the event channel and
// emits exactly one terminal event when the process ends
func (p *FFmpegPipeline) run() {
	defer close(p.events)

	reader := bufio.NewReaderSize(p.outputPipe, chunkSize*2)
	buf := make([]byte, chunkSize)
	var readErr error

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			// The read buffer is reused, so every chunk handed to the
			// engine must be its own copy
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- PipelineEvent{Kind: EventData, Chunk: chunk}
		}
		if err != nil {
			readErr = err
			break
		}
	}

	// Stderr drains before Wait closes its pipe
	p.stderrDone.Wait()
	waitErr := p.cmd.Wait()

	p.mu.Lock()
	killed := p.killed
	recentStderr := strings.Join(p.stderrBuffer, "\n")
	p.mu.Unlock()

	if p.input != nil {
		p.input.Close()
	}

	switch {
	case killed:
		p.logger.Debug("Encoder pipeline killed", map[string]interface{}{
			"pid": p.pid,
		})
		p.events <- PipelineEvent{Kind: EventEnd}
	case waitErr != nil:
		p.logger.Error("Encoder process exited unexpectedly", waitErr, map[string]interface{}{
			"pid":           p.pid,
			"recent_stderr": recentStderr,
		})
		p.events <- PipelineEvent{
			Kind: EventError,
			Err:  fmt.Errorf("ffmpeg exited: %w (stderr: %s)", waitErr, recentStderr),
		}
	case readErr != nil && readErr != io.EOF:
		p.events <- PipelineEvent{Kind: EventError, Err: readErr}
	default:
		p.logger.Info("Encoder pipeline completed", map[string]interface{}{
			"pid": p.pid,
		})
		p.events <- PipelineEvent{Kind: EventEnd}
	}
}

// monitorStderr keeps a ring buffer of recent ffmpeg stderr lines for error
// context
func (p *FFmpegPipeline) monitorStderr() {
	defer p.stderrDone.Done()

	scanner := bufio.NewScanner(p.errorPipe)
	for scanner.Scan() {
		line := scanner.Text()

		p.mu.Lock()
		if len(p.stderrBuffer) >= maxStderrLines {
			p.stderrBuffer = p.stderrBuffer[1:]
		}
		p.stderrBuffer = append(p.stderrBuffer, line)
		p.mu.Unlock()

		p.logger.Debug("FFmpeg stderr", map[string]interface{}{
			"output": line,
		})
	}
}

// Suspend sends SIGSTOP to the encoder process group, freezing output
// without closing pipes
func (p *FFmpegPipeline) Suspend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 || p.killed {
		return fmt.Errorf("encoder is not running")
	}
	if p.suspended {
		return nil
	}

	if err := syscall.Kill(-p.pid, syscall.SIGSTOP); err != nil {
		return fmt.Errorf("failed to suspend encoder: %w", err)
	}

	p.suspended = true
	p.logger.Info("Encoder suspended", map[string]interface{}{
		"pid": p.pid,
	})
	return nil
}

// Resume sends SIGCONT to a suspended encoder process group
func (p *FFmpegPipeline) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid == 0 || p.killed {
		return fmt.Errorf("encoder is not running")
	}
	if !p.suspended {
		return nil
	}

	if err := syscall.Kill(-p.pid, syscall.SIGCONT); err != nil {
		return fmt.Errorf("failed to resume encoder: %w", err)
	}

	p.suspended = false
	p.logger.Info("Encoder resumed", map[string]interface{}{
		"pid": p.pid,
	})
	return nil
}

// Kill terminates the encoder process group immediately. Idempotent. The
// terminal event still arrives through the event channel.
func (p *FFmpegPipeline) Kill() {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	pid := p.pid
	p.mu.Unlock()

	if pid == 0 {
		return
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		p.logger.Warn("Failed to kill encoder process group", map[string]interface{}{
			"pid":   pid,
			"error": err.Error(),
		})
	}

	// Unblock the source feed so the exec copy goroutine can finish
	if p.input != nil {
		p.input.Close()
	}
}
