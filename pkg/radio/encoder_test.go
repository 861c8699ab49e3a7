package radio

import (
	"io"
	"reflect"
	"strings"
	"testing"
)

// argsAfter returns the values following each occurrence of flag
func argsAfter(args []string, flag string) []string {
	var values []string
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			values = append(values, args[i+1])
		}
	}
	return values
}

func TestBuildArgsForStreamInput(t *testing.T) {
	input := NewStreamInput(io.NopCloser(strings.NewReader("")))
	pipeline := NewFFmpegPipeline(input, testPipelineConfig(), newTestLogger())

	args := pipeline.buildArgs()

	if got := argsAfter(args, "-i"); len(got) != 1 || got[0] != "pipe:0" {
		t.Errorf("stream input -i = %v, want [pipe:0]", got)
	}
	if got := argsAfter(args, "-headers"); got != nil {
		t.Errorf("stream input should not carry -headers, got %v", got)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-re", "-vn", "-c:a libmp3lame", "-f mp3", "pipe:1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestBuildArgsForRemoteInput(t *testing.T) {
	input := NewRemoteInput("https://cdn.example.com/audio.webm", map[string]string{
		"User-Agent": "hibiki",
		"Cookie":     "SID=abc",
	}, false)
	pipeline := NewFFmpegPipeline(input, testPipelineConfig(), newTestLogger())

	args := pipeline.buildArgs()

	if got := argsAfter(args, "-i"); len(got) != 1 || got[0] != "https://cdn.example.com/audio.webm" {
		t.Errorf("-i = %v", got)
	}
	headers := argsAfter(args, "-headers")
	if len(headers) != 1 {
		t.Fatalf("-headers = %v, want one value", headers)
	}
	if headers[0] != "Cookie: SID=abc\r\nUser-Agent: hibiki\r\n" {
		t.Errorf("headers = %q", headers[0])
	}
	if got := argsAfter(args, "-protocol_whitelist"); got != nil {
		t.Errorf("non-HLS input should not whitelist protocols, got %v", got)
	}
}

func TestBuildArgsForHLSInput(t *testing.T) {
	input := NewRemoteInput("https://cf-hls.example.com/playlist.m3u8", nil, true)
	pipeline := NewFFmpegPipeline(input, testPipelineConfig(), newTestLogger())

	args := pipeline.buildArgs()

	whitelist := argsAfter(args, "-protocol_whitelist")
	if len(whitelist) != 1 || whitelist[0] != hlsProtocolWhitelist {
		t.Errorf("-protocol_whitelist = %v", whitelist)
	}

	// The whitelist must precede -i so ffmpeg applies it to the input
	var whitelistIdx, inputIdx int
	for i, arg := range args {
		switch arg {
		case "-protocol_whitelist":
			whitelistIdx = i
		case "-i":
			inputIdx = i
		}
	}
	if whitelistIdx > inputIdx {
		t.Errorf("-protocol_whitelist at %d after -i at %d", whitelistIdx, inputIdx)
	}
}

func TestBuildArgsEncodesConfiguredFormat(t *testing.T) {
	config := testPipelineConfig()
	config.Bitrate = 192
	config.SampleRate = 48000
	config.Channels = 1

	input := NewRemoteInput("https://cdn.example.com/a", nil, false)
	args := NewFFmpegPipeline(input, config, newTestLogger()).buildArgs()

	if got := argsAfter(args, "-b:a"); !reflect.DeepEqual(got, []string{"192k"}) {
		t.Errorf("-b:a = %v", got)
	}
	if got := argsAfter(args, "-ar"); !reflect.DeepEqual(got, []string{"48000"}) {
		t.Errorf("-ar = %v", got)
	}
	if got := argsAfter(args, "-ac"); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("-ac = %v", got)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
}

func TestFormatHeadersSortsAndTerminatesLines(t *testing.T) {
	got := formatHeaders(map[string]string{
		"User-Agent": "ua",
		"Cookie":     "c=1",
		"Referer":    "https://example.com",
	})
	want := "Cookie: c=1\r\nReferer: https://example.com\r\nUser-Agent: ua\r\n"
	if got != want {
		t.Errorf("formatHeaders = %q, want %q", got, want)
	}

	if formatHeaders(nil) != "" {
		t.Error("empty header map should render empty string")
	}
}

func TestPipelinePIDZeroBeforeStart(t *testing.T) {
	input := NewRemoteInput("https://cdn.example.com/a", nil, false)
	pipeline := NewFFmpegPipeline(input, testPipelineConfig(), newTestLogger())
	if pid := pipeline.PID(); pid != 0 {
		t.Errorf("PID before Start = %d, want 0", pid)
	}
}

func TestPipelineKillBeforeStartIsSafe(t *testing.T) {
	input := NewStreamInput(io.NopCloser(strings.NewReader("payload")))
	pipeline := NewFFmpegPipeline(input, testPipelineConfig(), newTestLogger())

	// Never started, so no process group exists to signal
	pipeline.Kill()
	pipeline.Kill()

	if err := pipeline.Suspend(); err == nil {
		t.Error("Suspend after Kill should report not running")
	}
}
