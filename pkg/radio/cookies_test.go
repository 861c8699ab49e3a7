package radio

import (
	"os"
	"strings"
	"testing"
)

func TestWriteNetscapeCookieFile(t *testing.T) {
	path, err := writeNetscapeCookieFile("VISITOR_INFO1_LIVE=abc123; PREF=f1=50000000; broken; =novalue")
	if err != nil {
		t.Fatalf("writeNetscapeCookieFile: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cookie file: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# Netscape HTTP Cookie File\n") {
		t.Errorf("missing Netscape header, got %q", content)
	}
	if !strings.Contains(content, ".youtube.com\tTRUE\t/\tTRUE\t2147483647\tVISITOR_INFO1_LIVE\tabc123\n") {
		t.Errorf("first cookie line missing or malformed:\n%s", content)
	}
	// "PREF=f1=50000000" splits on the first = only
	if !strings.Contains(content, "\tPREF\tf1=50000000\n") {
		t.Errorf("value with embedded = mangled:\n%s", content)
	}

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("got %d lines, want header plus 2 cookies:\n%s", len(lines), content)
	}
}

func TestCookieFileCacheReusesPath(t *testing.T) {
	cache := &cookieFileCache{}

	first, err := cache.get("SID=one")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	t.Cleanup(func() { os.Remove(first) })

	// A different cookie string on a later call still returns the original
	// file; the header is fixed for the process lifetime.
	second, err := cache.get("SID=two")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Errorf("cache returned different paths: %q then %q", first, second)
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("reading cached file: %v", err)
	}
	if !strings.Contains(string(data), "\tSID\tone\n") {
		t.Errorf("cached file lost first write:\n%s", data)
	}
}
