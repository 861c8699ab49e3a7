package radio

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// cookieExpiry is the far-future expiry stamped on materialized cookies so
// yt-dlp does not treat them as session cookies
const cookieExpiry = 2147483647

// cookieFileCache materializes a Cookie header string into a Netscape-format
// file exactly once; the path is reused for the lifetime of the process.
type cookieFileCache struct {
	once sync.Once
	path string
	err  error
}

// get returns the cookie file path, writing the file on first use
func (c *cookieFileCache) get(cookie string) (string, error) {
	c.once.Do(func() {
		c.path, c.err = writeNetscapeCookieFile(cookie)
	})
	return c.path, c.err
}

// writeNetscapeCookieFile renders a "name=value; name2=value2" Cookie header
// into the cookies.txt format the fetcher subprocess reads
func writeNetscapeCookieFile(cookie string) (string, error) {
	file, err := os.CreateTemp("", "hibiki-cookies-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create cookie file: %w", err)
	}
	defer file.Close()

	var builder strings.Builder
	builder.WriteString("# Netscape HTTP Cookie File\n")

	for _, pair := range strings.Split(cookie, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}
		// domain, include-subdomains, path, secure, expiry, name, value
		fmt.Fprintf(&builder, ".youtube.com\tTRUE\t/\tTRUE\t%d\t%s\t%s\n", cookieExpiry, name, value)
	}

	if _, err := file.WriteString(builder.String()); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to write cookie file: %w", err)
	}

	return file.Name(), nil
}
