package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxLoggedBody caps how much of a JSON response body is copied into the log.
const maxLoggedBody = 256 << 10

// LoggingTransport dumps each request and response exchanged with the
// catalogs into an append-only log file. Media bodies are never logged.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
	closed    bool
}

// NewLoggingTransport opens logFilePath for appending and wraps transport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	cleanPath := filepath.Clean(logFilePath)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create API log directory %s: %w", dir, err)
		}
	}
	// #nosec G304
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", cleanPath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip sends the request and records both sides of the exchange.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	cleanURL := redactQuery(req.URL)
	loggedURL := cleanURL.Redacted()

	logReq := req.Clone(req.Context())
	logReq.URL = cleanURL
	if reqDump, err := httputil.DumpRequestOut(logReq, false); err != nil {
		log.WithError(err).Debug("[LogTransport] Failed to dump request")
	} else {
		t.write(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), redactAuth(string(reqDump))))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.write(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", loggedURL, duration, err.Error()))
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	headerDump, _ := httputil.DumpResponse(resp, false)
	if !strings.Contains(contentType, "json") {
		t.write(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s(Body not logged)", loggedURL, duration, contentType, string(headerDump)))
		return resp, nil
	}

	bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	// Stitch the consumed prefix back in front of whatever is left.
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(bodyBytes), resp.Body), resp.Body}

	if readErr != nil {
		t.write(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s(Body read failed: %v)", loggedURL, duration, string(headerDump), readErr))
		return resp, nil
	}
	t.write(fmt.Sprintf("--- Response (%s, Duration: %v) ---\n%s--- Body (%s) ---\n%s", loggedURL, duration, string(headerDump), contentType, string(bodyBytes)))
	return resp, nil
}

func (t *LoggingTransport) write(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, err := t.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
		return
	}
	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Error("[LogTransport] Failed to flush log writer")
	}
}

// Close flushes and closes the log file. Later writes are dropped.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// sensitiveParam reports whether a query parameter carries a credential.
func sensitiveParam(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "key") || strings.Contains(name, "token") || strings.Contains(name, "secret")
}

// redactQuery returns a copy of u with credential query values masked.
func redactQuery(u *url.URL) *url.URL {
	clean := *u
	q := clean.Query()
	changed := false
	for name, values := range q {
		if !sensitiveParam(name) {
			continue
		}
		for i := range values {
			values[i] = "REDACTED"
		}
		changed = true
	}
	if changed {
		clean.RawQuery = q.Encode()
	}
	return &clean
}

// redactAuth hides credential headers in a request dump.
func redactAuth(dump string) string {
	lines := strings.Split(dump, "\r\n")
	for i, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "authorization:") {
			lines[i] = "Authorization: [redacted]"
		}
	}
	return strings.Join(lines, "\r\n")
}
