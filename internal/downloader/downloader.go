package downloader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/metrics"
	"go-stockmedia-download/internal/paths"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error")
	ErrCollision   = errors.New("hash-named target holds different content")
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
	ErrTimeout     = errors.New("download stalled")
)

const (
	// DefaultIdleTimeout bounds the wait for headers and for each body read.
	DefaultIdleTimeout = 25 * time.Second
	// ShortHashLength is how many hex digits of the SHA-1 go into the file name.
	ShortHashLength = 10
)

// Result describes a file that is on disk after a successful Fetch.
type Result struct {
	Path     string
	SHA1     string
	Bytes    int64
	Existing bool // identical content was already stored under Path
}

// Downloader streams remote files into content-addressed names.
type Downloader struct {
	client      *http.Client
	idleTimeout time.Duration
	metrics     *metrics.Recorder
}

// NewDownloader creates a new Downloader instance. A non-positive idleTimeout
// uses DefaultIdleTimeout.
func NewDownloader(client *http.Client, idleTimeout time.Duration) *Downloader {
	if client == nil {
		// Provide a default client if none is passed
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Downloader{
		client:      client,
		idleTimeout: idleTimeout,
	}
}

// WithMetrics attaches a recorder used by DownloadAll.
func (d *Downloader) WithMetrics(rec *metrics.Recorder) *Downloader {
	d.metrics = rec
	return d
}

// idleReader re-arms the stall timer whenever data arrives and remembers the
// last non-EOF read error so write failures can be told apart.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
	readErr error
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	if err != nil && err != io.EOF {
		ir.readErr = err
	}
	return n, err
}

// Fetch downloads url next to workingPath. The body is streamed into a unique
// ".part" sibling while its SHA-1 is computed, then renamed to
// "<root>-<sha1[:10]><ext>". The final name never holds partial content.
func (d *Downloader) Fetch(ctx context.Context, url, workingPath string) (Result, error) {
	targetDir := filepath.Dir(workingPath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return Result{}, fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	timer := time.AfterFunc(d.idleTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer timer.Stop()

	transferErr := func(stage string, err error) error {
		if stalled.Load() {
			return fmt.Errorf("%w: no data from %s for %s", ErrTimeout, url, d.idleTimeout)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrHttpRequest, stage, url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, transferErr("performing request for", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	ext := filepath.Ext(workingPath)
	root := strings.TrimSuffix(filepath.Base(workingPath), ext)
	tempFile, err := os.CreateTemp(targetDir, root+".*.part")
	if err != nil {
		return Result{}, fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, workingPath, err)
	}

	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			log.Debugf("Cleaning up temporary file via defer: %s", tempFile.Name())
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s during defer cleanup", tempFile.Name())
			}
		}
	}()

	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	log.Debugf("Downloading %s to %s (Size: %s)", url, tempFile.Name(), helpers.BytesToSize(size))

	hasher := sha1.New()
	counter := &helpers.CounterWriter{Writer: io.MultiWriter(tempFile, hasher)}
	body := &idleReader{r: resp.Body, timer: timer, timeout: d.idleTimeout}
	if _, err := io.Copy(counter, body); err != nil {
		_ = tempFile.Close()
		if body.readErr != nil || stalled.Load() {
			return Result{}, transferErr("reading body from", err)
		}
		return Result{}, fmt.Errorf("%w: writing to temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return Result{}, fmt.Errorf("%w: syncing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	finalPath, existing, err := commit(tempFile.Name(), workingPath, digest)
	if err != nil {
		return Result{}, err
	}
	shouldCleanupTemp = existing

	if existing {
		log.Infof("Identical content already stored at %s, discarded download", finalPath)
	} else {
		log.Debugf("Stored %s (%s)", finalPath, helpers.BytesToSize(counter.Total))
	}
	return Result{Path: finalPath, SHA1: digest, Bytes: int64(counter.Total), Existing: existing}, nil
}

// commit moves tempPath to the short hash-qualified name of workingPath. If
// that name already holds the same bytes the temp file is left for the caller
// to discard; if it holds different bytes the full digest name is tried.
func commit(tempPath, workingPath, digest string) (string, bool, error) {
	candidates := []string{
		paths.HashQualified(workingPath, digest[:ShortHashLength]),
		paths.HashQualified(workingPath, digest),
	}
	for _, candidate := range candidates {
		existingDigest, err := hashFile(candidate)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Rename(tempPath, candidate); err != nil {
				return "", false, fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempPath, candidate, err)
			}
			return candidate, false, nil
		case err != nil:
			return "", false, fmt.Errorf("%w: hashing existing file %s: %w", ErrFileSystem, candidate, err)
		case existingDigest == digest:
			return candidate, true, nil
		default:
			log.Warnf("Short hash collision at %s, falling back to full digest name", candidate)
		}
	}
	return "", false, fmt.Errorf("%w: %s", ErrCollision, candidates[len(candidates)-1])
}

// hashFile returns the hex SHA-1 of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
