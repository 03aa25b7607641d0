package downloader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-stockmedia-download/internal/models"
)

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func serveBytes(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
		w.Write(data)
	}))
}

// TestNewDownloader_NilClient tests that a default client is created when nil is passed
func TestNewDownloader_NilClient(t *testing.T) {
	d := NewDownloader(nil, 0)

	if d.client == nil {
		t.Fatal("Expected default HTTP client to be created")
	}
	if d.client.Timeout != 15*time.Minute {
		t.Errorf("Expected default timeout to be 15 minutes, got %v", d.client.Timeout)
	}
	if d.idleTimeout != DefaultIdleTimeout {
		t.Errorf("Expected idle timeout %v, got %v", DefaultIdleTimeout, d.idleTimeout)
	}
}

// TestFetch_ContentAddressedName tests the final name and digest
func TestFetch_ContentAddressedName(t *testing.T) {
	data := []byte("stock footage bytes")
	server := serveBytes(data)
	defer server.Close()

	dir := t.TempDir()
	working := filepath.Join(dir, "pexels_red_fox.jpg")

	res, err := NewDownloader(server.Client(), time.Second).Fetch(context.Background(), server.URL, working)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	digest := sha1Hex(data)
	want := filepath.Join(dir, "pexels_red_fox-"+digest[:10]+".jpg")
	if res.Path != want {
		t.Errorf("Expected path %s, got %s", want, res.Path)
	}
	if res.SHA1 != digest {
		t.Errorf("Expected sha1 %s, got %s", digest, res.SHA1)
	}
	if res.Bytes != int64(len(data)) {
		t.Errorf("Expected %d bytes, got %d", len(data), res.Bytes)
	}
	if res.Existing {
		t.Error("First download must not report Existing")
	}

	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("Failed to read final file: %v", err)
	}
	if sha1Hex(got) != digest {
		t.Error("Stored content does not hash to the reported digest")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("Expected only the final file, found %v", names)
	}
}

// TestFetch_Idempotent tests that a second fetch of the same bytes reuses the file
func TestFetch_Idempotent(t *testing.T) {
	data := []byte("same bytes every time")
	server := serveBytes(data)
	defer server.Close()

	dir := t.TempDir()
	working := filepath.Join(dir, "coverr_coverr-video.mp4")
	d := NewDownloader(server.Client(), time.Second)

	first, err := d.Fetch(context.Background(), server.URL, working)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	second, err := d.Fetch(context.Background(), server.URL, working)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}

	if first.Path != second.Path {
		t.Errorf("Expected same path, got %s and %s", first.Path, second.Path)
	}
	if !second.Existing {
		t.Error("Second fetch should report Existing")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("Expected a single file after two fetches, found %v", names)
	}
}

// TestFetch_SharedWorkingNameDifferentContent tests two assets with the same title
func TestFetch_SharedWorkingNameDifferentContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("clip A")) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("clip B")) })
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	working := filepath.Join(dir, "coverr_coverr-video.mp4")
	d := NewDownloader(server.Client(), time.Second)

	a, err := d.Fetch(context.Background(), server.URL+"/a", working)
	if err != nil {
		t.Fatalf("Fetch a failed: %v", err)
	}
	b, err := d.Fetch(context.Background(), server.URL+"/b", working)
	if err != nil {
		t.Fatalf("Fetch b failed: %v", err)
	}
	if a.Path == b.Path {
		t.Errorf("Different content must not share a path: %s", a.Path)
	}
	if names := listDir(t, dir); len(names) != 2 {
		t.Errorf("Expected two files, found %v", names)
	}
}

// TestCommit_ShortHashCollision tests the full-digest fallback name
func TestCommit_ShortHashCollision(t *testing.T) {
	dir := t.TempDir()
	working := filepath.Join(dir, "mixkit_mixkit-video.mp4")
	data := []byte("real content")
	digest := sha1Hex(data)

	// Occupy the short name with unrelated bytes.
	short := filepath.Join(dir, "mixkit_mixkit-video-"+digest[:10]+".mp4")
	if err := os.WriteFile(short, []byte("impostor"), 0o644); err != nil {
		t.Fatal(err)
	}
	temp := filepath.Join(dir, "mixkit_mixkit-video.123.part")
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		t.Fatal(err)
	}

	final, existing, err := commit(temp, working, digest)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if existing {
		t.Error("Fallback placement is a new file")
	}
	want := filepath.Join(dir, "mixkit_mixkit-video-"+digest+".mp4")
	if final != want {
		t.Errorf("Expected %s, got %s", want, final)
	}
	if b, _ := os.ReadFile(short); string(b) != "impostor" {
		t.Error("Existing file at the short name must be left untouched")
	}
}

// TestCommit_BothNamesTaken tests that exhausting both names is a collision
func TestCommit_BothNamesTaken(t *testing.T) {
	dir := t.TempDir()
	working := filepath.Join(dir, "videvo_clip.mp4")
	data := []byte("real content")
	digest := sha1Hex(data)

	for _, name := range []string{"videvo_clip-" + digest[:10] + ".mp4", "videvo_clip-" + digest + ".mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("impostor"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	temp := filepath.Join(dir, "videvo_clip.456.part")
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := commit(temp, working, digest)
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("Expected ErrCollision, got %v", err)
	}
	if errors.Is(err, ErrFileSystem) {
		t.Error("A collision is not a filesystem failure")
	}
	if _, statErr := os.Stat(temp); statErr != nil {
		t.Error("commit must leave the temp file for the caller to clean up")
	}
}

// TestFetch_NonOKStatus tests that error statuses leave nothing behind
func TestFetch_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := NewDownloader(server.Client(), time.Second).Fetch(context.Background(), server.URL, filepath.Join(dir, "x.jpg"))
	if !errors.Is(err, ErrHttpStatus) {
		t.Fatalf("Expected ErrHttpStatus, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("Expected empty dir, found %v", names)
	}
}

// TestFetch_TruncatedBody tests that a short body never produces a final file
func TestFetch_TruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := NewDownloader(server.Client(), time.Second).Fetch(context.Background(), server.URL, filepath.Join(dir, "x.mp4"))
	if !errors.Is(err, ErrHttpRequest) {
		t.Fatalf("Expected ErrHttpRequest, got %v", err)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("Expected no files after a truncated stream, found %v", names)
	}
}

// TestFetch_IdleTimeout tests a server that stops sending mid-body
func TestFetch_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	dir := t.TempDir()
	start := time.Now()
	_, err := NewDownloader(server.Client(), 100*time.Millisecond).Fetch(context.Background(), server.URL, filepath.Join(dir, "x.mp4"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Idle timeout took too long: %v", elapsed)
	}
	if names := listDir(t, dir); len(names) != 0 {
		t.Errorf("Expected no files after a stall, found %v", names)
	}
}

// TestFetch_ConcurrentSameContent tests racing fetches of identical bytes
func TestFetch_ConcurrentSameContent(t *testing.T) {
	data := []byte(strings.Repeat("identical payload ", 4096))
	server := serveBytes(data)
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(server.Client(), 5*time.Second)

	const n = 6
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Fetch(context.Background(), server.URL, filepath.Join(dir, "videvo_videvo-video.mp4"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Fetch %d failed: %v", i, err)
		}
		if results[i].Path != results[0].Path {
			t.Errorf("Fetch %d landed at %s, want %s", i, results[i].Path, results[0].Path)
		}
	}
	names := listDir(t, dir)
	if len(names) != 1 {
		t.Fatalf("Expected exactly one file, found %v", names)
	}
	got, _ := os.ReadFile(filepath.Join(dir, names[0]))
	if sha1Hex(got) != sha1Hex(data) {
		t.Error("Final file content does not match")
	}
}

// TestFetch_CancelledContext tests that cancellation is reported as a request error
func TestFetch_CancelledContext(t *testing.T) {
	server := serveBytes([]byte("x"))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader(server.Client(), time.Second).Fetch(ctx, server.URL, filepath.Join(t.TempDir(), "x.jpg"))
	if !errors.Is(err, ErrHttpRequest) {
		t.Errorf("Expected ErrHttpRequest, got %v", err)
	}
}

// TestClampWorkers tests pool size normalization
func TestClampWorkers(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultWorkers()},
		{-3, DefaultWorkers()},
		{1, 1},
		{12, 12},
		{100, MaxWorkers},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.in), func(t *testing.T) {
			if got := ClampWorkers(tt.in); got != tt.want {
				t.Errorf("ClampWorkers(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
	if d := DefaultWorkers(); d < 2 || d > 8 {
		t.Errorf("DefaultWorkers() = %d, want within [2, 8]", d)
	}
}

// TestDownloadAll_OneOutcomePerAsset tests the pool with mixed results
func TestDownloadAll_OneOutcomePerAsset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image " + r.URL.Path))
	})
	mux.HandleFunc("/vid/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video " + r.URL.Path))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	assets := []models.Asset{
		{Source: models.SourcePexels, Kind: models.KindImage, Title: "one", DownloadURL: server.URL + "/img/1", Extension: ".jpg", PageURL: "p1", LicenseHint: "L"},
		{Source: models.SourcePexels, Kind: models.KindImage, Title: "two", DownloadURL: server.URL + "/img/2", Extension: ".png"},
		{Source: models.SourcePixabay, Kind: models.KindVideo, Title: "three", DownloadURL: server.URL + "/vid/3"},
		{Source: models.SourceVidevo, Kind: models.KindVideo, Title: "gone", DownloadURL: server.URL + "/missing"},
		{Source: models.SourceCoverr, Kind: models.Kind("audio"), Title: "odd", DownloadURL: server.URL + "/img/4"},
	}

	baseDir := t.TempDir()
	var calls int
	var lastDone, lastTotal int
	outcomes := NewDownloader(server.Client(), time.Second).DownloadAll(context.Background(), baseDir, assets, 3,
		func(done, total int, _ models.DownloadOutcome) {
			calls++
			lastDone, lastTotal = done, total
		})

	if len(outcomes) != len(assets) {
		t.Fatalf("Expected %d outcomes, got %d", len(assets), len(outcomes))
	}
	if calls != len(assets) || lastDone != len(assets) || lastTotal != len(assets) {
		t.Errorf("Progress called %d times (last %d/%d), want %d", calls, lastDone, lastTotal, len(assets))
	}

	for i := 0; i < 3; i++ {
		o := outcomes[i]
		if !o.OK || o.Path == "" || len(o.SHA1) != 40 {
			t.Errorf("Outcome %d should succeed with path and sha1, got %+v", i, o)
		}
		if o.Title != assets[i].Title || o.Source != assets[i].Source {
			t.Errorf("Outcome %d lost provenance: %+v", i, o)
		}
	}
	if outcomes[0].PageURL != "p1" || outcomes[0].LicenseHint != "L" {
		t.Errorf("Provenance fields not copied: %+v", outcomes[0])
	}
	if !strings.HasPrefix(outcomes[2].Path, filepath.Join(baseDir, "videos")) {
		t.Errorf("Video landed outside videos/: %s", outcomes[2].Path)
	}
	if !strings.HasSuffix(outcomes[2].Path, ".mp4") {
		t.Errorf("Video without extension should default to .mp4: %s", outcomes[2].Path)
	}
	if !strings.HasSuffix(outcomes[1].Path, ".png") {
		t.Errorf("Image should keep .png: %s", outcomes[1].Path)
	}

	for _, i := range []int{3, 4} {
		o := outcomes[i]
		if o.OK || o.Path != "" || o.SHA1 != "" || o.Error == "" {
			t.Errorf("Outcome %d should be a bare failure, got %+v", i, o)
		}
	}

	if names := listDir(t, filepath.Join(baseDir, "images")); len(names) != 2 {
		t.Errorf("Expected 2 images, found %v", names)
	}
	for _, sub := range []string{"images", "videos"} {
		for _, name := range listDir(t, filepath.Join(baseDir, sub)) {
			if strings.HasSuffix(name, ".part") {
				t.Errorf("Leftover temp file %s", name)
			}
		}
	}
}

// TestDownloadAll_Empty tests the zero-asset case
func TestDownloadAll_Empty(t *testing.T) {
	outcomes := NewDownloader(nil, 0).DownloadAll(context.Background(), t.TempDir(), nil, 4, nil)
	if len(outcomes) != 0 {
		t.Errorf("Expected no outcomes, got %d", len(outcomes))
	}
}
