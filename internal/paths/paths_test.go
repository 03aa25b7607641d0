package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-stockmedia-download/internal/models"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		ext      string
		expected string
	}{
		{name: "plain", text: "pexels_Ocean Waves", ext: ".jpg", expected: "pexels_Ocean_Waves.jpg"},
		{name: "runs collapse", text: "a  //  b", ext: ".jpg", expected: "a_b.jpg"},
		{name: "allowed punctuation kept", text: "clip-01.final_v2", ext: ".mp4", expected: "clip-01.final_v2.mp4"},
		{name: "edges trimmed", text: "  (hello)  ", ext: ".png", expected: "hello.png"},
		{name: "empty becomes placeholder", text: "", ext: ".jpg", expected: "asset.jpg"},
		{name: "only unsafe becomes placeholder", text: "日本語!!", ext: ".mp4", expected: "asset.mp4"},
		{name: "extension without dot", text: "x", ext: "webm", expected: "x.webm"},
		{name: "path separators removed", text: "../../etc/passwd", ext: ".jpg", expected: ".._.._etc_passwd.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeFilename(tt.text, tt.ext); got != tt.expected {
				t.Errorf("SafeFilename(%q, %q) = %q, want %q", tt.text, tt.ext, got, tt.expected)
			}
		})
	}
}

func TestSafeFilename_Truncates(t *testing.T) {
	got := SafeFilename(strings.Repeat("a", 400), ".jpg")
	if len(got) != MaxBaseNameLength+len(".jpg") {
		t.Errorf("expected truncated name of length %d, got %d", MaxBaseNameLength+4, len(got))
	}
}

func TestPlan_LayoutAndFallbacks(t *testing.T) {
	baseDir := t.TempDir()

	tests := []struct {
		name     string
		asset    models.Asset
		expected string
	}{
		{
			name:     "image with title",
			asset:    models.Asset{Source: models.SourcePexels, Kind: models.KindImage, Title: "Blue sea", Extension: ".jpg"},
			expected: filepath.Join(baseDir, "images", "pexels_Blue_sea.jpg"),
		},
		{
			name:     "video without extension falls back to mp4",
			asset:    models.Asset{Source: models.SourceCoverr, Kind: models.KindVideo, Title: "coverr-video"},
			expected: filepath.Join(baseDir, "videos", "coverr_coverr-video.mp4"),
		},
		{
			name:     "image without extension falls back to jpg",
			asset:    models.Asset{Source: models.SourceUnsplash, Kind: models.KindImage, Title: "x"},
			expected: filepath.Join(baseDir, "images", "unsplash_x.jpg"),
		},
		{
			name:     "empty title uses source",
			asset:    models.Asset{Source: models.SourceMixkit, Kind: models.KindVideo},
			expected: filepath.Join(baseDir, "videos", "mixkit_mixkit.mp4"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(baseDir, tt.asset)
			if err != nil {
				t.Fatalf("Plan returned error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Plan() = %q, want %q", got, tt.expected)
			}
			if info, err := os.Stat(filepath.Dir(got)); err != nil || !info.IsDir() {
				t.Errorf("expected directory %s to exist", filepath.Dir(got))
			}
		})
	}
}

func TestPlan_IsDeterministic(t *testing.T) {
	baseDir := t.TempDir()
	asset := models.Asset{Source: models.SourcePixabay, Kind: models.KindImage, Title: "pixabay-42"}

	first, err := Plan(baseDir, asset)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	second, err := Plan(baseDir, asset)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if first != second {
		t.Errorf("Plan not deterministic: %q vs %q", first, second)
	}
}

func TestPlan_RejectsUnknownKind(t *testing.T) {
	if _, err := Plan(t.TempDir(), models.Asset{Source: models.SourcePexels, Kind: "audio"}); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}

func TestEnsureLayoutAndManifestPath(t *testing.T) {
	baseDir := t.TempDir()
	if err := EnsureLayout(baseDir); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	for _, sub := range []string{"images", "videos", "_meta"} {
		if _, err := os.Stat(filepath.Join(baseDir, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}
	if got, want := ManifestPath(baseDir), filepath.Join(baseDir, "_meta", "manifest.json"); got != want {
		t.Errorf("ManifestPath() = %q, want %q", got, want)
	}
}

func TestHashQualified(t *testing.T) {
	got := HashQualified(filepath.Join("out", "images", "pexels_sea.jpg"), "0123456789")
	want := filepath.Join("out", "images", "pexels_sea-0123456789.jpg")
	if got != want {
		t.Errorf("HashQualified() = %q, want %q", got, want)
	}
}
