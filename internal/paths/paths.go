package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"
)

const (
	// MetaDir holds run artefacts (manifest, history, index, metrics).
	MetaDir = "_meta"
	// ManifestFile is the manifest name inside MetaDir.
	ManifestFile = "manifest.json"
	// PlaceholderName replaces a filename that sanitizes to nothing.
	PlaceholderName = "asset"
	// MaxBaseNameLength bounds the sanitized stem, leaving room for the hash suffix.
	MaxBaseNameLength = 150
)

// Runs of anything outside [A-Za-z0-9._-] collapse to a single underscore.
var unsafeRunRegex = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename builds a filesystem-safe name from free text and an extension.
func SafeFilename(text, ext string) string {
	base := unsafeRunRegex.ReplaceAllString(text, "_")
	base = strings.Trim(base, "_")
	if len(base) > MaxBaseNameLength {
		base = strings.TrimRight(base[:MaxBaseNameLength], "_")
	}
	if base == "" {
		base = PlaceholderName
	}

	ext = unsafeRunRegex.ReplaceAllString(strings.TrimSpace(ext), "")
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + ext
}

// WorkingName is the per-asset file name before hash qualification.
func WorkingName(asset models.Asset) string {
	title := asset.Title
	if strings.TrimSpace(title) == "" {
		title = string(asset.Source)
	}
	return SafeFilename(fmt.Sprintf("%s_%s", asset.Source, title), asset.ResolvedExtension())
}

// Plan returns the working path for an asset under baseDir, creating the
// kind subfolder if needed. The downloader never writes to this exact path;
// it inserts the content hash before the extension.
func Plan(baseDir string, asset models.Asset) (string, error) {
	if !asset.Kind.Valid() {
		return "", fmt.Errorf("cannot plan path for asset with kind %q", asset.Kind)
	}
	dir := filepath.Join(baseDir, asset.Kind.Dir())
	if !helpers.CheckAndMakeDir(dir) {
		return "", fmt.Errorf("failed to create directory %s", dir)
	}
	return filepath.Join(dir, WorkingName(asset)), nil
}

// EnsureLayout creates the images, videos and metadata folders under baseDir.
func EnsureLayout(baseDir string) error {
	for _, sub := range []string{models.KindImage.Dir(), models.KindVideo.Dir(), MetaDir} {
		dir := filepath.Join(baseDir, sub)
		if !helpers.CheckAndMakeDir(dir) {
			return fmt.Errorf("failed to create directory %s", dir)
		}
	}
	return nil
}

// MetaPath returns name inside the metadata folder of baseDir.
func MetaPath(baseDir, name string) string {
	return filepath.Join(baseDir, MetaDir, name)
}

// ManifestPath is the fixed manifest location for a run rooted at baseDir.
func ManifestPath(baseDir string) string {
	return MetaPath(baseDir, ManifestFile)
}

// HashQualified inserts a digest between the stem and extension of path.
func HashQualified(path, digest string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + digest + ext
}
