package helpers

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// BytesToSize converts a byte count into a human readable string.
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	if bytes == 0 {
		return "0B"
	}

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%.2f%s", value, sizes[i])
}

// CounterWriter counts the bytes written through it.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// CheckAndMakeDir ensures a directory exists, creating it if needed.
func CheckAndMakeDir(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

// ResolvePath returns p unchanged when absolute, otherwise joined onto base.
// An empty p resolves to fallback under base.
func ResolvePath(base, p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

var sha1HexRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsSHA1Hex reports whether s is a lowercase hex SHA-1 digest.
func IsSHA1Hex(s string) bool {
	return sha1HexRe.MatchString(s)
}

// StringSliceContains reports whether item is in slice (case-insensitive).
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

var urlExtensionRegex = regexp.MustCompile(`^\.[a-z0-9]{2,5}$`)

// ExtensionFromURL returns the lowercase extension of the URL path, or
// fallback when the path has none that looks like a media extension.
func ExtensionFromURL(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == ".jpeg" {
		return ".jpg"
	}
	if !urlExtensionRegex.MatchString(ext) {
		return fallback
	}
	return ext
}

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// GetExtensionFromMimeType maps a MIME type onto a file extension.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	ext, ok := mimeExtensions[mimeType]
	return ext, ok
}
