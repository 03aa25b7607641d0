package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the media family of an asset.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// Dir returns the output subfolder for the kind.
func (k Kind) Dir() string {
	if k == KindVideo {
		return "videos"
	}
	return "images"
}

// DefaultExtension is used when an asset carries no extension of its own.
func (k Kind) DefaultExtension() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".jpg"
}

// Source identifies one remote catalog.
type Source string

const (
	SourceUnsplash Source = "unsplash"
	SourcePexels   Source = "pexels"
	SourcePixabay  Source = "pixabay"
	SourceCoverr   Source = "coverr"
	SourceMixkit   Source = "mixkit"
	SourceVidevo   Source = "videvo"
)

var (
	// StructuredSources are keyed JSON APIs.
	StructuredSources = []Source{SourceUnsplash, SourcePexels, SourcePixabay}
	// ScrapedSources are unauthenticated HTML catalogs.
	ScrapedSources = []Source{SourceCoverr, SourceMixkit, SourceVidevo}
)

// AllSources returns every known source, structured ones first.
func AllSources() []Source {
	all := make([]Source, 0, len(StructuredSources)+len(ScrapedSources))
	all = append(all, StructuredSources...)
	return append(all, ScrapedSources...)
}

// ParseSource maps a user supplied identifier onto a Source.
func ParseSource(s string) (Source, error) {
	candidate := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSources() {
		if known == candidate {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Structured reports whether the source is a keyed JSON API.
func (s Source) Structured() bool {
	for _, known := range StructuredSources {
		if known == s {
			return true
		}
	}
	return false
}

func (s Source) String() string { return string(s) }

// Asset is the normalized search result every adapter produces.
type Asset struct {
	Source      Source         `json:"source"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	PreviewURL  string         `json:"preview_url,omitempty"`
	DownloadURL string         `json:"download_url"`
	Extension   string         `json:"extension,omitempty"`
	LicenseHint string         `json:"license_hint"`
	PageURL     string         `json:"page_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Valid reports whether the asset may be handed to the downloader.
func (a Asset) Valid() bool {
	return strings.TrimSpace(a.DownloadURL) != "" && a.Kind.Valid()
}

// ResolvedExtension returns the asset extension with a leading dot,
// falling back to the kind default.
func (a Asset) ResolvedExtension() string {
	ext := strings.TrimSpace(a.Extension)
	if ext == "" || ext == "." {
		return a.Kind.DefaultExtension()
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// DownloadOutcome is the result of one download attempt.
// SHA1 and Path are only set when OK is true.
type DownloadOutcome struct {
	OK          bool   `json:"ok"`
	Path        string `json:"path,omitempty"`
	SHA1        string `json:"sha1,omitempty"`
	Source      Source `json:"source"`
	Kind        Kind   `json:"kind"`
	PageURL     string `json:"page_url"`
	LicenseHint string `json:"license_hint"`
	Title       string `json:"title"`
	Bytes       int64  `json:"bytes,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewOutcome copies the provenance fields of an asset into a failed outcome.
func NewOutcome(a Asset) DownloadOutcome {
	return DownloadOutcome{
		Source:      a.Source,
		Kind:        a.Kind,
		PageURL:     a.PageURL,
		LicenseHint: a.LicenseHint,
		Title:       a.Title,
	}
}

// UnixTime marshals as fractional Unix seconds.
type UnixTime time.Time

func (t UnixTime) MarshalJSON() ([]byte, error) {
	tm := time.Time(t)
	secs := float64(tm.UnixNano()) / float64(time.Second)
	return []byte(strconv.FormatFloat(secs, 'f', 6, 64)), nil
}

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %s: %w", string(data), err)
	}
	whole := int64(secs)
	frac := int64((secs - float64(whole)) * float64(time.Second))
	*t = UnixTime(time.Unix(whole, frac))
	return nil
}

// Time returns the wrapped time.
func (t UnixTime) Time() time.Time { return time.Time(t) }

// Manifest is the persisted record of one run.
type Manifest struct {
	GeneratedAt UnixTime          `json:"generated_at"`
	RunID       string            `json:"run_id,omitempty"`
	Query       string            `json:"query,omitempty"`
	Results     []DownloadOutcome `json:"results"`
}

// Succeeded counts the successful outcomes.
func (m Manifest) Succeeded() int {
	n := 0
	for _, r := range m.Results {
		if r.OK {
			n++
		}
	}
	return n
}

type (
	// Config is the fully merged runtime configuration.
	Config struct {
		OutputDir   string        `toml:"OutputDir" json:"OutputDir"`
		Query       string        `toml:"Query" json:"Query"`
		LogLevel    string        `toml:"LogLevel" json:"LogLevel"`
		LogFormat   string        `toml:"LogFormat" json:"LogFormat"`
		LogFile     string        `toml:"LogFile" json:"LogFile"`
		UserAgent   string        `toml:"UserAgent" json:"UserAgent"`
		Sources     []string      `toml:"Sources" json:"Sources"`
		Credentials Credentials   `toml:"Credentials" json:"-"`
		History     HistoryConfig `toml:"History" json:"History"`
		Index       IndexConfig   `toml:"Index" json:"Index"`
		Metrics     MetricsConfig `toml:"Metrics" json:"Metrics"`
		// Integers
		Items               int `toml:"Items" json:"Items"`
		Workers             int `toml:"Workers" json:"Workers"`
		MaxParallelSearches int `toml:"MaxParallelSearches" json:"MaxParallelSearches"`
		RequestTimeoutSec   int `toml:"RequestTimeoutSec" json:"RequestTimeoutSec"`
		DownloadTimeoutSec  int `toml:"DownloadTimeoutSec" json:"DownloadTimeoutSec"`
		MaxRetries          int `toml:"MaxRetries" json:"MaxRetries"`
		InitialRetryDelayMs int `toml:"InitialRetryDelayMs" json:"InitialRetryDelayMs"`
		// Bools
		NoScrape       bool `toml:"NoScrape" json:"NoScrape"`
		LogApiRequests bool `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// Credentials holds one API key per structured source. An empty key
	// disables that source.
	Credentials struct {
		Unsplash string `toml:"Unsplash" json:"Unsplash"`
		Pexels   string `toml:"Pexels" json:"Pexels"`
		Pixabay  string `toml:"Pixabay" json:"Pixabay"`
	}

	// HistoryConfig controls the sqlite run history.
	HistoryConfig struct {
		DatabasePath string `toml:"DatabasePath" json:"DatabasePath"` // Relative to OutputDir if not absolute
		Enabled      bool   `toml:"Enabled" json:"Enabled"`
	}

	// IndexConfig controls the bleve index of downloaded assets.
	IndexConfig struct {
		Path    string `toml:"Path" json:"Path"` // Relative to OutputDir if not absolute
		Enabled bool   `toml:"Enabled" json:"Enabled"`
	}

	// MetricsConfig controls the prometheus textfile written after a run.
	MetricsConfig struct {
		TextfilePath string `toml:"TextfilePath" json:"TextfilePath"` // Relative to OutputDir if not absolute
		Enabled      bool   `toml:"Enabled" json:"Enabled"`
	}
)

// For returns the credential for a structured source.
func (c Credentials) For(s Source) string {
	switch s {
	case SourceUnsplash:
		return c.Unsplash
	case SourcePexels:
		return c.Pexels
	case SourcePixabay:
		return c.Pixabay
	}
	return ""
}

// Masked returns a copy safe for printing.
func (c Credentials) Masked() Credentials {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 4 {
			return "****"
		}
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}
	return Credentials{Unsplash: mask(c.Unsplash), Pexels: mask(c.Pexels), Pixabay: mask(c.Pixabay)}
}
