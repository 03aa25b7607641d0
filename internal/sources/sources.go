// Package sources normalizes search results from remote stock catalogs into
// models.Asset. Every adapter fails silently: errors are logged and an empty
// result is returned, so one broken catalog never aborts a run.
package sources

import (
	"context"
	"net/url"
	"strings"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/models"
)

// Adapter searches one catalog.
type Adapter interface {
	Source() models.Source
	Search(ctx context.Context, query string, count int) []models.Asset
}

// Default catalog endpoints.
const (
	DefaultUnsplashURL = "https://api.unsplash.com"
	DefaultPexelsURL   = "https://api.pexels.com"
	DefaultPixabayURL  = "https://pixabay.com"
	DefaultCoverrURL   = "https://coverr.co"
	DefaultMixkitURL   = "https://mixkit.co"
	DefaultVidevoURL   = "https://www.videvo.net"
)

// License hints propagated verbatim into outcomes.
const (
	LicenseUnsplash = "Unsplash License (free for commercial; see site)"
	LicensePexels   = "Pexels License (free; attribution not required)"
	LicensePixabay  = "Pixabay License (free; see site)"
	LicenseCoverr   = "Coverr Free License (see site)"
	LicenseMixkit   = "Mixkit License (free; see site)"
	LicenseVidevo   = "Videvo (license varies; check asset page)"
)

// Options overrides catalog base URLs, keyed by source. Missing entries use
// the defaults above.
type Options struct {
	BaseURLs map[models.Source]string
}

func (o Options) baseURL(s models.Source, fallback string) string {
	if u, ok := o.BaseURLs[s]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return fallback
}

// Registry is the closed set of adapters, built once at startup.
type Registry struct {
	adapters map[models.Source]Adapter
}

// NewRegistry wires every known catalog to the shared client. Structured
// adapters receive their own typed credential.
func NewRegistry(client *api.Client, creds models.Credentials, opts Options) *Registry {
	r := &Registry{adapters: make(map[models.Source]Adapter)}
	r.Register(NewUnsplash(client, creds.Unsplash, opts.baseURL(models.SourceUnsplash, DefaultUnsplashURL)))
	r.Register(NewPexels(client, creds.Pexels, opts.baseURL(models.SourcePexels, DefaultPexelsURL)))
	r.Register(NewPixabay(client, creds.Pixabay, opts.baseURL(models.SourcePixabay, DefaultPixabayURL)))
	r.Register(NewCoverr(client, opts.baseURL(models.SourceCoverr, DefaultCoverrURL)))
	r.Register(NewMixkit(client, opts.baseURL(models.SourceMixkit, DefaultMixkitURL)))
	r.Register(NewVidevo(client, opts.baseURL(models.SourceVidevo, DefaultVidevoURL)))
	return r
}

// NewRegistryFrom builds a registry from explicit adapters.
func NewRegistryFrom(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Source]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its source.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Source()] = a
}

// Adapter looks up a single source.
func (r *Registry) Adapter(s models.Source) (Adapter, bool) {
	a, ok := r.adapters[s]
	return a, ok
}

// Adapters returns adapters for ids in order, skipping unknown and repeated ids.
func (r *Registry) Adapters(ids []models.Source) []Adapter {
	seen := make(map[models.Source]bool, len(ids))
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := r.Adapter(id); ok {
			out = append(out, a)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// clampPerPage keeps per_page inside what a catalog accepts.
func clampPerPage(count, lo, hi int) int {
	if count < lo {
		return lo
	}
	if count > hi {
		return hi
	}
	return count
}

// isHTTPURL reports whether raw is an absolute http(s) URL.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
