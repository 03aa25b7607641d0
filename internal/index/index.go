// Package index keeps a local full-text index of downloaded assets so earlier
// runs can be searched without re-querying the catalogs.
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-stockmedia-download/internal/models"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	log "github.com/sirupsen/logrus"
)

// Document is what gets stored per downloaded file. The SHA-1 is the
// document id, so the same bytes downloaded twice index once.
type Document struct {
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	LicenseHint string    `json:"license_hint"`
	PageURL     string    `json:"page_url"`
	Path        string    `json:"path"`
	SHA1        string    `json:"sha1"`
	Query       string    `json:"query"`
	RunID       string    `json:"run_id"`
	Bytes       float64   `json:"bytes"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float64
	Title   string
	Source  string
	Kind    string
	Path    string
	PageURL string
	Query   string
}

func newMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	stored := bleve.NewTextFieldMapping()
	stored.Index = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("source", keyword)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("sha1", keyword)
	doc.AddFieldMappingsAt("run_id", keyword)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("query", text)
	doc.AddFieldMappingsAt("license_hint", text)
	doc.AddFieldMappingsAt("path", stored)
	doc.AddFieldMappingsAt("page_url", stored)
	doc.AddFieldMappingsAt("bytes", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("indexed_at", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenOrCreateIndex opens the index at path, creating it when missing.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		log.Debugf("Opened search index at %s", path)
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err = bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	log.Infof("Created search index at %s", path)
	return idx, nil
}

// OpenMemory returns a throwaway in-memory index.
func OpenMemory() (bleve.Index, error) {
	return bleve.NewMemOnly(newMapping())
}

// IndexOutcomes adds every successful outcome of a run in one batch and
// returns how many documents were written.
func IndexOutcomes(idx bleve.Index, runID, searchQuery string, outcomes []models.DownloadOutcome) (int, error) {
	batch := idx.NewBatch()
	now := time.Now().UTC()
	for _, o := range outcomes {
		if !o.OK || o.SHA1 == "" {
			continue
		}
		doc := Document{
			Source:      string(o.Source),
			Kind:        string(o.Kind),
			Title:       o.Title,
			LicenseHint: o.LicenseHint,
			PageURL:     o.PageURL,
			Path:        o.Path,
			SHA1:        o.SHA1,
			Query:       searchQuery,
			RunID:       runID,
			Bytes:       float64(o.Bytes),
			IndexedAt:   now,
		}
		if err := batch.Index(o.SHA1, doc); err != nil {
			return 0, fmt.Errorf("failed to queue %s for indexing: %w", o.SHA1, err)
		}
	}
	n := batch.Size()
	if n == 0 {
		return 0, nil
	}
	if err := idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to index %d documents: %w", n, err)
	}
	log.Debugf("Indexed %d assets for run %s", n, runID)
	return n, nil
}

// Search runs a query-string query (e.g. "fox", "source:pexels kind:video").
// An empty query matches everything.
func Search(idx bleve.Index, q string, limit int) ([]Hit, uint64, error) {
	if limit <= 0 {
		limit = 20
	}
	var bq query.Query
	if q == "" {
		bq = bleve.NewMatchAllQuery()
	} else {
		bq = bleve.NewQueryStringQuery(q)
	}
	req := bleve.NewSearchRequestOptions(bq, limit, 0, false)
	req.Fields = []string{"title", "source", "kind", "path", "page_url", "query"}

	res, err := idx.Search(req)
	if err != nil {
		return nil, 0, fmt.Errorf("index search %q failed: %w", q, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:      h.ID,
			Score:   h.Score,
			Title:   fieldString(h.Fields, "title"),
			Source:  fieldString(h.Fields, "source"),
			Kind:    fieldString(h.Fields, "kind"),
			Path:    fieldString(h.Fields, "path"),
			PageURL: fieldString(h.Fields, "page_url"),
			Query:   fieldString(h.Fields, "query"),
		})
	}
	return hits, res.Total, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
