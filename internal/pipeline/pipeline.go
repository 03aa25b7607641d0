// Package pipeline ties the two phases of a run together: every selected
// catalog is searched first, then the gathered assets are downloaded. The
// phases share only the HTTP client.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go-stockmedia-download/internal/aggregator"
	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/config"
	"go-stockmedia-download/internal/database"
	"go-stockmedia-download/internal/downloader"
	"go-stockmedia-download/internal/index"
	"go-stockmedia-download/internal/manifest"
	"go-stockmedia-download/internal/metrics"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/paths"
	"go-stockmedia-download/internal/sources"
	"go-stockmedia-download/internal/telemetry"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Options carries overrides that do not belong in user configuration.
type Options struct {
	// BaseURLs points catalogs at other hosts.
	BaseURLs map[models.Source]string
	// Transport replaces the pooled transport under the retry chain.
	Transport http.RoundTripper
}

// Request describes one search-then-download run.
type Request struct {
	Query     string
	Sources   []models.Source
	Count     int
	OutputDir string
	Workers   int
	// Select, when set, receives every gathered asset and returns the subset
	// to download.
	Select   func([]models.Asset) []models.Asset
	Progress downloader.ProgressFunc
}

// Summary is the run-level result. Found == 0 means nothing was gathered and
// nothing was downloaded.
type Summary struct {
	RunID        string
	Found        int
	Total        int
	OK           int
	ManifestPath string
	Outcomes     []models.DownloadOutcome
}

// Pipeline owns the shared client and every run-scoped store.
type Pipeline struct {
	cfg        models.Config
	client     *api.Client
	registry   *sources.Registry
	aggregator *aggregator.Aggregator
	downloader *downloader.Downloader
	metrics    *metrics.Recorder
	history    *database.DB
	index      bleve.Index
	progress   downloader.ProgressFunc
}

type runMeta struct {
	id      string
	query   string
	sources []models.Source
	found   int
	started time.Time
}

// New builds a pipeline from validated configuration. History and index
// failures only disable those features.
func New(cfg models.Config, opts Options) (*Pipeline, error) {
	client, err := api.NewClient(api.ClientOptions{
		UserAgent:      cfg.UserAgent,
		APILogPath:     config.APILogPath(cfg),
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: time.Duration(cfg.InitialRetryDelayMs) * time.Millisecond,
		Tracing:        telemetry.Enabled(),
		Base:           opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}

	registry := sources.NewRegistry(client, cfg.Credentials, sources.Options{BaseURLs: opts.BaseURLs})
	p := &Pipeline{
		cfg:        cfg,
		client:     client,
		registry:   registry,
		aggregator: aggregator.New(registry, cfg.MaxParallelSearches, rec),
		downloader: downloader.NewDownloader(client.HTTPClient(), time.Duration(cfg.DownloadTimeoutSec)*time.Second).WithMetrics(rec),
		metrics:    rec,
	}

	if cfg.History.Enabled {
		db, err := database.Open(config.HistoryPath(cfg))
		if err != nil {
			log.WithError(err).Warn("Run history disabled")
		} else {
			p.history = db
		}
	}
	if cfg.Index.Enabled {
		idx, err := index.OpenOrCreateIndex(config.IndexPath(cfg))
		if err != nil {
			log.WithError(err).Warn("Search index disabled")
		} else {
			p.index = idx
		}
	}
	return p, nil
}

// SetProgress installs a callback for the Download entry point.
func (p *Pipeline) SetProgress(fn downloader.ProgressFunc) {
	p.progress = fn
}

// Registry exposes the adapters, e.g. for listing.
func (p *Pipeline) Registry() *sources.Registry { return p.registry }

// History returns the run history, or nil when disabled.
func (p *Pipeline) History() *database.DB { return p.history }

// Index returns the asset index, or nil when disabled.
func (p *Pipeline) Index() bleve.Index { return p.index }

// Close releases the stores and idle connections.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.index != nil {
		if err := p.index.Close(); err != nil {
			firstErr = err
		}
	}
	if p.history != nil {
		if err := p.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Search queries the given catalogs concurrently and returns every valid asset.
func (p *Pipeline) Search(ctx context.Context, ids []models.Source, query string, count int) []models.Asset {
	log.Infof("Start | query=%q, items=%d, sources=%v", query, count, ids)
	return p.aggregator.Gather(ctx, ids, query, count)
}

// Download fetches assets into outDir and writes the run artefacts. It
// returns one outcome per asset.
func (p *Pipeline) Download(ctx context.Context, outDir string, assets []models.Asset, workers int) []models.DownloadOutcome {
	meta := runMeta{query: p.cfg.Query, found: len(assets), started: time.Now()}
	return p.download(ctx, outDir, assets, workers, p.progress, meta).Outcomes
}

// Run searches, waits for every adapter, optionally lets the caller pick a
// subset, then downloads.
func (p *Pipeline) Run(ctx context.Context, req Request) Summary {
	started := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("query", req.Query), attribute.Int("count", req.Count))

	assets := p.Search(ctx, req.Sources, req.Query, req.Count)
	if len(assets) == 0 {
		log.Warn("No assets found. Try a broader query or enable more sources.")
		return Summary{}
	}
	found := len(assets)

	if req.Select != nil {
		assets = req.Select(assets)
		log.Infof("Selected %d of %d assets", len(assets), found)
		if len(assets) == 0 {
			return Summary{Found: found}
		}
	}

	meta := runMeta{query: req.Query, sources: req.Sources, found: found, started: started}
	return p.download(ctx, req.OutputDir, assets, req.Workers, req.Progress, meta)
}

func (p *Pipeline) download(ctx context.Context, outDir string, assets []models.Asset, workers int, progress downloader.ProgressFunc, meta runMeta) Summary {
	if meta.id == "" {
		meta.id = uuid.NewString()
	}
	if err := paths.EnsureLayout(outDir); err != nil {
		log.WithError(err).Warn("Failed to prepare output layout")
	}

	outcomes := p.downloader.DownloadAll(ctx, outDir, assets, workers, progress)
	summary := Summary{RunID: meta.id, Found: meta.found, Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.OK {
			summary.OK++
		}
	}

	mpath, err := manifest.Write(outDir, models.Manifest{
		GeneratedAt: models.UnixTime(time.Now()),
		RunID:       meta.id,
		Query:       meta.query,
		Results:     outcomes,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to write manifest")
	} else {
		summary.ManifestPath = mpath
		log.Infof("Manifest written to %s", mpath)
	}

	p.record(outDir, meta, summary)
	p.indexOutcomes(meta, outcomes)
	p.writeMetrics(outDir)
	return summary
}

func (p *Pipeline) record(outDir string, meta runMeta, summary Summary) {
	if p.history == nil {
		return
	}
	ids := meta.sources
	if len(ids) == 0 {
		ids = sourcesOf(summary.Outcomes)
	}
	names := make([]string, len(ids))
	for i, s := range ids {
		names[i] = s.String()
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	run := database.Run{
		ID:           meta.id,
		Query:        meta.query,
		Sources:      names,
		OutputDir:    absOut,
		ManifestPath: summary.ManifestPath,
		StartedAt:    meta.started,
		FinishedAt:   time.Now(),
		Found:        meta.found,
		Total:        summary.Total,
		OK:           summary.OK,
	}
	if err := p.history.RecordRun(run, summary.Outcomes); err != nil {
		log.WithError(err).Warn("Failed to record run history")
	}
}

func (p *Pipeline) indexOutcomes(meta runMeta, outcomes []models.DownloadOutcome) {
	if p.index == nil {
		return
	}
	if _, err := index.IndexOutcomes(p.index, meta.id, meta.query, outcomes); err != nil {
		log.WithError(err).Warn("Failed to index downloaded assets")
	}
}

func (p *Pipeline) writeMetrics(outDir string) {
	if p.metrics == nil {
		return
	}
	cfg := p.cfg
	cfg.OutputDir = outDir
	path := config.MetricsPath(cfg)
	if err := p.metrics.WriteTextfile(path); err != nil {
		log.WithError(err).Warn("Failed to write metrics textfile")
	}
}

func sourcesOf(outcomes []models.DownloadOutcome) []models.Source {
	seen := make(map[models.Source]bool)
	var out []models.Source
	for _, o := range outcomes {
		if !seen[o.Source] {
			seen[o.Source] = true
			out = append(out, o.Source)
		}
	}
	return out
}
