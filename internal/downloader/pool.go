package downloader

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/paths"
	"go-stockmedia-download/internal/telemetry"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	MinWorkers = 1
	MaxWorkers = 32
)

// DefaultWorkers is min(8, max(2, NumCPU)).
func DefaultWorkers() int {
	return min(8, max(2, runtime.NumCPU()))
}

// ClampWorkers maps a requested pool size into [MinWorkers, MaxWorkers].
// Zero or negative means DefaultWorkers.
func ClampWorkers(n int) int {
	if n <= 0 {
		n = DefaultWorkers()
	}
	return max(MinWorkers, min(n, MaxWorkers))
}

type downloadJob struct {
	index int
	asset models.Asset
}

// ProgressFunc observes each outcome as it is produced. Calls are serialized.
type ProgressFunc func(done, total int, outcome models.DownloadOutcome)

// DownloadAll fetches every asset under baseDir on a pool of workers and
// returns exactly one outcome per asset, in input order.
func (d *Downloader) DownloadAll(ctx context.Context, baseDir string, assets []models.Asset, workers int, progress ProgressFunc) []models.DownloadOutcome {
	outcomes := make([]models.DownloadOutcome, len(assets))
	if len(assets) == 0 {
		return outcomes
	}
	workers = min(ClampWorkers(workers), len(assets))
	log.Infof("Starting %d download workers for %d assets", workers, len(assets))

	jobs := make(chan downloadJob)
	var wg sync.WaitGroup
	var progressMu sync.Mutex
	done := 0

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logPrefix := fmt.Sprintf("Worker-%d", id)
			log.Debugf("[%s] Starting", logPrefix)
			for job := range jobs {
				outcome := d.downloadOne(ctx, logPrefix, baseDir, job.asset)
				outcomes[job.index] = outcome

				progressMu.Lock()
				done++
				if progress != nil {
					progress(done, len(assets), outcome)
				}
				progressMu.Unlock()
			}
			log.Debugf("[%s] Finished", logPrefix)
		}(w)
	}

	for i, asset := range assets {
		jobs <- downloadJob{index: i, asset: asset}
	}
	close(jobs)
	wg.Wait()

	ok := 0
	for _, o := range outcomes {
		if o.OK {
			ok++
		}
	}
	log.Infof("Finished downloads: %d/%d ok", ok, len(outcomes))
	return outcomes
}

// downloadOne never panics and never returns without an outcome.
func (d *Downloader) downloadOne(ctx context.Context, logPrefix, baseDir string, asset models.Asset) (outcome models.DownloadOutcome) {
	outcome = models.NewOutcome(asset)
	ctx, span := telemetry.Tracer().Start(ctx, "downloader.Fetch")
	span.SetAttributes(
		attribute.String("source", asset.Source.String()),
		attribute.String("kind", string(asset.Kind)),
	)
	start := time.Now()
	d.metrics.DownloadStarted()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] Panic while downloading %s: %v\n%s", logPrefix, asset.DownloadURL, r, debug.Stack())
			outcome = models.NewOutcome(asset)
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
		if !outcome.OK {
			span.SetStatus(codes.Error, outcome.Error)
		}
		span.End()
		d.metrics.DownloadFinished(asset.Source.String(), string(asset.Kind), outcome.OK, outcome.Bytes, time.Since(start))
	}()

	if ctx.Err() != nil {
		outcome.Error = ctx.Err().Error()
		return outcome
	}

	workingPath, err := paths.Plan(baseDir, asset)
	if err != nil {
		log.WithError(err).Errorf("[%s] Cannot plan path for %q", logPrefix, asset.Title)
		outcome.Error = err.Error()
		return outcome
	}

	result, err := d.Fetch(ctx, asset.DownloadURL, workingPath)
	if err != nil {
		log.WithError(err).Warnf("[%s] Download failed for %s", logPrefix, asset.DownloadURL)
		span.RecordError(err)
		outcome.Error = err.Error()
		return outcome
	}

	outcome.OK = true
	outcome.Path = result.Path
	outcome.SHA1 = result.SHA1
	outcome.Bytes = result.Bytes
	log.Infof("[%s] Saved %s in %v", logPrefix, result.Path, time.Since(start).Round(time.Millisecond))
	return outcome
}
