// Package aggregator fans a query out over the selected source adapters and
// merges whatever each returns.
package aggregator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go-stockmedia-download/internal/metrics"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/sources"
	"go-stockmedia-download/internal/telemetry"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxParallelSearches caps concurrent adapter calls.
	MaxParallelSearches = 6
)

// Aggregator runs adapter searches in parallel.
type Aggregator struct {
	registry    *sources.Registry
	maxParallel int
	metrics     *metrics.Recorder
}

// New returns an aggregator over registry. maxParallel <= 0 or above the cap
// uses MaxParallelSearches. rec may be nil.
func New(registry *sources.Registry, maxParallel int, rec *metrics.Recorder) *Aggregator {
	if maxParallel <= 0 || maxParallel > MaxParallelSearches {
		maxParallel = MaxParallelSearches
	}
	return &Aggregator{registry: registry, maxParallel: maxParallel, metrics: rec}
}

// Gather searches every adapter named in ids for up to count results each.
// It never fails: a broken adapter contributes nothing. Results arrive in
// completion order.
func (a *Aggregator) Gather(ctx context.Context, ids []models.Source, query string, count int) []models.Asset {
	adapters := a.registry.Adapters(ids)
	if len(adapters) == 0 {
		log.Warn("[aggregator] No adapters selected")
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "aggregator.Gather")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.Int("count", count),
		attribute.Int("adapters", len(adapters)),
	)

	var (
		mu     sync.Mutex
		merged []models.Asset
	)

	// Tasks always return nil so one failure never cancels its siblings.
	g := new(errgroup.Group)
	g.SetLimit(min(len(adapters), a.maxParallel))
	for _, adapter := range adapters {
		g.Go(func() error {
			found := a.searchOne(ctx, adapter, query, count)
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("assets", len(merged)))
	log.Infof("[aggregator] %d assets from %d sources", len(merged), len(adapters))
	return merged
}

func (a *Aggregator) searchOne(ctx context.Context, adapter sources.Adapter, query string, count int) (found []models.Asset) {
	name := adapter.Source().String()
	ctx, span := telemetry.Tracer().Start(ctx, "source.Search")
	span.SetAttributes(attribute.String("source", name))
	start := time.Now()
	panicked := false

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			found = nil
			err := fmt.Errorf("adapter panic: %v", r)
			log.WithError(err).Errorf("[%s] Search crashed\n%s", name, debug.Stack())
			span.RecordError(err)
			span.SetStatus(codes.Error, "adapter panic")
		}
		a.metrics.ObserveSearch(name, len(found), time.Since(start), panicked)
		span.SetAttributes(attribute.Int("assets", len(found)))
		span.End()
		log.Infof("%s: %d assets", name, len(found))
	}()

	found = revalidate(name, adapter.Search(ctx, query, count))
	return found
}

// revalidate drops records an adapter should never have produced.
func revalidate(name string, assets []models.Asset) []models.Asset {
	valid := assets[:0]
	for _, asset := range assets {
		if !asset.Valid() {
			log.Debugf("[%s] Dropping invalid asset %q", name, asset.Title)
			continue
		}
		valid = append(valid, asset)
	}
	if len(valid) == 0 {
		return nil
	}
	return valid
}
