// Package engine is the cache's coordinating actor: it owns the coverage
// ledger, the RAW and WORKING tables, and the durability layer, and
// serializes every mutation behind a single exclusive lock, matching the
// source's "global tables under one lock" design re-architected as one
// owning struct per the design notes.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dataexplorer/internal/coverage"
	"dataexplorer/internal/eventbus"
	"dataexplorer/internal/model"
	"dataexplorer/internal/rawtable"
	"dataexplorer/internal/store"
	"dataexplorer/internal/upstream"
	"dataexplorer/internal/working"
)

// Engine ties together the coverage ledger, RAW table, WORKING builder, and
// durability layer behind one coarse lock. Every exported method that
// mutates shared state takes the lock for its entire duration; upstream I/O
// inside FetchInto happens outside the lock, only the merge step re-takes it.
type Engine struct {
	mu sync.Mutex

	client *upstream.Client
	store  *store.Store
	bus    *eventbus.Bus

	coverage *coverage.Ledger
	raw      *rawtable.Table
	working  *working.Builder

	concurrency int

	taglist      []model.TagInfo
	siteSettings model.SiteSettings
	tagSettings  model.TagSettings
}

// New builds an Engine and loads any previously persisted state. bus may be
// nil, in which case the engine runs without publishing cache-state events.
func New(client *upstream.Client, st *store.Store, concurrency int, bus *eventbus.Bus) *Engine {
	if concurrency <= 0 {
		concurrency = 4
	}
	e := &Engine{
		client:      client,
		store:       st,
		bus:         bus,
		coverage:    coverage.New(),
		raw:         rawtable.New(),
		working:     working.New(),
		concurrency: concurrency,
	}
	e.loadFromDisk()
	return e
}

// publish routes a cache-state change onto the bus, if one is wired. It is a
// no-op when the engine was built without a bus (e.g. in tests that only
// exercise the core tables).
func (e *Engine) publish(eventType string, data interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: eventType, Timestamp: time.Now(), Data: data})
}

func (e *Engine) loadFromDisk() {
	e.taglist = e.store.LoadTaglist()
	e.coverage.Load(e.store.LoadCoverage())
	rows, order := e.store.LoadRawTable()
	e.raw.LoadRows(rows, order)
	wRows, wOrder := e.store.LoadWorkingTable()
	e.working.Load(wRows, wOrder)
	e.siteSettings = e.store.LoadSiteSettings()
	e.tagSettings = e.store.LoadTagSettings()
	if e.tagSettings.ScaleFactors == nil {
		e.tagSettings = model.NewTagSettings()
	}
}

// Taglist returns the cached taglist, refreshing from upstream first when
// refresh is true or no snapshot has ever been cached.
func (e *Engine) Taglist(ctx context.Context, refresh bool) ([]model.TagInfo, error) {
	e.mu.Lock()
	needsFetch := refresh || len(e.taglist) == 0
	e.mu.Unlock()

	if !needsFetch {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.taglist, nil
	}

	tags, err := e.client.Taglist(ctx)
	if err != nil {
		log.Printf("[fetch] taglist refresh failed, serving cached: %v", err)
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.taglist, nil
	}

	e.mu.Lock()
	e.taglist = tags
	e.mu.Unlock()
	if err := e.store.SaveTaglist(tags); err != nil {
		log.Printf("[store] save taglist: %v", err)
	}
	return tags, nil
}

// FetchResult is the outcome of a FetchInto call.
type FetchResult struct {
	NewData      bool
	RedrawNeeded bool
}

type gapJob struct {
	tag      string
	interval model.Interval
}

type gapResult struct {
	tag     string
	samples []model.Sample
	ok      bool
}

// FetchInto implements the Fetch Planner & Executor: it drops tags no longer
// requested, computes the coverage gaps for the remaining tags, fans the
// gaps out to a bounded worker pool, merges results into RAW, and persists
// atomically if anything changed.
func (e *Engine) FetchInto(ctx context.Context, tags []string, startSec, endSec int64) (FetchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[t] = true
	}
	for _, tracked := range e.coverage.Tags() {
		if !wanted[tracked] {
			e.raw.DropColumn(tracked)
			e.coverage.Drop(tracked)
		}
	}

	before := e.raw.Signature()

	req := model.Interval{StartSec: startSec, EndSec: endSec}
	var jobs []gapJob
	for _, tag := range tags {
		for _, gap := range e.coverage.Gaps(tag, req) {
			jobs = append(jobs, gapJob{tag: tag, interval: gap})
		}
	}

	if len(jobs) > 0 {
		// Upstream I/O runs without the lock; merging re-takes it.
		e.mu.Unlock()
		results := e.runJobs(ctx, jobs)
		e.mu.Lock()
		for _, res := range results {
			if !res.ok {
				continue
			}
			e.raw.Ingest(rawtable.MiniTable{Tag: res.tag, Samples: res.samples})
		}
		// Record coverage only for jobs whose fetch succeeded (possibly
		// empty result — an empty upstream window is still "covered").
		for i, job := range jobs {
			if results[i].ok {
				e.coverage.Record(job.tag, job.interval)
			}
		}
	}

	after := e.raw.Signature()
	changed := after != before
	result := FetchResult{NewData: changed, RedrawNeeded: changed}
	if result.NewData {
		if err := e.persistLocked(); err != nil {
			return result, fmt.Errorf("engine: persist after fetch: %w", err)
		}
	}
	e.publish("fetch_complete", map[string]bool{"newData": result.NewData, "redrawNeeded": result.RedrawNeeded})
	return result, nil
}

// runJobs dispatches gap fetches to a bounded worker pool (parallelism =
// min(len(jobs), concurrency)). Submission order is not observable; the
// returned slice is aligned to jobs by index so callers can still attribute
// results deterministically once everything has resolved.
func (e *Engine) runJobs(ctx context.Context, jobs []gapJob) []gapResult {
	results := make([]gapResult, len(jobs))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, j gapJob) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[fetch] recovered panic fetching %s [%d,%d]: %v", j.tag, j.interval.StartSec, j.interval.EndSec, r)
					results[idx] = gapResult{tag: j.tag, ok: false}
				}
			}()

			samples, err := e.client.FetchSamples(ctx, j.tag, j.interval.StartSec, j.interval.EndSec)
			if err != nil {
				log.Printf("[upstream] fetch %s [%d,%d]: %v", j.tag, j.interval.StartSec, j.interval.EndSec, err)
				results[idx] = gapResult{tag: j.tag, ok: false}
				return
			}
			results[idx] = gapResult{tag: j.tag, samples: samples, ok: true}
		}(i, job)
	}

	wg.Wait()
	return results
}

// persistLocked writes RAW and coverage atomically. Caller holds e.mu.
func (e *Engine) persistLocked() error {
	rows := e.raw.Snapshot()
	order := e.raw.Columns()
	if err := e.store.SaveRawTable(rows, order); err != nil {
		return err
	}
	if err := e.store.SaveCoverage(e.coverage.Snapshot()); err != nil {
		return err
	}
	return nil
}

// BuildWorking rebuilds the WORKING table under the given presentation
// settings and persists it when it actually changed.
func (e *Engine) BuildWorking(offsetHours float64, forwardFill bool) ([]rawtable.Row, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	redraw := e.working.Build(e.raw, offsetHours, forwardFill, e.tagSettings)
	rows := e.working.Rows()
	if redraw {
		if err := e.store.SaveWorkingTable(rows, e.working.Columns()); err != nil {
			return rows, redraw, fmt.Errorf("engine: persist working: %w", err)
		}
	}
	e.publish("redraw_needed", map[string]bool{"redrawNeeded": redraw})
	return rows, redraw, nil
}

// SiteSettings returns the current site settings.
func (e *Engine) SiteSettings() model.SiteSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.siteSettings
}

// SetSiteSettings replaces and persists the site settings.
func (e *Engine) SetSiteSettings(s model.SiteSettings) error {
	e.mu.Lock()
	e.siteSettings = s
	e.mu.Unlock()
	return e.store.SaveSiteSettings(s)
}

// TagSettings returns the current tag settings.
func (e *Engine) TagSettings() model.TagSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tagSettings
}

// SetTagSettings replaces and persists the tag settings.
func (e *Engine) SetTagSettings(s model.TagSettings) error {
	e.mu.Lock()
	e.tagSettings = s
	e.mu.Unlock()
	return e.store.SaveTagSettings(s)
}

// ClearCache wipes RAW, WORKING, coverage, and the taglist, both in memory
// and on disk.
func (e *Engine) ClearCache() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raw.Clear()
	e.working.Clear()
	e.coverage.Clear()
	e.taglist = nil
	return e.store.ClearCache()
}

// LogEvent appends a diagnostic line to the events log.
func (e *Engine) LogEvent(kind, message string) error {
	return e.store.AppendEvent(kind, message)
}
