// Package search finds entries across logbook hierarchies and groups them
// into threads.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/metrics"
	"github.com/rpattn/logbook/internal/repository"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const indexCacheKey = "logbooks"

// DefaultIndexTTL bounds how stale the cached logbook tree may get.
const DefaultIndexTTL = 30 * time.Second

// Engine runs searches against the current store contents.
type Engine struct {
	repos  repository.Repositories
	cache  *cache.Cache
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	indexTTL time.Duration
	logger   zerolog.Logger
}

// WithIndexTTL sets how long the logbook tree is cached.
func WithIndexTTL(ttl time.Duration) Option {
	return func(c *engineConfig) {
		c.indexTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// NewEngine creates a search engine reading through repos.
func NewEngine(repos repository.Repositories, opts ...Option) *Engine {
	cfg := engineConfig{indexTTL: DefaultIndexTTL, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		repos:  repos,
		cache:  cache.New(cfg.indexTTL, 2*cfg.indexTTL),
		logger: cfg.logger.With().Str("component", "search").Logger(),
	}
}

// Invalidate drops the cached logbook tree.
func (e *Engine) Invalidate() {
	e.cache.Delete(indexCacheKey)
}

// Index returns the logbook tree, loading it when the cached copy expired.
func (e *Engine) Index(ctx context.Context) (*Index, error) {
	if cached, ok := e.cache.Get(indexCacheKey); ok {
		return cached.(*Index), nil
	}

	logbooks, err := e.repos.Logbooks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load logbooks: %w", err)
	}
	idx := NewIndex(logbooks)
	e.cache.SetDefault(indexCacheKey, idx)
	return idx, nil
}

// IndexFor returns the logbook tree, reloading it once when the cached copy
// is missing any of ids. Ids that are still missing after the reload are left
// for the caller to report.
func (e *Engine) IndexFor(ctx context.Context, ids ...int64) (*Index, error) {
	idx, err := e.Index(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := idx.Logbook(id); !ok {
			e.logger.Debug().Int64("logbook_id", id).Msg("logbook missing from cached index, reloading")
			e.Invalidate()
			return e.Index(ctx)
		}
	}
	return idx, nil
}

// Search returns one page of matching threads and the total match count.
func (e *Engine) Search(ctx context.Context, q domain.EntryQuery) (domain.SearchResult, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()
	metrics.SearchRequests.WithLabelValues("page").Inc()

	threads, err := e.threads(ctx, q)
	if err != nil {
		return domain.SearchResult{}, err
	}

	total := len(threads)
	page := paginate(threads, q.Limit, q.Offset)
	for i := range page {
		page[i].Preview = Preview(page[i].Entry.Content, page[i].Entry.ContentType)
	}

	e.logger.Debug().Int("total", total).Int("returned", len(page)).Dur("took", time.Since(start)).Msg("search")
	return domain.SearchResult{Threads: page, Total: total}, nil
}

// Count returns the number of threads, or of entries when a text filter is
// active, matching q.
func (e *Engine) Count(ctx context.Context, q domain.EntryQuery) (int, error) {
	metrics.SearchRequests.WithLabelValues("count").Inc()
	threads, err := e.threads(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(threads), nil
}

// threads evaluates q and returns all matching summaries, newest activity
// first. Previews are left empty.
func (e *Engine) threads(ctx context.Context, q domain.EntryQuery) ([]domain.ThreadSummary, error) {
	predicates, err := compileFilters(q)
	if err != nil {
		return nil, err
	}

	var roots []int64
	if q.LogbookID != nil {
		roots = append(roots, *q.LogbookID)
	}
	idx, err := e.IndexFor(ctx, roots...)
	if err != nil {
		return nil, err
	}
	scope, err := idx.Scope(q.LogbookID, q.IncludeDescendants)
	if err != nil {
		return nil, err
	}

	entries, err := e.repos.Entries.ListByLogbooks(ctx, scope, q.IncludeArchived)
	if err != nil {
		return nil, err
	}
	// Entries of logbooks created after the index was cached need their
	// schema and name.
	if scope == nil {
		if idx, err = e.IndexFor(ctx, entryLogbooks(entries)...); err != nil {
			return nil, err
		}
	}

	attachments := map[int64][]domain.Attachment{}
	if q.AttachmentPath != "" {
		attachments, err = e.attachmentsByEntry(ctx, entries)
		if err != nil {
			return nil, err
		}
	}

	followups := make(map[int64][]domain.Entry)
	for _, entry := range entries {
		if !entry.IsThreadRoot() {
			followups[*entry.FollowsID] = append(followups[*entry.FollowsID], entry)
		}
	}

	grouped := !q.HasTextFilter()
	out := make([]domain.ThreadSummary, 0)
	for _, entry := range entries {
		if grouped && !entry.IsThreadRoot() {
			continue
		}
		c := &candidate{
			entry:       entry,
			schema:      idx.Schema(entry.LogbookID),
			attachments: attachments[entry.ID],
		}
		if !matchesAll(c, predicates) {
			continue
		}
		out = append(out, summarize(idx, entry, followups[entry.ID]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Entry.ID > out[j].Entry.ID
	})
	return out, nil
}

func entryLogbooks(entries []domain.Entry) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, entry := range entries {
		if _, ok := seen[entry.LogbookID]; !ok {
			seen[entry.LogbookID] = struct{}{}
			ids = append(ids, entry.LogbookID)
		}
	}
	return ids
}

func summarize(idx *Index, entry domain.Entry, followups []domain.Entry) domain.ThreadSummary {
	latest := entry.Timestamp()
	for _, f := range followups {
		if ts := f.Timestamp(); ts.After(latest) {
			latest = ts
		}
	}
	logbook, _ := idx.Logbook(entry.LogbookID)
	return domain.ThreadSummary{
		Entry:      entry,
		Logbook:    domain.LogbookRef{ID: logbook.ID, Name: logbook.Name},
		NFollowups: len(followups),
		Timestamp:  latest,
	}
}

func (e *Engine) attachmentsByEntry(ctx context.Context, entries []domain.Entry) (map[int64][]domain.Attachment, error) {
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	list, err := e.repos.Attachments.ListByEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]domain.Attachment)
	for _, attachment := range list {
		out[*attachment.EntryID] = append(out[*attachment.EntryID], attachment)
	}
	return out, nil
}

func paginate(threads []domain.ThreadSummary, limit, offset int) []domain.ThreadSummary {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(threads) {
		return []domain.ThreadSummary{}
	}
	end := len(threads)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return threads[offset:end]
}

// Next returns the thread root in entry's logbook with the closest later
// activity, or nil.
func (e *Engine) Next(ctx context.Context, entry domain.Entry) (*domain.Entry, error) {
	return e.sibling(ctx, entry, func(ts, best, ref time.Time, hasBest bool) bool {
		return ts.After(ref) && (!hasBest || ts.Before(best))
	})
}

// Previous returns the thread root in entry's logbook with the closest
// earlier activity, or nil.
func (e *Engine) Previous(ctx context.Context, entry domain.Entry) (*domain.Entry, error) {
	return e.sibling(ctx, entry, func(ts, best, ref time.Time, hasBest bool) bool {
		return ts.Before(ref) && (!hasBest || ts.After(best))
	})
}

func (e *Engine) sibling(ctx context.Context, entry domain.Entry, better func(ts, best, ref time.Time, hasBest bool) bool) (*domain.Entry, error) {
	entries, err := e.repos.Entries.ListByLogbooks(ctx, []int64{entry.LogbookID}, true)
	if err != nil {
		return nil, err
	}

	ref := entry.Timestamp()
	var best *domain.Entry
	for i := range entries {
		c := entries[i]
		if c.ID == entry.ID || !c.IsThreadRoot() {
			continue
		}
		var bestTS time.Time
		if best != nil {
			bestTS = best.Timestamp()
		}
		if better(c.Timestamp(), bestTS, ref, best != nil) {
			best = &entries[i]
		}
	}
	return best, nil
}

// Histogram counts matching thread roots per creation day, newest day first.
func (e *Engine) Histogram(ctx context.Context, q domain.EntryQuery) ([]domain.HistogramBucket, error) {
	q.Content, q.Title, q.Author = "", "", ""
	threads, err := e.threads(ctx, q)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*domain.HistogramBucket{}
	for _, t := range threads {
		day := t.Entry.CreatedAt.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &domain.HistogramBucket{Date: day, FirstID: t.Entry.ID}
			buckets[day] = b
		}
		b.Count++
		if t.Entry.ID < b.FirstID {
			b.FirstID = t.Entry.ID
		}
	}

	out := make([]domain.HistogramBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}
