package featured

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"curator/models"
	"curator/services/cache"
	"curator/services/scheduler"
)

const (
	cacheKeyPrefix    = "featured:"
	contentKey        = cacheKeyPrefix + "content"
	categoryKeyPrefix = cacheKeyPrefix + "category:"

	DefaultTTL = time.Hour
)

// Builder produces a fresh featured content document. *Aggregator is the
// production implementation.
type Builder interface {
	Aggregate(ctx context.Context) (*models.FeaturedContent, Outcome)
}

type contentEntry struct {
	Document   *models.FeaturedContent `json:"document"`
	Outcome    Outcome                 `json:"outcome,omitempty"`
	StoredAt   time.Time               `json:"storedAt"`
	TTLSeconds int64                   `json:"ttlSeconds"`
}

type categoryEntry struct {
	Category   models.ContentCategory `json:"category"`
	StoredAt   time.Time              `json:"storedAt"`
	TTLSeconds int64                  `json:"ttlSeconds"`
}

// cached is the in-process copy of the current entry. Hits hand out doc itself.
type cached struct {
	doc      *models.FeaturedContent
	storedAt time.Time
	ttl      time.Duration
	outcome  Outcome
}

func (c *cached) fresh(now time.Time) bool {
	return c != nil && now.Sub(c.storedAt) < c.ttl
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	TTL     time.Duration
	Now     func() time.Time
	Metrics *Metrics
}

// Orchestrator is a read-through TTL cache in front of a Builder. The store is
// best effort: when it fails, freshly built documents are still returned.
type Orchestrator struct {
	builder Builder
	store   cache.Store
	ttl     time.Duration
	now     func() time.Time
	metrics *Metrics

	current    atomic.Pointer[cached]
	generation atomic.Uint64
	flight     singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	builds    atomic.Uint64
	mu        sync.Mutex
	lastBuild time.Time
	lastOut   Outcome
	lastErr   string
}

func NewOrchestrator(builder Builder, store cache.Store, opts OrchestratorOptions) *Orchestrator {
	if store == nil {
		store = cache.NoopStore{}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		builder: builder,
		store:   store,
		ttl:     opts.TTL,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

// TTL returns the configured entry lifetime.
func (o *Orchestrator) TTL() time.Duration {
	return o.ttl
}

// Get returns the cached document while it is fresh, otherwise builds, stores
// and returns a new one. Concurrent misses share a single build.
func (o *Orchestrator) Get(ctx context.Context) *models.FeaturedContent {
	if doc, ok := o.lookup(ctx); ok {
		o.hits.Add(1)
		o.metrics.cacheLookup(true)
		return doc
	}
	o.misses.Add(1)
	o.metrics.cacheLookup(false)

	gen := o.generation.Load()
	v, _, _ := o.flight.Do(flightKey(gen), func() (any, error) {
		// Reads are not cancellable once a build starts.
		ctx := context.WithoutCancel(ctx)
		doc, outcome := o.build(ctx)
		if o.generation.Load() != gen {
			// Invalidated while building; serve the result but do not cache it.
			return doc, nil
		}
		o.install(ctx, doc, outcome)
		return doc, nil
	})
	return v.(*models.FeaturedContent)
}

// GetCategory returns one category of the current document. HeroCategoryID
// wraps the hero item as a one-item category. Unknown ids report false.
func (o *Orchestrator) GetCategory(ctx context.Context, id string) (models.ContentCategory, bool) {
	if id == HeroCategoryID {
		doc := o.Get(ctx)
		return models.ContentCategory{
			ID:    HeroCategoryID,
			Title: "Featured",
			Items: []models.ContentItem{doc.Hero},
		}, true
	}
	now := o.now()
	if cur := o.current.Load(); cur.fresh(now) {
		o.hits.Add(1)
		o.metrics.cacheLookup(true)
		return cur.doc.Category(id)
	}

	var entry categoryEntry
	if ok, err := cache.GetJSON(ctx, o.store, categoryKeyPrefix+id, &entry); err != nil {
		log.Warn().Err(err).Str("category", id).Msg("[featured] category cache read failed")
	} else if ok && o.entryFresh(entry.StoredAt, entry.TTLSeconds, now) {
		o.hits.Add(1)
		o.metrics.cacheLookup(true)
		return entry.Category, true
	}

	return o.Get(ctx).Category(id)
}

// Store replaces the cached document, resetting its age. Store errors are
// returned after the in-process copy has been updated.
func (o *Orchestrator) Store(ctx context.Context, doc *models.FeaturedContent, outcome Outcome) error {
	if doc == nil {
		return errors.New("nil featured content")
	}
	return o.install(ctx, doc, outcome)
}

// Refresh builds a new document unconditionally and stores it. A pass whose
// context ended, or that was overtaken by Invalidate, leaves the cache untouched.
func (o *Orchestrator) Refresh(ctx context.Context) (scheduler.Summary, error) {
	gen := o.generation.Load()
	doc, outcome := o.build(ctx)
	summary := scheduler.Summary{
		Outcome: string(outcome),
		Items:   doc.ItemCount(),
	}
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Str("outcome", string(outcome)).Msg("[featured] refresh cancelled; keeping cached content")
		return summary, fmt.Errorf("refresh cancelled: %w", err)
	}
	if o.generation.Load() != gen {
		log.Info().Msg("[featured] cache invalidated during refresh; discarding result")
		return summary, nil
	}
	err := o.Store(ctx, doc, outcome)
	if err != nil {
		return summary, fmt.Errorf("store featured content: %w", err)
	}
	return summary, nil
}

// Invalidate drops the cached document and every category entry. It is
// idempotent; the returned error is the backend's, if any.
func (o *Orchestrator) Invalidate(ctx context.Context) error {
	o.generation.Add(1)
	o.current.Store(nil)

	removed, err := o.store.DeletePrefix(ctx, cacheKeyPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("[featured] cache invalidation failed")
		return fmt.Errorf("invalidate featured cache: %w", err)
	}
	log.Info().Int("removed", removed).Msg("[featured] cache invalidated")
	return nil
}

// CacheStatus describes the current cache entry.
type CacheStatus struct {
	Cached      bool       `json:"cached"`
	Source      string     `json:"source,omitempty"`
	Outcome     Outcome    `json:"outcome,omitempty"`
	StoredAt    *time.Time `json:"storedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	TTLSeconds  int64      `json:"ttlSeconds"`
	Hits        uint64     `json:"hits"`
	Misses      uint64     `json:"misses"`
	Builds      uint64     `json:"builds"`
	LastBuildAt *time.Time `json:"lastBuildAt,omitempty"`
	LastOutcome Outcome    `json:"lastOutcome,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func (o *Orchestrator) Status() CacheStatus {
	status := CacheStatus{
		TTLSeconds: int64(o.ttl / time.Second),
		Hits:       o.hits.Load(),
		Misses:     o.misses.Load(),
		Builds:     o.builds.Load(),
	}
	if cur := o.current.Load(); cur.fresh(o.now()) {
		storedAt := cur.storedAt
		expiresAt := cur.storedAt.Add(cur.ttl)
		status.Cached = true
		status.Source = cur.doc.Source
		status.Outcome = cur.outcome
		status.StoredAt = &storedAt
		status.ExpiresAt = &expiresAt
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.lastBuild.IsZero() {
		t := o.lastBuild
		status.LastBuildAt = &t
	}
	status.LastOutcome = o.lastOut
	status.LastError = o.lastErr
	return status
}

// lookup checks the in-process copy, then the store.
func (o *Orchestrator) lookup(ctx context.Context) (*models.FeaturedContent, bool) {
	now := o.now()
	if cur := o.current.Load(); cur.fresh(now) {
		return cur.doc, true
	}

	gen := o.generation.Load()
	var entry contentEntry
	ok, err := cache.GetJSON(ctx, o.store, contentKey, &entry)
	if err != nil {
		log.Warn().Err(err).Msg("[featured] cache read failed; rebuilding")
		return nil, false
	}
	if !ok || entry.Document == nil || !o.entryFresh(entry.StoredAt, entry.TTLSeconds, now) {
		return nil, false
	}

	next := &cached{doc: entry.Document, storedAt: entry.StoredAt, ttl: o.entryTTL(entry.TTLSeconds), outcome: entry.Outcome}
	if o.generation.Load() == gen {
		o.current.Store(next)
	}
	return entry.Document, true
}

func (o *Orchestrator) build(ctx context.Context) (*models.FeaturedContent, Outcome) {
	doc, outcome := o.builder.Aggregate(ctx)
	if doc == nil {
		doc, outcome = StaticContent(o.now()), OutcomeFallbackError
	}
	o.builds.Add(1)
	o.mu.Lock()
	o.lastBuild = o.now()
	o.lastOut = outcome
	o.mu.Unlock()
	return doc, outcome
}

func (o *Orchestrator) install(ctx context.Context, doc *models.FeaturedContent, outcome Outcome) error {
	storedAt := o.now()
	o.current.Store(&cached{doc: doc, storedAt: storedAt, ttl: o.ttl, outcome: outcome})

	ttlSeconds := int64(o.ttl / time.Second)
	var errs []error
	if err := cache.SetJSON(ctx, o.store, contentKey, contentEntry{Document: doc, Outcome: outcome, StoredAt: storedAt, TTLSeconds: ttlSeconds}, o.ttl); err != nil {
		errs = append(errs, err)
	}
	for _, cat := range doc.Categories {
		entry := categoryEntry{Category: cat, StoredAt: storedAt, TTLSeconds: ttlSeconds}
		if err := cache.SetJSON(ctx, o.store, categoryKeyPrefix+cat.ID, entry, o.ttl); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	o.mu.Lock()
	o.lastErr = ""
	if err != nil {
		o.lastErr = err.Error()
	}
	o.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("[featured] cache write failed; serving uncached content")
	}
	return err
}

func (o *Orchestrator) entryTTL(seconds int64) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return o.ttl
}

func (o *Orchestrator) entryFresh(storedAt time.Time, ttlSeconds int64, now time.Time) bool {
	return now.Sub(storedAt) < o.entryTTL(ttlSeconds)
}

func flightKey(gen uint64) string {
	return fmt.Sprintf("featured-%d", gen)
}
