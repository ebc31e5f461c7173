package featured

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"curator/models"
	"curator/services/metadata"
	"curator/services/prowlarr"
)

// Outcome tags how a document was produced.
type Outcome string

const (
	OutcomeLive                 Outcome = "live"
	OutcomeFallbackUnconfigured Outcome = "fallback-unconfigured"
	OutcomeFallbackEmpty        Outcome = "fallback-empty"
	OutcomeFallbackError        Outcome = "fallback-error"
)

// Fallback reports whether the static document was substituted.
func (o Outcome) Fallback() bool {
	return o != OutcomeLive
}

// ListingSource searches the listing provider.
type ListingSource interface {
	Configured() bool
	SearchListings(ctx context.Context, q prowlarr.Query) ([]models.Listing, error)
}

// ItemEnricher attaches metadata to items, one Result per input in order.
type ItemEnricher interface {
	EnrichAll(ctx context.Context, items []models.ContentItem) []metadata.Result
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	// Limit caps items per category.
	Limit int
	// QueryTimeout bounds each category's listing queries.
	QueryTimeout time.Duration
	Categories   func(now time.Time) []CategoryDef
	Now          func() time.Time
	Metrics      *Metrics
}

// Aggregator builds featured content documents from the listing provider.
type Aggregator struct {
	source     ListingSource
	enricher   ItemEnricher
	limit      int
	timeout    time.Duration
	categories func(time.Time) []CategoryDef
	now        func() time.Time
	metrics    *Metrics
}

func NewAggregator(source ListingSource, enricher ItemEnricher, opts AggregatorOptions) *Aggregator {
	if opts.Limit <= 0 {
		opts.Limit = DefaultCategoryLimit
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.Categories == nil {
		opts.Categories = DefaultCategories
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		source:     source,
		enricher:   enricher,
		limit:      opts.Limit,
		timeout:    opts.QueryTimeout,
		categories: opts.Categories,
		now:        opts.Now,
		metrics:    opts.Metrics,
	}
}

// Aggregate never fails. When the listing provider is unconfigured, every
// category comes back empty, or something panics, the static document is
// returned and the Outcome says why.
func (a *Aggregator) Aggregate(ctx context.Context) (doc *models.FeaturedContent, outcome Outcome) {
	start := time.Now()
	now := a.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("[featured] aggregation panicked; serving fallback content")
			doc, outcome = StaticContent(now), OutcomeFallbackError
		}
		a.metrics.aggregated(outcome, time.Since(start).Seconds())
	}()

	if a.source == nil || !a.source.Configured() {
		log.Warn().Msg("[featured] listing provider not configured; serving fallback content")
		return StaticContent(now), OutcomeFallbackUnconfigured
	}

	defs := a.categories(now)
	listings := make([][]models.Listing, len(defs))
	p := pool.New().WithMaxGoroutines(max(len(defs), 1))
	for i := range defs {
		p.Go(func() {
			listings[i] = a.fetchCategory(ctx, defs[i])
		})
	}
	p.Wait()

	// One enrichment pass over every category keeps the provider concurrency cap global.
	var all []models.ContentItem
	bounds := make([]int, len(defs)+1)
	for i, rows := range listings {
		for _, l := range rows {
			all = append(all, normalizeListing(l))
		}
		bounds[i+1] = len(all)
	}
	if len(all) == 0 {
		log.Warn().Int("categories", len(defs)).Msg("[featured] every category came back empty; serving fallback content")
		return StaticContent(now), OutcomeFallbackEmpty
	}

	enriched := a.enrich(ctx, all)

	doc = &models.FeaturedContent{
		Source:      SourceLive,
		GeneratedAt: now.UTC(),
		Categories:  make([]models.ContentCategory, 0, len(defs)),
	}
	for i, def := range defs {
		items := enriched[bounds[i]:bounds[i+1]]
		doc.Categories = append(doc.Categories, models.ContentCategory{
			ID:    def.ID,
			Title: def.Title,
			Items: append([]models.ContentItem{}, items...),
		})
		a.metrics.categorySize(def.ID, len(items))
	}
	doc.Hero = selectHero(doc, now)

	log.Info().
		Int("items", doc.ItemCount()).
		Dur("took", time.Since(start)).
		Msg("[featured] aggregation complete")
	return doc, OutcomeLive
}

// fetchCategory runs def's queries and returns filtered, de-duplicated listings
// in provider order. Failures yield fewer (or no) listings, never an error.
func (a *Aggregator) fetchCategory(ctx context.Context, def CategoryDef) []models.Listing {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	seen := make(map[string]struct{})
	out := make([]models.Listing, 0, a.limit)
	for _, query := range def.Queries {
		if len(out) >= a.limit {
			break
		}
		rows, err := a.source.SearchListings(ctx, prowlarr.Query{
			Terms:      query,
			Categories: def.Categories,
			MinSeeders: def.MinSeeders,
			Limit:      a.limit * 2,
		})
		if err != nil {
			log.Warn().Err(err).Str("category", def.ID).Str("query", query).Msg("[featured] category query failed")
			continue
		}
		for _, l := range rows {
			if l.GUID == "" || l.Title == "" {
				continue
			}
			if _, dup := seen[l.GUID]; dup {
				continue
			}
			if !def.Filter.Allows(l.Title) {
				continue
			}
			seen[l.GUID] = struct{}{}
			out = append(out, l)
			if len(out) >= a.limit {
				break
			}
		}
	}
	log.Debug().Str("category", def.ID).Int("listings", len(out)).Msg("[featured] category fetched")
	return out
}

func (a *Aggregator) enrich(ctx context.Context, items []models.ContentItem) []models.ContentItem {
	now := a.now()
	out := make([]models.ContentItem, len(items))
	if a.enricher == nil {
		for i, item := range items {
			out[i] = metadata.Placeholder(item, now)
		}
		return out
	}

	results := a.enricher.EnrichAll(ctx, items)
	for i := range items {
		if i >= len(results) {
			out[i] = metadata.Placeholder(items[i], now)
			continue
		}
		out[i] = results[i].Item
		a.metrics.enriched(results[i].Status)
	}
	return out
}

// normalizeListing maps a provider listing onto a ContentItem. Media kind comes
// from the torznab categories; a listing without TV categories is a movie.
func normalizeListing(l models.Listing) models.ContentItem {
	info := metadata.ParseRelease(l.Title)
	item := models.ContentItem{
		SourceGUID:   l.GUID,
		Title:        l.Title,
		MediaKind:    models.MediaKindMovie,
		Indexer:      l.Indexer,
		SizeBytes:    l.SizeBytes,
		QualityLabel: info.Resolution,
		ApproxYear:   info.Year,
	}
	if l.IsSeries() {
		item.MediaKind = models.MediaKindSeries
	}
	if l.Seeders != nil {
		v := *l.Seeders
		item.Seeders = &v
	}
	if l.Leechers != nil {
		v := *l.Leechers
		item.Leechers = &v
	}
	if !l.PublishDate.IsZero() {
		ts := l.PublishDate
		item.PublishedAt = &ts
	}
	return item
}

// selectHero picks the first trending movie, or an "unavailable" placeholder.
func selectHero(doc *models.FeaturedContent, now time.Time) models.ContentItem {
	if cat, ok := doc.Category(CategoryTrendingMovies); ok && len(cat.Items) > 0 {
		return cat.Items[0].Clone()
	}
	return unavailableHero(now)
}

func unavailableHero(now time.Time) models.ContentItem {
	item := metadata.Placeholder(models.ContentItem{
		SourceGUID: "unavailable",
		Title:      "Featured content unavailable",
		MediaKind:  models.MediaKindMovie,
	}, now)
	item.DisplayOverview = "Nothing is trending right now. Check back after the next refresh."
	return item
}
