package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"curator/models"
	"curator/services/cache"
	"curator/utils/similarity"
)

// Provider is the metadata search capability the enricher needs.
type Provider interface {
	Configured() bool
	SearchByTitle(ctx context.Context, query string, kind models.MediaKind) ([]SearchResult, error)
	FetchDetails(ctx context.Context, id int64, kind models.MediaKind) (*Details, error)
}

// Status tags why an enrichment produced the item it did.
type Status string

const (
	StatusEnriched      Status = "enriched"
	StatusNoMatch       Status = "no-match"
	StatusDisabled      Status = "provider-disabled"
	StatusProviderError Status = "provider-error"
)

// Result is the outcome of enriching one item. Item is always usable.
type Result struct {
	Item   models.ContentItem
	Status Status
	Err    error
}

const (
	defaultEnrichConcurrency = 6
	defaultMemoTTL           = 24 * time.Hour
	memoKeyPrefix            = "enrich:"
)

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	// Concurrency caps parallel lookups in EnrichAll.
	Concurrency int
	// Store memoises successful lookups; nil disables memoisation.
	Store   cache.Store
	MemoTTL time.Duration
	Now     func() time.Time
}

// Enricher attaches TMDb metadata to listing items by fuzzy title matching.
type Enricher struct {
	provider    Provider
	store       cache.Store
	memoTTL     time.Duration
	concurrency int
	now         func() time.Time

	disabledOnce sync.Once
}

func NewEnricher(provider Provider, opts EnricherOptions) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultEnrichConcurrency
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = defaultMemoTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Enricher{
		provider:    provider,
		store:       opts.Store,
		memoTTL:     opts.MemoTTL,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
}

// enrichment is the merged provider data applied onto an item.
type enrichment struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Overview       string   `json:"overview,omitempty"`
	PosterPath     string   `json:"posterPath,omitempty"`
	BackdropPath   string   `json:"backdropPath,omitempty"`
	VoteAverage    float64  `json:"voteAverage,omitempty"`
	GenreIDs       []int    `json:"genreIds,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	Year           int      `json:"year,omitempty"`
	RuntimeMinutes int      `json:"runtimeMinutes,omitempty"`
	SeasonCount    int      `json:"seasonCount,omitempty"`
}

// Enrich never fails: provider errors, empty results and missing credentials
// all come back as an unenriched item with the matching Status.
func (e *Enricher) Enrich(ctx context.Context, item models.ContentItem) (res Result) {
	fallback := Placeholder(item, e.now())

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("title", item.Title).Msg("[metadata] enrichment panicked")
			res = Result{Item: fallback, Status: StatusProviderError, Err: fmt.Errorf("enrichment panic: %v", r)}
		}
	}()

	if e.provider == nil || !e.provider.Configured() {
		e.disabledOnce.Do(func() {
			log.Warn().Msg("[metadata] tmdb api key not configured; items will use placeholder metadata")
		})
		return Result{Item: fallback, Status: StatusDisabled}
	}

	kind := item.MediaKind
	if kind == "" {
		kind = models.MediaKindMovie
	}
	query := CleanTitle(item.Title)
	if query == "" {
		return Result{Item: fallback, Status: StatusNoMatch}
	}

	key := memoKey(kind, item.ApproxYear, query)
	if e.store != nil {
		var memo enrichment
		if ok, err := cache.GetJSON(ctx, e.store, key, &memo); err == nil && ok {
			return Result{Item: e.apply(item, memo), Status: StatusEnriched}
		}
	}

	results, err := e.provider.SearchByTitle(ctx, query, kind)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("[metadata] tmdb search failed")
		return Result{Item: fallback, Status: StatusProviderError, Err: err}
	}
	if len(results) == 0 {
		return Result{Item: fallback, Status: StatusNoMatch}
	}

	candidates := narrowByYear(results, item.ApproxYear)
	best, ok := similarity.FindBestMatch(candidates, item.Title)
	if !ok {
		return Result{Item: fallback, Status: StatusNoMatch}
	}

	details, err := e.provider.FetchDetails(ctx, best.ID, kind)
	if err != nil {
		// Search data is still good enough to enrich with.
		log.Debug().Err(err).Int64("tmdbId", best.ID).Msg("[metadata] tmdb details failed; using search result")
		details = nil
	}

	merged := mergeEnrichment(item, best, details)
	if e.store != nil {
		if err := cache.SetJSON(ctx, e.store, key, merged, e.memoTTL); err != nil {
			log.Debug().Err(err).Msg("[metadata] failed to memoise enrichment")
		}
	}
	return Result{Item: e.apply(item, merged), Status: StatusEnriched}
}

// EnrichAll enriches items concurrently, preserving input order.
func (e *Enricher) EnrichAll(ctx context.Context, items []models.ContentItem) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}
	p := pool.New().WithMaxGoroutines(e.concurrency)
	for i := range items {
		p.Go(func() {
			results[i] = e.Enrich(ctx, items[i])
		})
	}
	p.Wait()
	return results
}

// PurgeMemo drops every memoised lookup so the next enrichment asks the
// provider again.
func (e *Enricher) PurgeMemo(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	n, err := e.store.DeletePrefix(ctx, memoKeyPrefix)
	if err != nil {
		return n, fmt.Errorf("purge enrichment memo: %w", err)
	}
	return n, nil
}

// narrowByYear keeps results released in year, or all results when none match.
func narrowByYear(results []SearchResult, year int) []SearchResult {
	if year <= 0 {
		return results
	}
	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Year() == year {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return results
	}
	return filtered
}

// mergeEnrichment applies detail > search > raw precedence field by field.
func mergeEnrichment(item models.ContentItem, search SearchResult, details *Details) enrichment {
	var d Details
	if details != nil {
		d = *details
	}

	out := enrichment{ID: search.ID}
	if d.ID > 0 {
		out.ID = d.ID
	}
	out.Title = firstNonEmpty(d.Title, d.Name, search.Title, search.Name, item.Title)
	out.Overview = firstNonEmpty(d.Overview, search.Overview, item.Overview)
	out.PosterPath = firstNonEmpty(d.PosterPath, search.PosterPath, item.PosterPath)
	out.BackdropPath = firstNonEmpty(d.BackdropPath, search.BackdropPath, item.BackdropPath)

	switch {
	case d.VoteAverage > 0:
		out.VoteAverage = d.VoteAverage
	case search.VoteAverage > 0:
		out.VoteAverage = search.VoteAverage
	case item.VoteAverage != nil:
		out.VoteAverage = *item.VoteAverage
	}

	if len(d.Genres) > 0 {
		for _, g := range d.Genres {
			out.GenreIDs = append(out.GenreIDs, g.ID)
			if g.Name != "" {
				out.Genres = append(out.Genres, g.Name)
			}
		}
	} else if len(search.GenreIDs) > 0 {
		out.GenreIDs = append([]int(nil), search.GenreIDs...)
	} else {
		out.GenreIDs = append([]int(nil), item.GenreIDs...)
		out.Genres = append([]string(nil), item.Genres...)
	}

	out.Year = parseTMDBYear(d.ReleaseDate, d.FirstAirDate)
	if out.Year == 0 {
		out.Year = search.Year()
	}

	out.RuntimeMinutes = d.Runtime
	if out.RuntimeMinutes == 0 && len(d.EpisodeRunTime) > 0 {
		out.RuntimeMinutes = d.EpisodeRunTime[0]
	}
	if out.RuntimeMinutes == 0 {
		out.RuntimeMinutes = item.RuntimeMinutes
	}
	out.SeasonCount = d.NumberOfSeasons
	if out.SeasonCount == 0 {
		out.SeasonCount = item.SeasonCount
	}
	return out
}

func (e *Enricher) apply(item models.ContentItem, m enrichment) models.ContentItem {
	out := item.Clone()
	id := m.ID
	out.ExternalID = &id
	out.Overview = m.Overview
	out.PosterPath = m.PosterPath
	out.BackdropPath = m.BackdropPath
	if m.VoteAverage > 0 {
		v := m.VoteAverage
		out.VoteAverage = &v
	}
	out.GenreIDs = m.GenreIDs
	out.Genres = m.Genres
	out.RuntimeMinutes = m.RuntimeMinutes
	out.SeasonCount = m.SeasonCount

	out.ReleaseYear = m.Year
	if out.ReleaseYear == 0 {
		out.ReleaseYear = item.ApproxYear
	}
	if out.ReleaseYear == 0 {
		out.ReleaseYear = e.now().Year()
	}

	out.DisplayTitle = firstNonEmpty(m.Title, item.Title)
	out.DisplayOverview = firstNonEmpty(m.Overview, item.Title)
	out.DisplayYear = out.ReleaseYear
	out.DisplayRating = m.VoteAverage
	out.PosterURL = imageOrPlaceholder(m.PosterPath, tmdbPosterSize, PlaceholderPoster)
	out.BackdropURL = imageOrPlaceholder(m.BackdropPath, tmdbBackdropSize, PlaceholderBackdrop)
	return out
}

// Placeholder returns item with display fields derived from the raw listing only.
func Placeholder(item models.ContentItem, now time.Time) models.ContentItem {
	out := item.Clone()
	out.DisplayTitle = item.Title
	out.DisplayOverview = item.Title
	out.DisplayYear = item.ApproxYear
	if out.DisplayYear == 0 {
		out.DisplayYear = now.Year()
	}
	out.DisplayRating = 0
	out.PosterURL = PlaceholderPoster
	out.BackdropURL = PlaceholderBackdrop
	return out
}

func imageOrPlaceholder(path, size, placeholder string) string {
	if u := buildImageURL(path, size); u != "" {
		return u
	}
	return placeholder
}

func memoKey(kind models.MediaKind, year int, query string) string {
	return memoKeyPrefix + string(kind) + ":" + strconv.Itoa(year) + ":" + query
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
