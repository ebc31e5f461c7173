package featured

import (
	"strconv"
	"time"

	"curator/models"
	"curator/utils/filter"
)

// Category IDs, in display order.
const (
	CategoryTrendingMovies = "trending-movies"
	CategoryPopularTV      = "popular-tv"
	CategoryNewReleases    = "new-releases"
	Category4K             = "4k-content"
	CategoryDocumentaries  = "documentaries"

	// HeroCategoryID addresses the hero item as a one-item category.
	HeroCategoryID = "hero"

	DefaultCategoryLimit = 20
)

// CategoryIDs lists every category in the fixed document order.
var CategoryIDs = []string{
	CategoryTrendingMovies,
	CategoryPopularTV,
	CategoryNewReleases,
	Category4K,
	CategoryDocumentaries,
}

// Releases that are never worth featuring regardless of category.
var excludedReleaseTerms = []string{`/\b(cam|camrip|hdcam|ts|hdts|telesync|tc|telecine|screener|scr)\b/`}

// CategoryDef is the query strategy for one category. Queries run in order and
// their results are merged, first seen wins.
type CategoryDef struct {
	ID         string
	Title      string
	Queries    []string
	Categories []int
	MinSeeders int
	Filter     filter.TitleFilter
}

// DefaultCategories returns the five category definitions for the given time.
// Trending and new-release queries are anchored on the current calendar year.
func DefaultCategories(now time.Time) []CategoryDef {
	year := now.Year()
	thisYear := strconv.Itoa(year)
	lastYear := strconv.Itoa(year - 1)

	return []CategoryDef{
		{
			ID:         CategoryTrendingMovies,
			Title:      "Trending Movies",
			Queries:    []string{thisYear + " 2160p", thisYear + " 1080p", lastYear + " 1080p"},
			Categories: []int{models.TorznabCategoryMovies, models.TorznabCategoryMoviesHD, models.TorznabCategoryMovies4K},
			MinSeeders: 25,
			Filter:     filter.NewTitleFilter(nil, excludedReleaseTerms),
		},
		{
			ID:         CategoryPopularTV,
			Title:      "Popular TV Series",
			Queries:    []string{"1080p", "2160p"},
			Categories: []int{models.TorznabCategoryTV, models.TorznabCategoryTVHD, models.TorznabCategoryTV4K},
			MinSeeders: 15,
			Filter:     filter.NewTitleFilter([]string{`/\bs\d{1,2}(e\d{1,3})?\b/`, "complete", "season"}, excludedReleaseTerms),
		},
		{
			ID:         CategoryNewReleases,
			Title:      "New Releases",
			Queries:    []string{thisYear},
			Categories: []int{models.TorznabCategoryMovies, models.TorznabCategoryTV},
			MinSeeders: 5,
			Filter:     filter.NewTitleFilter(nil, excludedReleaseTerms),
		},
		{
			ID:         Category4K,
			Title:      "4K Content",
			Queries:    []string{"2160p", "4k uhd"},
			Categories: []int{models.TorznabCategoryMovies4K, models.TorznabCategoryTV4K},
			MinSeeders: 10,
			Filter:     filter.NewTitleFilter([]string{`/\b(2160p|4k|uhd)\b/`}, excludedReleaseTerms),
		},
		{
			ID:         CategoryDocumentaries,
			Title:      "Documentaries",
			Queries:    []string{"documentary", "docu"},
			Categories: []int{models.TorznabCategoryMovies, models.TorznabCategoryTVDocs},
			MinSeeders: 5,
			Filter:     filter.NewTitleFilter([]string{"documentary", `/\bdocu(mentary|series)?\b/`, "national geographic", "bbc earth"}, excludedReleaseTerms),
		},
	}
}

func categoryTitle(id string) string {
	for _, def := range DefaultCategories(time.Time{}) {
		if def.ID == id {
			return def.Title
		}
	}
	return id
}
