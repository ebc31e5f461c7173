package models

import "time"

// MediaKind distinguishes movies from series.
type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// ContentItem is a single listing surfaced to the user, optionally enriched with
// metadata-provider data. Display fields are always populated, enriched or not.
type ContentItem struct {
	SourceGUID string    `json:"sourceGuid"`
	ExternalID *int64    `json:"externalId,omitempty"`
	Title      string    `json:"title"`
	MediaKind  MediaKind `json:"mediaKind"`

	Indexer      string     `json:"indexer,omitempty"`
	SizeBytes    int64      `json:"sizeBytes"`
	Seeders      *int       `json:"seederCount,omitempty"`
	Leechers     *int       `json:"leecherCount,omitempty"`
	QualityLabel string     `json:"qualityLabel,omitempty"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	// ApproxYear is the year parsed from the raw release name, 0 when unknown.
	ApproxYear int `json:"approxYear,omitempty"`

	Overview       string   `json:"overview,omitempty"`
	PosterPath     string   `json:"posterPath,omitempty"`
	BackdropPath   string   `json:"backdropPath,omitempty"`
	VoteAverage    *float64 `json:"voteAverage,omitempty"`
	GenreIDs       []int    `json:"genreIds,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	ReleaseYear    int      `json:"releaseYear,omitempty"`
	RuntimeMinutes int      `json:"runtimeMinutes,omitempty"`
	SeasonCount    int      `json:"seasonCount,omitempty"`

	DisplayTitle    string  `json:"displayTitle"`
	DisplayOverview string  `json:"displayOverview"`
	DisplayYear     int     `json:"displayYear"`
	DisplayRating   float64 `json:"displayRating"`
	PosterURL       string  `json:"posterUrl"`
	BackdropURL     string  `json:"backdropUrl"`
}

// Enriched reports whether metadata-provider data was attached to the item.
func (c ContentItem) Enriched() bool {
	return c.ExternalID != nil
}

// Clone returns a deep copy so callers can modify the result freely.
func (c ContentItem) Clone() ContentItem {
	out := c
	if c.ExternalID != nil {
		id := *c.ExternalID
		out.ExternalID = &id
	}
	if c.Seeders != nil {
		v := *c.Seeders
		out.Seeders = &v
	}
	if c.Leechers != nil {
		v := *c.Leechers
		out.Leechers = &v
	}
	if c.PublishedAt != nil {
		v := *c.PublishedAt
		out.PublishedAt = &v
	}
	if c.VoteAverage != nil {
		v := *c.VoteAverage
		out.VoteAverage = &v
	}
	if c.GenreIDs != nil {
		out.GenreIDs = append([]int(nil), c.GenreIDs...)
	}
	if c.Genres != nil {
		out.Genres = append([]string(nil), c.Genres...)
	}
	return out
}

// ContentCategory is a named, ordered group of items.
type ContentCategory struct {
	ID    string        `json:"categoryId"`
	Title string        `json:"title"`
	Items []ContentItem `json:"items"`
}

// FeaturedContent is the unit of caching: one hero item plus the fixed categories.
// A document is never modified after construction; refreshes replace it wholesale.
type FeaturedContent struct {
	Hero        ContentItem       `json:"heroItem"`
	Categories  []ContentCategory `json:"categories"`
	Source      string            `json:"source"` // "live" | "fallback"
	GeneratedAt time.Time         `json:"generatedAt"`
}

// Category returns the category with the given ID.
func (f *FeaturedContent) Category(id string) (ContentCategory, bool) {
	if f == nil {
		return ContentCategory{}, false
	}
	for _, cat := range f.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return ContentCategory{}, false
}

// ItemCount returns the number of items across all categories.
func (f *FeaturedContent) ItemCount() int {
	if f == nil {
		return 0
	}
	total := 0
	for _, cat := range f.Categories {
		total += len(cat.Items)
	}
	return total
}
