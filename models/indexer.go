package models

import "time"

// Torznab category ranges used by Prowlarr. Anything in the TV range is a series,
// everything else is treated as a movie.
const (
	TorznabCategoryMovies   = 2000
	TorznabCategoryMoviesHD = 2040
	TorznabCategoryMovies4K = 2045
	TorznabCategoryTV       = 5000
	TorznabCategoryTVHD     = 5040
	TorznabCategoryTV4K     = 5045
	TorznabCategoryTVDocs   = 5080
)

// Listing is a normalized search result from the listing provider (Prowlarr).
type Listing struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Indexer     string    `json:"indexer,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	Seeders     *int      `json:"seeders,omitempty"`
	Leechers    *int      `json:"leechers,omitempty"`
	PublishDate time.Time `json:"publishDate,omitempty"`
	Categories  []int     `json:"categories,omitempty"`
	InfoURL     string    `json:"infoUrl,omitempty"`
}

// IsSeries reports whether any of the listing's categories fall in the torznab TV range.
func (l Listing) IsSeries() bool {
	for _, cat := range l.Categories {
		if cat >= TorznabCategoryTV && cat < 6000 {
			return true
		}
		// Prowlarr custom categories are offset by 100000 from the base range.
		if cat >= 100000+TorznabCategoryTV && cat < 100000+6000 {
			return true
		}
	}
	return false
}
