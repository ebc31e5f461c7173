package featured

import (
	"time"

	"curator/models"
	"curator/services/metadata"
)

// SourceLive and SourceFallback tag where a document came from.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

type sampleTitle struct {
	guid     string
	title    string
	overview string
	year     int
	kind     models.MediaKind
	rating   float64
	quality  string
}

// Public-domain classics, so the sample content is safe to show anywhere.
var sampleCategories = []struct {
	id     string
	titles []sampleTitle
}{
	{CategoryTrendingMovies, []sampleTitle{
		{"sample:night-of-the-living-dead", "Night of the Living Dead", "A group of survivors barricade themselves in a farmhouse as the dead return to life and hunger for the living.", 1968, models.MediaKindMovie, 7.5, "1080p"},
		{"sample:detour", "Detour", "A down-on-his-luck musician hitchhiking to Hollywood gets caught up in a web of fate and murder.", 1945, models.MediaKindMovie, 6.9, "1080p"},
		{"sample:his-girl-friday", "His Girl Friday", "A newspaper editor uses every trick in the book to keep his ex-wife and star reporter from remarrying.", 1940, models.MediaKindMovie, 7.8, "720p"},
	}},
	{CategoryPopularTV, []sampleTitle{
		{"sample:the-beverly-hillbillies", "The Beverly Hillbillies", "A poor backwoods family strikes oil and moves to Beverly Hills, where their down-home ways clash with high society.", 1962, models.MediaKindSeries, 7.1, "720p"},
		{"sample:one-step-beyond", "One Step Beyond", "An anthology of allegedly true tales of the paranormal and unexplained.", 1959, models.MediaKindSeries, 7.6, "480p"},
		{"sample:the-cisco-kid", "The Cisco Kid", "A charming caballero and his sidekick ride through the Old West helping those in need.", 1950, models.MediaKindSeries, 6.8, "480p"},
	}},
	{CategoryNewReleases, []sampleTitle{
		{"sample:the-brain-that-wouldnt-die", "The Brain That Wouldn't Die", "A scientist keeps his fiancée's severed head alive while searching for a new body.", 1962, models.MediaKindMovie, 4.3, "1080p"},
		{"sample:charade", "Charade", "A widow is pursued by several men who want a fortune her late husband stole.", 1963, models.MediaKindMovie, 7.9, "1080p"},
	}},
	{Category4K, []sampleTitle{
		{"sample:metropolis", "Metropolis", "In a futuristic city sharply divided between workers and planners, a young man falls for a prophet of the underground.", 1927, models.MediaKindMovie, 8.3, "2160p"},
		{"sample:nosferatu", "Nosferatu", "A real estate agent travels to Transylvania and unwittingly brings a vampire back to his town.", 1922, models.MediaKindMovie, 7.8, "2160p"},
	}},
	{CategoryDocumentaries, []sampleTitle{
		{"sample:nanook-of-the-north", "Nanook of the North", "A year in the life of an Inuit family in the Canadian Arctic.", 1922, models.MediaKindMovie, 7.6, "720p"},
		{"sample:man-with-a-movie-camera", "Man with a Movie Camera", "A day in the life of Soviet cities, captured through inventive camera work.", 1929, models.MediaKindMovie, 8.4, "1080p"},
	}},
}

// StaticContent returns the built-in sample document. Every call builds a new
// document, so callers may modify the result.
func StaticContent(now time.Time) *models.FeaturedContent {
	doc := &models.FeaturedContent{
		Source:      SourceFallback,
		GeneratedAt: now.UTC(),
		Categories:  make([]models.ContentCategory, 0, len(sampleCategories)),
	}
	for _, cat := range sampleCategories {
		items := make([]models.ContentItem, 0, len(cat.titles))
		for _, s := range cat.titles {
			items = append(items, s.item())
		}
		doc.Categories = append(doc.Categories, models.ContentCategory{
			ID:    cat.id,
			Title: categoryTitle(cat.id),
			Items: items,
		})
	}
	doc.Hero = doc.Categories[0].Items[0].Clone()
	return doc
}

func (s sampleTitle) item() models.ContentItem {
	rating := s.rating
	return models.ContentItem{
		SourceGUID:      s.guid,
		Title:           s.title,
		MediaKind:       s.kind,
		QualityLabel:    s.quality,
		ApproxYear:      s.year,
		Overview:        s.overview,
		VoteAverage:     &rating,
		ReleaseYear:     s.year,
		DisplayTitle:    s.title,
		DisplayOverview: s.overview,
		DisplayYear:     s.year,
		DisplayRating:   s.rating,
		PosterURL:       metadata.PlaceholderPoster,
		BackdropURL:     metadata.PlaceholderBackdrop,
	}
}
