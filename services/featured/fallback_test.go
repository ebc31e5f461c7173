package featured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticContent(t *testing.T) {
	doc := StaticContent(testNow)

	assert.Equal(t, SourceFallback, doc.Source)
	assert.Equal(t, testNow, doc.GeneratedAt)
	assert.Equal(t, CategoryIDs, categoryIDs(doc))
	for _, cat := range doc.Categories {
		require.NotEmpty(t, cat.Items, cat.ID)
		assert.NotEmpty(t, cat.Title)
		for _, item := range cat.Items {
			assert.NotEmpty(t, item.DisplayTitle)
			assert.NotEmpty(t, item.DisplayOverview)
			assert.NotZero(t, item.DisplayYear)
			assert.NotEmpty(t, item.PosterURL)
			assert.NotEmpty(t, item.BackdropURL)
		}
	}
	assert.Equal(t, doc.Categories[0].Items[0].SourceGUID, doc.Hero.SourceGUID)
}

func TestStaticContentReturnsFreshCopies(t *testing.T) {
	first := StaticContent(testNow)
	first.Categories[0].Items[0].DisplayTitle = "changed"
	*first.Hero.VoteAverage = 0
	first.Categories = first.Categories[:1]

	second := StaticContent(testNow)
	assert.Len(t, second.Categories, 5)
	assert.Equal(t, "Night of the Living Dead", second.Categories[0].Items[0].DisplayTitle)
	assert.Equal(t, 7.5, *second.Hero.VoteAverage)
}
