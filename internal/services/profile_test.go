package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/pkg/models"
)

func testRecommendConfig() *config.RecommendConfig {
	return &config.RecommendConfig{
		StoryWeight:      60.0,
		TopicWeight:      28.0,
		AuthorWeight:     12.0,
		LanguageBonus:    6.0,
		GenericDiscount:  0.2,
		LikeBoost:        8.0,
		AuthorCap:        2,
		DefaultLimit:     20,
		MaxLimit:         50,
		MinRating:        7,
		SeedMode:         "liked",
		TopSubjects:      6,
		TopAuthors:       4,
		SearchLimit:      20,
		CandidateCeiling: 200,
		RequestTimeout:   20 * time.Second,
	}
}

func ratingPtr(r int) *int { return &r }

func readEntry(id int64, title, authors, subjects string, rating *int) models.LibraryEntry {
	return models.LibraryEntry{
		ID:       id,
		Title:    title,
		Authors:  authors,
		Subjects: subjects,
		Status:   models.StatusRead,
		Rating:   rating,
	}
}

func TestProfileBuilder_Build(t *testing.T) {
	builder := NewProfileBuilder(testRecommendConfig())

	t.Run("empty library yields empty profile", func(t *testing.T) {
		profile := builder.Build(nil, 7, models.SeedLiked, nil)
		assert.True(t, profile.IsEmpty())
		assert.Empty(t, profile.TopSubjects)
		assert.Empty(t, profile.TopAuthors)
	})

	t.Run("only read entries above threshold seed the profile", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "The Remains of the Day", "Kazuo Ishiguro", "Historical Fiction", ratingPtr(9)),
			readEntry(2, "Middling Book", "Someone Else", "Thrillers", ratingPtr(5)),
			{ID: 3, Title: "Unfinished", Authors: "Kazuo Ishiguro", Status: models.StatusReading, Rating: ratingPtr(10)},
		}

		profile := builder.Build(entries, 7, models.SeedLiked, nil)
		assert.Equal(t, 1, profile.LikedCount)
		require.NotEmpty(t, profile.TopAuthors)
		assert.Equal(t, "kazuo ishiguro", profile.TopAuthors[0].Author)
		for _, sw := range profile.TopSubjects {
			assert.NotEqual(t, "thrillers", sw.Subject)
		}
	})

	t.Run("all_read mode includes unrated reads at floor weight", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "Rated", "A Author", "Fantasy", ratingPtr(10)),
			readEntry(2, "Unrated", "B Author", "Fantasy", nil),
		}

		profile := builder.Build(entries, 7, models.SeedAllRead, nil)
		assert.Equal(t, 2, profile.LikedCount)

		require.NotEmpty(t, profile.TopSubjects)
		assert.Equal(t, "fantasy", profile.TopSubjects[0].Subject)
		// 10 from the rated entry plus the floor of 7 from the unrated one.
		assert.InDelta(t, 17.0, profile.TopSubjects[0].Weight, 1e-9)
	})

	t.Run("seed_ids restricts the seed set", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "Kept", "A Author", "Fantasy", ratingPtr(9)),
			readEntry(2, "Excluded", "B Author", "Horror", ratingPtr(9)),
		}

		profile := builder.Build(entries, 7, models.SeedLiked, []int64{1})
		assert.Equal(t, 1, profile.LikedCount)
		for _, sw := range profile.TopSubjects {
			assert.NotEqual(t, "horror", sw.Subject)
		}
	})

	t.Run("generic subjects are discounted", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "One", "A Author", `["Fiction", "Sea Stories"]`, ratingPtr(8)),
		}

		profile := builder.Build(entries, 7, models.SeedLiked, nil)

		weights := make(map[string]float64)
		generics := make(map[string]bool)
		for _, sw := range profile.TopSubjects {
			weights[sw.Subject] = sw.Weight
			generics[sw.Subject] = sw.Generic
		}
		require.Contains(t, weights, "fiction")
		require.Contains(t, weights, "sea stories")
		assert.True(t, generics["fiction"])
		assert.False(t, generics["sea stories"])
		assert.InDelta(t, 8.0*0.2, weights["fiction"], 1e-9)
		assert.InDelta(t, 8.0, weights["sea stories"], 1e-9)
	})

	t.Run("author weight is half subject weight across all listed authors", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "Good Omens", "Terry Pratchett, Neil Gaiman", "Fantasy", ratingPtr(10)),
		}

		profile := builder.Build(entries, 7, models.SeedLiked, nil)
		require.Len(t, profile.TopAuthors, 2)
		for _, aw := range profile.TopAuthors {
			assert.InDelta(t, 5.0, aw.Weight, 1e-9)
		}
	})

	t.Run("higher ratings never lower a subject weight", func(t *testing.T) {
		forRating := func(r int) float64 {
			entries := []models.LibraryEntry{
				readEntry(1, "One", "A Author", "Space Opera", ratingPtr(r)),
			}
			profile := builder.Build(entries, 7, models.SeedLiked, nil)
			require.NotEmpty(t, profile.TopSubjects)
			return profile.TopSubjects[0].Weight
		}

		prev := forRating(7)
		for r := 8; r <= 10; r++ {
			cur := forRating(r)
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
	})

	t.Run("top lists are deterministic under ties", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "One", "A Author", `["Zebras", "Aardvarks"]`, ratingPtr(8)),
		}

		first := builder.Build(entries, 7, models.SeedLiked, nil)
		for i := 0; i < 20; i++ {
			again := builder.Build(entries, 7, models.SeedLiked, nil)
			assert.Equal(t, first.TopSubjects, again.TopSubjects)
		}
		// Equal weights fall back to alphabetical order.
		require.Len(t, first.TopSubjects, 2)
		assert.Equal(t, "aardvarks", first.TopSubjects[0].Subject)
	})
}

func TestProfileBuilder_StoryProfile(t *testing.T) {
	builder := NewProfileBuilder(testRecommendConfig())

	t.Run("terms repeat once per entry and motifs weigh extra", func(t *testing.T) {
		entries := []models.LibraryEntry{
			{
				ID:          1,
				Title:       "The Apprentice",
				Description: "An orphan finds a mentor. The mentor teaches the orphan everything.",
				Authors:     "A Author",
				Status:      models.StatusRead,
				Rating:      ratingPtr(10),
			},
		}

		profile := builder.Build(entries, 7, models.SeedLiked, nil)
		story := profile.Story

		// weight/10 = 1.0 per term regardless of repetition within the entry
		assert.InDelta(t, 1.0, story.Terms["orphan"], 1e-9)
		assert.InDelta(t, 1.0, story.Terms["mentor"], 1e-9)

		// "mentor"/"apprentice" trigger the mentorship motif at 1.5x
		assert.InDelta(t, 1.5, story.Motifs["mentorship"], 1e-9)
		assert.GreaterOrEqual(t, story.Norm, 1.0)
	})

	t.Run("short tokens and stopwords are excluded", func(t *testing.T) {
		entries := []models.LibraryEntry{
			{
				ID:          1,
				Title:       "It",
				Description: "the and of sea",
				Authors:     "A Author",
				Status:      models.StatusRead,
				Rating:      ratingPtr(9),
			},
		}

		profile := builder.Build(entries, 7, models.SeedLiked, nil)
		assert.NotContains(t, profile.Story.Terms, "the")
		assert.NotContains(t, profile.Story.Terms, "sea") // below min length
	})

	t.Run("norm floors at one", func(t *testing.T) {
		entries := []models.LibraryEntry{
			readEntry(1, "It", "A Author", "", ratingPtr(7)),
		}
		profile := builder.Build(entries, 7, models.SeedLiked, nil)
		assert.GreaterOrEqual(t, profile.Story.Norm, 1.0)
	})
}
