package services

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillshelf/quillshelf/pkg/models"
)

// stubResolver resolves identities from fixed tables. Lookup counters let
// tests assert which checks actually reached the resolver.
type stubResolver struct {
	byIdentifier  map[string]string // identifier -> work key
	byTitleAuthor map[string]string // title -> work key
	canonical     map[string]string // work key -> canonical key
	lookups       int
}

func (s *stubResolver) WorkKeyByIdentifier(_ context.Context, identifier string) string {
	s.lookups++
	return s.byIdentifier[identifier]
}

func (s *stubResolver) WorkKeyByTitleAuthor(_ context.Context, title, _ string) string {
	s.lookups++
	return s.byTitleAuthor[title]
}

func (s *stubResolver) CanonicalKey(_ context.Context, workKey, _, _ string) string {
	s.lookups++
	if c, ok := s.canonical[workKey]; ok {
		return c
	}
	if workKey == "" {
		return ""
	}
	return "ol:" + workKey
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func scoredCandidate(title, authors, identifier, workKey string, score float64) ScoredCandidate {
	var authorList []string
	if authors != "" {
		authorList = []string{authors}
	}
	return ScoredCandidate{
		Candidate: models.Candidate{
			Title:      title,
			Authors:    authorList,
			Identifier: identifier,
			WorkKey:    workKey,
		},
		Score: score,
	}
}

func newTestDedupEngine(resolver *stubResolver) *DedupEngine {
	cfg := testRecommendConfig()
	return NewDedupEngine(resolver, NewPreferenceOverlay(cfg), cfg, testLogger())
}

func TestBuildOwnedIndex(t *testing.T) {
	resolver := &stubResolver{
		byIdentifier:  map[string]string{"9780140449136": "OL1W"},
		byTitleAuthor: map[string]string{"Untracked Novel": "OL2W"},
		canonical:     map[string]string{"OL1W": "wd:Q100", "OL2W": "wd:Q200"},
	}

	entries := []models.LibraryEntry{
		{ID: 1, Title: "The Odyssey", Authors: "Homer", Identifier: "9780140449136", Status: models.StatusRead},
		{ID: 2, Title: "Untracked Novel", Authors: "Jane Doe", Status: models.StatusRead},
	}

	index := BuildOwnedIndex(context.Background(), entries, resolver)

	assert.Contains(t, index.Identifiers, "9780140449136")
	assert.Contains(t, index.WorkKeys, "OL1W")
	assert.Contains(t, index.WorkKeys, "OL2W")
	assert.Contains(t, index.CanonicalKeys, "wd:Q100")
	assert.Contains(t, index.CanonicalKeys, "wd:Q200")
	assert.Contains(t, index.Authors, "homer")
	assert.Contains(t, index.Authors, "jane doe")
	assert.NotEmpty(t, index.TitlePairs)
}

func TestDedupEngine_Select(t *testing.T) {
	t.Run("owned identifier is dropped before any lookup", func(t *testing.T) {
		resolver := &stubResolver{}
		engine := newTestDedupEngine(resolver)
		owned := &OwnedIndex{
			Identifiers:    map[string]struct{}{"9780000000001": {}},
			TitlePairs:     map[string]struct{}{},
			TitlesByAuthor: map[string][]string{},
			WorkKeys:       map[string]struct{}{},
			CanonicalKeys:  map[string]struct{}{},
			Authors:        map[string]struct{}{},
		}

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Some Book", "Anyone", "9780000000001", "", 50),
		}, owned, nil, 10, stats)

		assert.Empty(t, result)
		assert.Equal(t, 1, stats.DroppedByIdentifier)
		assert.Zero(t, resolver.lookups)
	})

	t.Run("owned title pair and near-duplicate titles are dropped", func(t *testing.T) {
		resolver := &stubResolver{}
		engine := newTestDedupEngine(resolver)

		entries := []models.LibraryEntry{
			{ID: 1, Title: "The Left Hand of Darkness", Authors: "Ursula K. Le Guin", Status: models.StatusRead},
		}
		owned := BuildOwnedIndex(context.Background(), entries, resolver)

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("The Left Hand of Darkness", "Ursula K. Le Guin", "", "", 60),
			scoredCandidate("Left Hand of Darkness: Anniversary Edition", "Ursula K. Le Guin", "", "", 55),
			scoredCandidate("The Dispossessed", "Ursula K. Le Guin", "", "", 50),
		}, owned, nil, 10, stats)

		require.Len(t, result, 1)
		assert.Equal(t, "The Dispossessed", result[0].Title)
		assert.Equal(t, 1, stats.DroppedByTitlePair)
		assert.Equal(t, 1, stats.DroppedNearDuplicate)
	})

	t.Run("owned work key catches retitled editions", func(t *testing.T) {
		resolver := &stubResolver{
			byTitleAuthor: map[string]string{"Das Schloss": "OL9W"},
		}
		engine := newTestDedupEngine(resolver)
		owned := &OwnedIndex{
			Identifiers:    map[string]struct{}{},
			TitlePairs:     map[string]struct{}{},
			TitlesByAuthor: map[string][]string{},
			WorkKeys:       map[string]struct{}{"OL9W": {}},
			CanonicalKeys:  map[string]struct{}{},
			Authors:        map[string]struct{}{},
		}

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Das Schloss", "Franz Kafka", "", "", 40),
		}, owned, nil, 10, stats)

		assert.Empty(t, result)
		assert.Equal(t, 1, stats.DroppedByWorkKey)
	})

	t.Run("cross-language edition by an owned author is re-resolved", func(t *testing.T) {
		// Candidate work key differs, but the identifier resolves to the
		// owned work: a translation of a book already on the shelf.
		resolver := &stubResolver{
			byIdentifier: map[string]string{"9783161484100": "OL10W"},
		}
		engine := newTestDedupEngine(resolver)
		owned := &OwnedIndex{
			Identifiers:    map[string]struct{}{},
			TitlePairs:     map[string]struct{}{},
			TitlesByAuthor: map[string][]string{},
			WorkKeys:       map[string]struct{}{"OL10W": {}},
			CanonicalKeys:  map[string]struct{}{},
			Authors:        map[string]struct{}{"franz kafka": {}},
		}

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("El Castillo", "Franz Kafka", "9783161484100", "OL-ES-1", 40),
		}, owned, nil, 10, stats)

		assert.Empty(t, result)
		assert.Equal(t, 1, stats.DroppedByWorkKey)
	})

	t.Run("canonical key collapses across catalogs", func(t *testing.T) {
		resolver := &stubResolver{
			canonical: map[string]string{"OL11W": "wd:Q999"},
		}
		engine := newTestDedupEngine(resolver)
		owned := &OwnedIndex{
			Identifiers:    map[string]struct{}{},
			TitlePairs:     map[string]struct{}{},
			TitlesByAuthor: map[string][]string{},
			WorkKeys:       map[string]struct{}{},
			CanonicalKeys:  map[string]struct{}{"wd:Q999": {}},
			Authors:        map[string]struct{}{},
		}

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Some Translation", "Someone New", "", "OL11W", 40),
		}, owned, nil, 10, stats)

		assert.Empty(t, result)
		assert.Equal(t, 1, stats.DroppedByCanonical)
	})

	t.Run("disliked candidates drop and liked ones boost", func(t *testing.T) {
		resolver := &stubResolver{
			canonical: map[string]string{"OL20W": "wd:Q20", "OL21W": "wd:Q21"},
		}
		engine := newTestDedupEngine(resolver)
		owned := emptyOwnedIndex()
		signals := &models.PreferenceSignals{
			LikedKeys:    map[string]struct{}{"wd:Q20": {}},
			DislikedKeys: map[string]struct{}{"wd:Q21": {}},
		}

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Liked Book", "Author One", "", "OL20W", 40),
			scoredCandidate("Disliked Book", "Author Two", "", "OL21W", 45),
		}, owned, signals, 10, stats)

		require.Len(t, result, 1)
		assert.Equal(t, "Liked Book", result[0].Title)
		assert.InDelta(t, 48.0, result[0].Score, 1e-9)
		require.NotEmpty(t, result[0].Reasons)
		assert.Equal(t, "preference", result[0].Reasons[0].Label)
		assert.Equal(t, 1, stats.DroppedByDislike)
		assert.Equal(t, 1, stats.LikedBoosts)
	})

	t.Run("author cap limits per-author results", func(t *testing.T) {
		resolver := &stubResolver{}
		engine := newTestDedupEngine(resolver)

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Book One", "Prolific Author", "", "OL31W", 50),
			scoredCandidate("Book Two", "Prolific Author", "", "OL32W", 45),
			scoredCandidate("Book Three", "Prolific Author", "", "OL33W", 40),
			scoredCandidate("Other Book", "Someone Else", "", "OL34W", 35),
		}, emptyOwnedIndex(), nil, 10, stats)

		require.Len(t, result, 3)
		assert.Equal(t, "Book One", result[0].Title)
		assert.Equal(t, "Book Two", result[1].Title)
		assert.Equal(t, "Other Book", result[2].Title)
		assert.Equal(t, 1, stats.DroppedByAuthorCap)
	})

	t.Run("response-local dedup keeps the higher-ranked edition", func(t *testing.T) {
		resolver := &stubResolver{
			canonical: map[string]string{"OL40W": "wd:Q40", "OL41W": "wd:Q40"},
		}
		engine := newTestDedupEngine(resolver)

		stats := &models.DebugStats{}
		result := engine.Select(context.Background(), []ScoredCandidate{
			scoredCandidate("Original", "Writer A", "", "OL40W", 50),
			scoredCandidate("Translated Rendition", "Writer A Translated", "", "OL41W", 45),
		}, emptyOwnedIndex(), nil, 10, stats)

		require.Len(t, result, 1)
		assert.Equal(t, "Original", result[0].Title)
		assert.Equal(t, 1, stats.DroppedInResponse)
	})

	t.Run("limit stops the walk", func(t *testing.T) {
		resolver := &stubResolver{}
		engine := newTestDedupEngine(resolver)

		candidates := []ScoredCandidate{
			scoredCandidate("A Book", "Author A", "", "OL50W", 50),
			scoredCandidate("B Book", "Author B", "", "OL51W", 45),
			scoredCandidate("C Book", "Author C", "", "OL52W", 40),
		}
		result := engine.Select(context.Background(), candidates, emptyOwnedIndex(), nil, 2, &models.DebugStats{})
		assert.Len(t, result, 2)
	})
}

func emptyOwnedIndex() *OwnedIndex {
	return &OwnedIndex{
		Identifiers:    map[string]struct{}{},
		TitlePairs:     map[string]struct{}{},
		TitlesByAuthor: map[string][]string{},
		WorkKeys:       map[string]struct{}{},
		CanonicalKeys:  map[string]struct{}{},
		Authors:        map[string]struct{}{},
	}
}
