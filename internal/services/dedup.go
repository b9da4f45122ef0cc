package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/catalog"
	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/identity"
	"github.com/quillshelf/quillshelf/internal/textnorm"
	"github.com/quillshelf/quillshelf/pkg/models"
)

// workResolver is the identity surface the dedup engine needs. Satisfied
// by *identity.Resolver; tests substitute a deterministic fake.
type workResolver interface {
	WorkKeyByIdentifier(ctx context.Context, identifier string) string
	WorkKeyByTitleAuthor(ctx context.Context, title, authors string) string
	CanonicalKey(ctx context.Context, workKey, title, authors string) string
}

// ScoredCandidate pairs a catalog candidate with its profile score.
type ScoredCandidate struct {
	Candidate models.Candidate
	Score     float64
	Reasons   []models.Reason
}

// OwnedIndex precomputes every exclusion signal derivable from the user's
// library, so the per-candidate gate can run its cheap checks without
// touching the network.
type OwnedIndex struct {
	Identifiers    map[string]struct{}
	TitlePairs     map[string]struct{} // primaryAuthorKey|titleTokenKey
	TitlesByAuthor map[string][]string // primaryAuthorKey -> owned titles
	WorkKeys       map[string]struct{}
	CanonicalKeys  map[string]struct{}
	Authors        map[string]struct{} // primary author keys in the library
}

// BuildOwnedIndex resolves the library's work and canonical keys with a
// bounded lookup fan-out and assembles the exclusion sets. Resolution
// failures simply leave the stronger sets smaller; the text-based checks
// still hold.
func BuildOwnedIndex(ctx context.Context, entries []models.LibraryEntry, resolver workResolver) *OwnedIndex {
	index := &OwnedIndex{
		Identifiers:    make(map[string]struct{}),
		TitlePairs:     make(map[string]struct{}),
		TitlesByAuthor: make(map[string][]string),
		WorkKeys:       make(map[string]struct{}),
		CanonicalKeys:  make(map[string]struct{}),
		Authors:        make(map[string]struct{}),
	}

	for _, entry := range entries {
		if id := strings.TrimSpace(entry.Identifier); id != "" {
			index.Identifiers[id] = struct{}{}
		}
		authorKey := textnorm.PrimaryAuthorKey(entry.Authors)
		titleKey := textnorm.TitleTokenKey(entry.Title)
		if titleKey != "" {
			index.TitlePairs[authorKey+"|"+titleKey] = struct{}{}
		}
		if authorKey != "" {
			index.Authors[authorKey] = struct{}{}
			index.TitlesByAuthor[authorKey] = append(index.TitlesByAuthor[authorKey], entry.Title)
		}
	}

	type ownedKeys struct {
		workKey   string
		canonical string
	}
	resolved := catalog.MapLimit(ctx, entries, catalog.LookupConcurrency, func(ctx context.Context, entry models.LibraryEntry) ownedKeys {
		workKey := resolver.WorkKeyByIdentifier(ctx, entry.Identifier)
		if workKey == "" {
			workKey = resolver.WorkKeyByTitleAuthor(ctx, entry.Title, entry.Authors)
		}
		return ownedKeys{
			workKey:   workKey,
			canonical: resolver.CanonicalKey(ctx, workKey, entry.Title, entry.Authors),
		}
	})

	for _, keys := range resolved {
		if keys.workKey != "" {
			index.WorkKeys[keys.workKey] = struct{}{}
		}
		if keys.canonical != "" {
			index.CanonicalKeys[keys.canonical] = struct{}{}
		}
	}

	return index
}

// DedupEngine runs the per-candidate exclusion gate: owned filtering,
// cross-edition deduplication, preference overlay, and the per-author cap.
type DedupEngine struct {
	resolver workResolver
	overlay  *PreferenceOverlay
	cfg      *config.RecommendConfig
	logger   *logrus.Logger
}

func NewDedupEngine(resolver workResolver, overlay *PreferenceOverlay, cfg *config.RecommendConfig, logger *logrus.Logger) *DedupEngine {
	return &DedupEngine{
		resolver: resolver,
		overlay:  overlay,
		cfg:      cfg,
		logger:   logger,
	}
}

// Select walks the score-ordered candidates through the exclusion gate and
// returns up to limit recommendations. Cheap exact-match checks run before
// the network-backed identity resolution; that ordering keeps external
// calls to a minimum and must stay that way.
func (e *DedupEngine) Select(ctx context.Context, candidates []ScoredCandidate, owned *OwnedIndex, signals *models.PreferenceSignals, limit int, stats *models.DebugStats) []models.Recommendation {
	accepted := make([]models.Recommendation, 0, limit)
	acceptedIDKeys := make(map[string]struct{})
	acceptedCanonical := make(map[string]struct{})
	acceptedTitles := make(map[string][]string)
	authorCounts := make(map[string]int)

	for i := range candidates {
		if len(accepted) >= limit {
			break
		}
		sc := &candidates[i]
		candidate := &sc.Candidate

		authorsField := strings.Join(candidate.Authors, ", ")
		authorKey := textnorm.PrimaryAuthorKey(authorsField)
		titleKey := textnorm.TitleTokenKey(candidate.Title)

		// Owned: exact identifier.
		if _, ok := owned.Identifiers[candidate.Identifier]; ok && candidate.Identifier != "" {
			stats.DroppedByIdentifier++
			continue
		}

		// Owned: exact (author, title) pair.
		if titleKey != "" {
			if _, ok := owned.TitlePairs[authorKey+"|"+titleKey]; ok {
				stats.DroppedByTitlePair++
				continue
			}
		}

		// Owned: near-duplicate title by the same primary author.
		if hasNearDuplicate(owned.TitlesByAuthor[authorKey], candidate.Title) {
			stats.DroppedNearDuplicate++
			continue
		}

		// Author cap runs before the network-backed checks: once an author
		// is saturated there is no point resolving further identities.
		if authorKey != "" && e.cfg.AuthorCap > 0 && authorCounts[authorKey] >= e.cfg.AuthorCap {
			stats.DroppedByAuthorCap++
			continue
		}

		// Owned: resolved work key.
		workKey := candidate.WorkKey
		if workKey == "" {
			workKey = e.resolver.WorkKeyByTitleAuthor(ctx, candidate.Title, authorsField)
		}
		if workKey != "" {
			if _, ok := owned.WorkKeys[workKey]; ok {
				stats.DroppedByWorkKey++
				continue
			}
		}

		// Cross-language safety net: when the author is already on the
		// user's shelves, re-derive the work key from the identifier, the
		// strongest available signal.
		if _, ownedAuthor := owned.Authors[authorKey]; ownedAuthor && candidate.Identifier != "" {
			if stronger := e.resolver.WorkKeyByIdentifier(ctx, candidate.Identifier); stronger != "" {
				workKey = stronger
				if _, ok := owned.WorkKeys[workKey]; ok {
					stats.DroppedByWorkKey++
					continue
				}
			}
		}

		// Owned: canonical key.
		canonical := e.resolver.CanonicalKey(ctx, workKey, candidate.Title, authorsField)
		if _, ok := owned.CanonicalKeys[canonical]; ok && canonical != "" {
			stats.DroppedByCanonical++
			continue
		}

		// Preference overlay.
		prefKeys := identity.CandidateKeys(canonical, workKey, candidate.Title, authorsField, candidate.Identifier)
		boost, prefReason, disliked := e.overlay.Apply(prefKeys, signals)
		if disliked {
			stats.DroppedByDislike++
			continue
		}

		// Response-local dedup: same record, same canonical work, or a
		// near-duplicate title by an author already in the response.
		idKey := workKey
		if idKey == "" {
			idKey = candidate.Identifier
		}
		if idKey != "" {
			if _, ok := acceptedIDKeys[idKey]; ok {
				stats.DroppedInResponse++
				continue
			}
		}
		if canonical != "" {
			if _, ok := acceptedCanonical[canonical]; ok {
				stats.DroppedInResponse++
				continue
			}
		}
		if hasNearDuplicate(acceptedTitles[authorKey], candidate.Title) {
			stats.DroppedInResponse++
			continue
		}

		score := sc.Score
		reasons := sc.Reasons
		if boost > 0 {
			score += boost
			reasons = append([]models.Reason{*prefReason}, reasons...)
			stats.LikedBoosts++
		}

		accepted = append(accepted, models.Recommendation{
			RecID:       canonical,
			WorkKey:     workKey,
			Identifier:  candidate.Identifier,
			Title:       candidate.Title,
			Authors:     candidate.Authors,
			CoverURL:    candidate.CoverURL,
			Description: candidate.Description,
			Score:       score,
			Reasons:     reasons,
			Subjects:    candidate.Subjects,
		})
		if idKey != "" {
			acceptedIDKeys[idKey] = struct{}{}
		}
		if canonical != "" {
			acceptedCanonical[canonical] = struct{}{}
		}
		if authorKey != "" {
			acceptedTitles[authorKey] = append(acceptedTitles[authorKey], candidate.Title)
			authorCounts[authorKey]++
		}
	}

	return accepted
}

func hasNearDuplicate(titles []string, title string) bool {
	for _, owned := range titles {
		if identity.TitleNearDuplicate(owned, title) {
			return true
		}
	}
	return false
}
