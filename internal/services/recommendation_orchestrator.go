package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/catalog"
	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/pkg/models"
)

const (
	maxSubjectQueries = 4
	maxAuthorQueries  = 3
	maxStoryTerms     = 3
)

// catalogSearcher is the search surface of the catalog client.
type catalogSearcher interface {
	Search(ctx context.Context, query string, limit int) []catalog.Document
	CacheHits() uint64
}

// preferenceLoader supplies prior like/dislike signals. Implementations
// absorb their own failures and return empty signals instead of erroring.
type preferenceLoader interface {
	LoadSignals(ctx context.Context, userID uuid.UUID) *models.PreferenceSignals
}

// RecommendationOrchestrator runs the full pipeline: profile construction,
// multi-query candidate retrieval, scoring, owned-work exclusion,
// cross-edition dedup, preference overlay, and author diversification.
type RecommendationOrchestrator struct {
	catalog  catalogSearcher
	resolver workResolver
	profiles *ProfileBuilder
	scorer   *CandidateScorer
	dedup    *DedupEngine
	prefs    preferenceLoader // may be nil
	cfg      *config.RecommendConfig
	logger   *logrus.Logger

	pipelineDuration *prometheus.HistogramVec
}

func NewRecommendationOrchestrator(
	cat catalogSearcher,
	resolver workResolver,
	profiles *ProfileBuilder,
	scorer *CandidateScorer,
	dedup *DedupEngine,
	prefs preferenceLoader,
	cfg *config.RecommendConfig,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	o := &RecommendationOrchestrator{
		catalog:  cat,
		resolver: resolver,
		profiles: profiles,
		scorer:   scorer,
		dedup:    dedup,
		prefs:    prefs,
		cfg:      cfg,
		logger:   logger,
	}

	o.pipelineDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recommendation_pipeline_duration_seconds",
		Help:    "End-to-end recommendation pipeline latency by outcome",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"outcome"}))

	return o
}

func registerHistogramVec(hv *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(hv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return hv
}

// Recommend computes recommendations for one user from their current
// library snapshot. Per-lookup failures degrade to partial results; only a
// panic during orchestration surfaces as an error.
func (o *RecommendationOrchestrator) Recommend(ctx context.Context, userID uuid.UUID, entries []models.LibraryEntry, req models.RecommendRequest) (resp *models.RecommendResponse, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			o.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"panic":   r,
			}).Error("Recommendation pipeline panicked")
			resp = nil
			err = fmt.Errorf("recommendation pipeline failed")
		}
		o.pipelineDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	o.applyDefaults(&req)
	stats := &models.DebugStats{}

	profile := o.profiles.Build(entries, req.MinRating, req.SeedMode, req.SeedIDs)
	stats.SeedEntries = profile.LikedCount

	// No qualifying seeds: empty result, zero network calls.
	if profile.IsEmpty() {
		outcome = "empty_profile"
		return o.respond(&profile, nil, stats, req.Debug), nil
	}

	// The request-level deadline bounds the whole fan-out; whatever
	// resolved before it fires still flows into the response.
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	var signals *models.PreferenceSignals
	if o.prefs != nil {
		signals = o.prefs.LoadSignals(ctx, userID)
	}

	hitsBefore := o.catalog.CacheHits()

	queries := buildQueries(&profile)
	stats.QueriesIssued = len(queries)

	searchResults := catalog.MapLimit(ctx, queries, catalog.SearchConcurrency, func(ctx context.Context, query string) []catalog.Document {
		return o.catalog.Search(ctx, query, o.cfg.SearchLimit)
	})

	candidates := o.collectCandidates(searchResults)
	stats.CandidatesFetched = len(candidates)

	scored := o.scoreCandidates(candidates, &profile, req.Language, stats)

	owned := BuildOwnedIndex(ctx, entries, o.resolver)
	recommendations := o.dedup.Select(ctx, scored, owned, signals, req.Limit, stats)

	// The preference boost can reorder; re-sort with a canonical-key
	// tie-break so identical inputs always produce identical output.
	sort.SliceStable(recommendations, func(i, j int) bool {
		if recommendations[i].Score != recommendations[j].Score {
			return recommendations[i].Score > recommendations[j].Score
		}
		return recommendations[i].RecID < recommendations[j].RecID
	})

	stats.CatalogCacheHits = int(o.catalog.CacheHits() - hitsBefore)

	o.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"seeds":      profile.LikedCount,
		"queries":    stats.QueriesIssued,
		"candidates": stats.CandidatesFetched,
		"returned":   len(recommendations),
		"duration":   time.Since(start),
	}).Info("Recommendation pipeline completed")

	return o.respond(&profile, recommendations, stats, req.Debug), nil
}

func (o *RecommendationOrchestrator) applyDefaults(req *models.RecommendRequest) {
	if req.MinRating <= 0 {
		req.MinRating = o.cfg.MinRating
	}
	if req.SeedMode == "" {
		req.SeedMode = models.SeedMode(o.cfg.SeedMode)
	}
	if req.Limit <= 0 {
		req.Limit = o.cfg.DefaultLimit
	}
	if req.Limit > o.cfg.MaxLimit {
		req.Limit = o.cfg.MaxLimit
	}
}

// buildQueries derives the multi-query retrieval set from the profile:
// subject searches first, then author searches, then one combined query
// from the heaviest story terms.
func buildQueries(profile *models.Profile) []string {
	queries := make([]string, 0, maxSubjectQueries+maxAuthorQueries+1)

	subjects := 0
	for _, sw := range profile.TopSubjects {
		if sw.Generic {
			continue
		}
		queries = append(queries, fmt.Sprintf("subject:%q", sw.Subject))
		if subjects++; subjects >= maxSubjectQueries {
			break
		}
	}

	authors := 0
	for _, aw := range profile.TopAuthors {
		queries = append(queries, fmt.Sprintf("author:%q", aw.Author))
		if authors++; authors >= maxAuthorQueries {
			break
		}
	}

	terms := rankedKeys(profile.Story.Terms, maxStoryTerms)
	if len(terms) > 0 {
		query := ""
		for i, term := range terms {
			if i > 0 {
				query += " "
			}
			query += term
		}
		queries = append(queries, query)
	}

	return queries
}

// collectCandidates flattens the per-query result lists, converts the
// documents, and skips obvious duplicates of the same catalog record. The
// candidate ceiling bounds downstream scoring work.
func (o *RecommendationOrchestrator) collectCandidates(results [][]catalog.Document) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, o.cfg.CandidateCeiling)
	seen := make(map[string]struct{})

	for _, docs := range results {
		for i := range docs {
			if len(out) >= o.cfg.CandidateCeiling {
				return out
			}
			doc := &docs[i]
			if doc.Title == "" {
				continue
			}

			recordKey := doc.WorkKey
			if recordKey == "" {
				recordKey = doc.PrimaryISBN()
			}
			if recordKey == "" {
				recordKey = doc.Title
			}
			if _, ok := seen[recordKey]; ok {
				continue
			}
			seen[recordKey] = struct{}{}

			candidate := models.Candidate{
				Identifier: doc.PrimaryISBN(),
				Title:      doc.Title,
				Authors:    doc.Authors,
				CoverURL:   doc.CoverURL(),
				Subjects:   doc.Subjects,
				WorkKey:    doc.WorkKey,
			}
			if len(doc.Languages) > 0 {
				candidate.Language = doc.Languages[0]
			}
			if len(doc.FirstSentence) > 0 {
				candidate.FirstSentence = doc.FirstSentence[0]
			}
			out = append(out, ScoredCandidate{Candidate: candidate})
		}
	}
	return out
}

// scoreCandidates rates each candidate, discards non-positive scores, and
// orders the survivors deterministically: score descending, then title
// key, then identifier.
func (o *RecommendationOrchestrator) scoreCandidates(candidates []ScoredCandidate, profile *models.Profile, language string, stats *models.DebugStats) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for i := range candidates {
		sc := candidates[i]
		sc.Score, sc.Reasons = o.scorer.Score(&sc.Candidate, profile, language)
		if sc.Score <= 0 {
			stats.DroppedZeroScore++
			continue
		}
		scored = append(scored, sc)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Candidate.Title != scored[j].Candidate.Title {
			return scored[i].Candidate.Title < scored[j].Candidate.Title
		}
		return scored[i].Candidate.Identifier < scored[j].Candidate.Identifier
	})
	return scored
}

func (o *RecommendationOrchestrator) respond(profile *models.Profile, recommendations []models.Recommendation, stats *models.DebugStats, debug bool) *models.RecommendResponse {
	if recommendations == nil {
		recommendations = []models.Recommendation{}
	}
	resp := &models.RecommendResponse{
		Profile: models.ProfileSummary{
			LikedCount:  profile.LikedCount,
			TopSubjects: profile.TopSubjects,
			TopAuthors:  profile.TopAuthors,
		},
		Recommendations: recommendations,
		GeneratedAt:     time.Now().UTC(),
	}
	if debug {
		resp.Debug = stats
	}
	return resp
}
