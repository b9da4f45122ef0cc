package services

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/textnorm"
	"github.com/quillshelf/quillshelf/pkg/models"
)

const (
	topTermCount  = 20
	topMotifCount = 8

	normTermCount  = 10
	normMotifCount = 4

	motifWeightFactor = 1.5
	minTermLength     = 4
)

// genericSubjects carry almost no topical information. They still count,
// but at a heavy discount so "Fiction" never dominates the profile.
var genericSubjects = map[string]struct{}{
	"fiction":          {},
	"general":          {},
	"novel":            {},
	"novels":           {},
	"literature":       {},
	"classic":          {},
	"classics":         {},
	"romance":          {},
	"bestseller":       {},
	"accessible book":  {},
	"protected daisy":  {},
	"large type books": {},
}

// storyStopwords are high-frequency narrative filler excluded from the
// lexical story profile on top of the shared stopword set.
var storyStopwords = map[string]struct{}{
	"book": {}, "books": {}, "story": {}, "stories": {}, "reader": {},
	"readers": {}, "page": {}, "pages": {}, "author": {}, "edition": {},
	"world": {}, "life": {}, "years": {}, "about": {}, "their": {},
	"there": {}, "which": {}, "would": {}, "could": {}, "other": {},
	"first": {}, "after": {}, "before": {}, "through": {}, "where": {},
	"because": {}, "being": {}, "while": {}, "every": {}, "never": {},
}

// motifKeywords maps substring triggers to motif categories. Detection is
// substring presence over normalized text, so "mentor" also fires on
// "mentorship" and "mentored".
var motifKeywords = map[string]string{
	"coming of age":  "coming-of-age",
	"growing up":     "coming-of-age",
	"adolescen":      "coming-of-age",
	"mentor":         "mentorship",
	"apprentice":     "mentorship",
	"teacher":        "mentorship",
	"friend":         "friendship",
	"companion":      "friendship",
	"grief":          "grief-loss",
	"mourning":       "grief-loss",
	"loss":           "grief-loss",
	"bereave":        "grief-loss",
	"identity":       "self-discovery",
	"self discovery": "self-discovery",
	"writer":         "literary-world",
	"bookshop":       "literary-world",
	"library":        "literary-world",
	"manuscript":     "literary-world",
	"memory":         "memory",
	"remember":       "memory",
	"war":            "war",
	"survival":       "survival",
	"wilderness":     "survival",
	"magic":          "magic",
	"sorcer":         "magic",
	"wizard":         "magic",
	"family secret":  "family",
	"sister":         "family",
	"brother":        "family",
	"inherit":        "family",
}

// ProfileBuilder aggregates qualifying library entries into weighted
// subject, author, and lexical story distributions.
type ProfileBuilder struct {
	cfg *config.RecommendConfig
}

func NewProfileBuilder(cfg *config.RecommendConfig) *ProfileBuilder {
	return &ProfileBuilder{cfg: cfg}
}

// Build computes the per-request profile. An empty seed set yields an
// empty profile; the caller short-circuits on it.
func (b *ProfileBuilder) Build(entries []models.LibraryEntry, minRating int, seedMode models.SeedMode, seedIDs []int64) models.Profile {
	seeds := selectSeeds(entries, minRating, seedMode, seedIDs)

	profile := models.Profile{LikedCount: len(seeds)}
	if len(seeds) == 0 {
		return profile
	}

	subjectWeights := make(map[string]float64)
	authorWeights := make(map[string]float64)
	termWeights := make(map[string]float64)
	motifWeights := make(map[string]float64)

	for i := range seeds {
		entry := &seeds[i]
		weight := entryWeight(entry, minRating)

		for _, subject := range entry.SubjectList() {
			key := textnorm.Normalize(subject)
			if key == "" {
				continue
			}
			w := weight
			if _, generic := genericSubjects[key]; generic {
				w *= b.cfg.GenericDiscount
			}
			subjectWeights[key] += w
		}

		// All listed authors contribute, at half the subject scale.
		for _, author := range textnorm.SplitAuthors(entry.Authors) {
			key := textnorm.Normalize(author)
			if key == "" {
				continue
			}
			authorWeights[key] += weight / 2
		}

		accumulateStory(storyText(entry), weight/10, termWeights, motifWeights)
	}

	profile.TopSubjects = topSubjects(subjectWeights, b.cfg.TopSubjects)
	profile.TopAuthors = topAuthors(authorWeights, b.cfg.TopAuthors)
	profile.Story = buildStoryProfile(termWeights, motifWeights)

	return profile
}

func selectSeeds(entries []models.LibraryEntry, minRating int, seedMode models.SeedMode, seedIDs []int64) []models.LibraryEntry {
	idFilter := make(map[int64]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		idFilter[id] = struct{}{}
	}

	var seeds []models.LibraryEntry
	for _, entry := range entries {
		if entry.Status != models.StatusRead {
			continue
		}
		if len(idFilter) > 0 {
			if _, ok := idFilter[entry.ID]; !ok {
				continue
			}
		}
		if seedMode != models.SeedAllRead {
			rating, rated := entry.RatingValue()
			if !rated || rating < minRating {
				continue
			}
		}
		seeds = append(seeds, entry)
	}
	return seeds
}

// entryWeight is the rating clamped into [minRating, 10]. Unrated entries
// (possible under the all-read seed mode) weigh in at the floor.
func entryWeight(entry *models.LibraryEntry, minRating int) float64 {
	rating, rated := entry.RatingValue()
	if !rated || rating < minRating {
		rating = minRating
	}
	if rating > 10 {
		rating = 10
	}
	return float64(rating)
}

func storyText(entry *models.LibraryEntry) string {
	parts := []string{entry.Title, entry.Description, entry.Notes}
	parts = append(parts, entry.SubjectList()...)
	return textnorm.Normalize(strings.Join(parts, " "))
}

// accumulateStory adds one entry's lexical contribution: terms by the
// entry's normalized rating weight, motifs at 1.5x that.
func accumulateStory(normalized string, weight float64, termWeights, motifWeights map[string]float64) {
	if normalized == "" {
		return
	}

	seen := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		if len(token) < minTermLength || textnorm.IsStopword(token) {
			continue
		}
		if _, ok := storyStopwords[token]; ok {
			continue
		}
		// Each term counts once per entry so long descriptions don't
		// outweigh highly rated short ones.
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		termWeights[token] += weight
	}

	seenMotifs := make(map[string]struct{})
	for trigger, motif := range motifKeywords {
		if _, ok := seenMotifs[motif]; ok {
			continue
		}
		if strings.Contains(normalized, trigger) {
			seenMotifs[motif] = struct{}{}
			motifWeights[motif] += motifWeightFactor * weight
		}
	}
}

func buildStoryProfile(termWeights, motifWeights map[string]float64) models.StoryProfile {
	story := models.StoryProfile{
		Terms:  topWeightMap(termWeights, topTermCount),
		Motifs: topWeightMap(motifWeights, topMotifCount),
	}

	termTop := sortedWeights(story.Terms)
	motifTop := sortedWeights(story.Motifs)
	if len(termTop) > normTermCount {
		termTop = termTop[:normTermCount]
	}
	if len(motifTop) > normMotifCount {
		motifTop = motifTop[:normMotifCount]
	}

	norm := floats.Sum(termTop) + motifWeightFactor*floats.Sum(motifTop)
	if norm < 1 {
		norm = 1
	}
	story.Norm = norm
	return story
}

// rankedKeys sorts map keys by weight descending with an alphabetical
// tie-break, so output never depends on map iteration order.
func rankedKeys(weights map[string]float64, n int) []string {
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if weights[keys[i]] != weights[keys[j]] {
			return weights[keys[i]] > weights[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func topSubjects(weights map[string]float64, n int) []models.SubjectWeight {
	keys := rankedKeys(weights, n)
	out := make([]models.SubjectWeight, 0, len(keys))
	for _, key := range keys {
		_, generic := genericSubjects[key]
		out = append(out, models.SubjectWeight{Subject: key, Weight: weights[key], Generic: generic})
	}
	return out
}

func topAuthors(weights map[string]float64, n int) []models.AuthorWeight {
	keys := rankedKeys(weights, n)
	out := make([]models.AuthorWeight, 0, len(keys))
	for _, key := range keys {
		out = append(out, models.AuthorWeight{Author: key, Weight: weights[key]})
	}
	return out
}

func topWeightMap(weights map[string]float64, n int) map[string]float64 {
	keys := rankedKeys(weights, n)
	out := make(map[string]float64, len(keys))
	for _, key := range keys {
		out[key] = weights[key]
	}
	return out
}

func sortedWeights(weights map[string]float64) []float64 {
	values := make([]float64, 0, len(weights))
	for _, w := range weights {
		values = append(values, w)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	return values
}
