package services

import (
	"fmt"
	"strings"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/textnorm"
	"github.com/quillshelf/quillshelf/pkg/models"
)

const topicNormCeiling = 3

// CandidateScorer rates one catalog candidate against a profile. Story
// similarity dominates, topic overlap second, author match third; the
// relative priority is the contract, the constants are configuration.
type CandidateScorer struct {
	cfg *config.RecommendConfig
}

func NewCandidateScorer(cfg *config.RecommendConfig) *CandidateScorer {
	return &CandidateScorer{cfg: cfg}
}

// Score returns the candidate's total score and up to three ordered
// reasons. Every nonzero component contributes a reason; only the top
// three are surfaced. A score of zero or below means "discard".
func (s *CandidateScorer) Score(candidate *models.Candidate, profile *models.Profile, preferredLanguage string) (float64, []models.Reason) {
	score := 0.0
	reasons := make([]models.Reason, 0, 3)

	storyScore, storyReason := s.scoreStory(candidate, profile)
	score += storyScore
	if storyReason != nil {
		reasons = append(reasons, *storyReason)
	}

	topicScore, topicReason := s.scoreTopics(candidate, profile)
	score += topicScore
	if topicReason != nil {
		reasons = append(reasons, *topicReason)
	}

	authorScore, authorReason := s.scoreAuthor(candidate, profile)
	score += authorScore
	if authorReason != nil {
		reasons = append(reasons, *authorReason)
	}

	// The bonus only amplifies an existing affinity. On its own it would
	// carry zero-overlap candidates past the discard filter with nothing
	// to say about them.
	if score > 0 && preferredLanguage != "" && matchesLanguage(candidate, preferredLanguage) {
		score += s.cfg.LanguageBonus
	}

	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return score, reasons
}

// scoreStory extracts the same lexical terms and motifs from the candidate
// the profile was built with, sums the matching profile weights, and
// normalizes by the profile's story denominator.
func (s *CandidateScorer) scoreStory(candidate *models.Candidate, profile *models.Profile) (float64, *models.Reason) {
	text := textnorm.Normalize(candidate.Title + " " + strings.Join(candidate.Subjects, " "))
	if text == "" || profile.Story.Norm <= 0 {
		return 0, nil
	}

	raw := 0.0
	bestTerm := ""
	bestTermWeight := 0.0
	seen := make(map[string]struct{})
	for _, token := range strings.Fields(text) {
		if len(token) < minTermLength {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		if w, ok := profile.Story.Terms[token]; ok {
			raw += w
			if w > bestTermWeight {
				bestTermWeight = w
				bestTerm = token
			}
		}
	}

	bestMotif := ""
	bestMotifWeight := 0.0
	matchedMotifs := make(map[string]struct{})
	for trigger, motif := range motifKeywords {
		if _, ok := matchedMotifs[motif]; ok {
			continue
		}
		if !strings.Contains(text, trigger) {
			continue
		}
		if w, ok := profile.Story.Motifs[motif]; ok {
			matchedMotifs[motif] = struct{}{}
			raw += motifWeightFactor * w
			if w > bestMotifWeight {
				bestMotifWeight = w
				bestMotif = motif
			}
		}
	}

	if raw <= 0 {
		return 0, nil
	}

	normalized := raw / profile.Story.Norm
	if normalized > 1 {
		normalized = 1
	}

	reason := &models.Reason{Label: "story"}
	if bestMotif != "" {
		reason.Detail = fmt.Sprintf("Shares the %s thread with books you loved", bestMotif)
	} else {
		reason.Detail = fmt.Sprintf("Echoes themes you rated highly, like %q", bestTerm)
	}
	return normalized * s.cfg.StoryWeight, reason
}

func (s *CandidateScorer) scoreTopics(candidate *models.Candidate, profile *models.Profile) (float64, *models.Reason) {
	if len(profile.TopSubjects) == 0 || len(candidate.Subjects) == 0 {
		return 0, nil
	}

	profileSubjects := make(map[string]models.SubjectWeight, len(profile.TopSubjects))
	for _, sw := range profile.TopSubjects {
		profileSubjects[sw.Subject] = sw
	}

	matches := 0.0
	bestSubject := ""
	bestContribution := 0.0
	seen := make(map[string]struct{})
	for _, subject := range candidate.Subjects {
		key := textnorm.Normalize(subject)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		sw, ok := profileSubjects[key]
		if !ok {
			continue
		}
		contribution := 1.0
		if sw.Generic {
			contribution = 0.25
		}
		matches += contribution
		if contribution > bestContribution || (contribution == bestContribution && bestSubject == "") {
			bestContribution = contribution
			bestSubject = key
		}
	}

	if matches <= 0 {
		return 0, nil
	}

	denom := len(profile.TopSubjects)
	if denom > topicNormCeiling {
		denom = topicNormCeiling
	}
	normalized := matches / float64(denom)
	if normalized > 1 {
		normalized = 1
	}

	reason := &models.Reason{
		Label:  "topic",
		Detail: fmt.Sprintf("Covers %s, a subject you keep coming back to", bestSubject),
	}
	return normalized * s.cfg.TopicWeight, reason
}

func (s *CandidateScorer) scoreAuthor(candidate *models.Candidate, profile *models.Profile) (float64, *models.Reason) {
	if len(profile.TopAuthors) == 0 {
		return 0, nil
	}

	profileAuthors := make(map[string]struct{}, len(profile.TopAuthors))
	for _, aw := range profile.TopAuthors {
		profileAuthors[aw.Author] = struct{}{}
	}

	for _, author := range candidate.Authors {
		key := textnorm.Normalize(author)
		if _, ok := profileAuthors[key]; ok {
			reason := &models.Reason{
				Label:  "author",
				Detail: fmt.Sprintf("By %s, an author you rated highly", strings.TrimSpace(author)),
			}
			return s.cfg.AuthorWeight, reason
		}
	}
	return 0, nil
}

// matchesLanguage prefers an explicit language tag; without one it falls
// back to a stopword-density heuristic over the title and first sentence.
func matchesLanguage(candidate *models.Candidate, preferred string) bool {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" {
		return false
	}
	if candidate.Language != "" {
		return strings.EqualFold(candidate.Language, preferred) ||
			strings.EqualFold(languageCode(candidate.Language), preferred)
	}

	text := textnorm.Normalize(candidate.Title + " " + candidate.FirstSentence)
	tokens := strings.Fields(text)
	if len(tokens) < 3 {
		return false
	}
	hits := 0
	for _, token := range tokens {
		if textnorm.IsStopwordIn(token, preferred) {
			hits++
		}
	}
	return float64(hits)/float64(len(tokens)) >= 0.2
}

// languageCode folds common MARC bibliographic codes to ISO 639-1.
func languageCode(tag string) string {
	switch strings.ToLower(tag) {
	case "eng":
		return "en"
	case "ger", "deu":
		return "de"
	case "fre", "fra":
		return "fr"
	case "spa":
		return "es"
	case "ita":
		return "it"
	default:
		return strings.ToLower(tag)
	}
}
