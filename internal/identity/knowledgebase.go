package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/quillshelf/quillshelf/internal/catalog"
	"github.com/quillshelf/quillshelf/internal/textnorm"
)

const (
	defaultKBBaseURL   = "https://www.wikidata.org/w/api.php"
	defaultKBTimeout   = 12 * time.Second
	kbSearchLimit      = 5
	kbMatchThreshold   = 0.6
	kbAuthorBonus      = 0.35
	kbContainmentScore = 0.75
	kbExactScore       = 1.0
)

// kbSearchLanguages are the labels queried per title. Works are catalogued
// under translated labels, so a single-language search misses translations.
var kbSearchLanguages = []string{"en", "de", "fr", "es", "it"}

// KnowledgeBase resolves title+author pairs to stable cross-catalog entity
// IDs via an entity-label search API. It is the default CrossRefSource.
type KnowledgeBase struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      catalog.Cache
	logger     *logrus.Logger
}

// KBOptions configure the knowledge-base client. Zero values select
// production defaults.
type KBOptions struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

func NewKnowledgeBase(opts KBOptions, logger *logrus.Logger) *KnowledgeBase {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultKBBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultKBTimeout
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}

	return &KnowledgeBase{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		cache:      catalog.NewMemoryCache(0, 0),
		logger:     logger,
	}
}

type entityHit struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type kbSearchResponse struct {
	Search []entityHit `json:"search"`
}

// ResolveByTitleAuthor searches entity labels across several languages,
// scores each hit against the wanted title and author, and returns the
// best-scoring entity ID when it clears the match threshold. Any network
// or decode failure resolves to "".
func (kb *KnowledgeBase) ResolveByTitleAuthor(ctx context.Context, title, authors string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	cacheKey := textnorm.Normalize(title) + "|" + textnorm.PrimaryAuthorKey(authors)
	if cached, ok := kb.cache.Get(cacheKey); ok {
		if id, ok := cached.(string); ok {
			return id
		}
	}

	bestID := ""
	bestScore := 0.0
	for _, lang := range kbSearchLanguages {
		for _, hit := range kb.searchEntities(ctx, title, lang) {
			score := scoreEntityHit(&hit, title, authors)
			if score > bestScore {
				bestScore = score
				bestID = hit.ID
			}
		}
		// An exact-label match with author confirmation cannot be beaten.
		if bestScore >= kbExactScore+kbAuthorBonus {
			break
		}
	}

	if bestScore < kbMatchThreshold {
		bestID = ""
	}
	kb.cache.Set(cacheKey, bestID)
	return bestID
}

func (kb *KnowledgeBase) searchEntities(ctx context.Context, title, lang string) []entityHit {
	if err := kb.limiter.Wait(ctx); err != nil {
		return nil
	}

	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("format", "json")
	params.Set("type", "item")
	params.Set("search", title)
	params.Set("language", lang)
	params.Set("uselang", lang)
	params.Set("limit", fmt.Sprintf("%d", kbSearchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kb.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}

	resp, err := kb.httpClient.Do(req)
	if err != nil {
		kb.logger.WithError(err).WithFields(logrus.Fields{
			"lang": lang,
		}).Warn("Knowledge base search failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kb.logger.WithFields(logrus.Fields{
			"lang":   lang,
			"status": resp.StatusCode,
		}).Warn("Knowledge base search returned non-OK status")
		return nil
	}

	var decoded kbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		kb.logger.WithError(err).Warn("Knowledge base response decode failed")
		return nil
	}
	return decoded.Search
}

// scoreEntityHit rates how well an entity's label and description match the
// wanted title and author. Label similarity dominates; an author name
// appearing in the description adds a confirmation bonus.
func scoreEntityHit(hit *entityHit, title, authors string) float64 {
	score := 0.0
	wantKey := textnorm.TitleTokenKey(title)
	hitKey := textnorm.TitleTokenKey(hit.Label)

	switch {
	case hitKey != "" && hitKey == wantKey:
		score = kbExactScore
	case TitleNearDuplicate(hit.Label, title):
		score = kbContainmentScore
	default:
		return 0
	}

	author := textnorm.AuthorLastToken(authors)
	if author != "" && strings.Contains(textnorm.Normalize(hit.Description), author) {
		score += kbAuthorBonus
	}
	return score
}
