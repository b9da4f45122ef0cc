// Package identity resolves "same literary work" identity across catalog
// records, editions, and translations. Every network-backed resolution
// degrades to the empty string; callers fall back to the next-weaker key.
package identity

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/catalog"
	"github.com/quillshelf/quillshelf/internal/textnorm"
)

const (
	titleAuthorSearchLimit = 8
	nearDuplicateOverlap   = 0.7
)

// Catalog is the subset of the catalog client the resolver needs.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) []catalog.Document
	ByISBN(ctx context.Context, isbn string) *catalog.Edition
	Work(ctx context.Context, key string) *catalog.Work
}

// CrossRefSource is the optional secondary identity source used for
// cross-language canonicalization. Implementations return "" when no
// confident match exists; the resolver then falls back to weaker keys.
type CrossRefSource interface {
	ResolveByTitleAuthor(ctx context.Context, title, authors string) string
}

type Resolver struct {
	catalog  Catalog
	crossref CrossRefSource // may be nil

	workByISBN catalog.Cache // identifier -> work key
	canonical  catalog.Cache // work key or na-key -> canonical key
	logger     *logrus.Logger
}

func NewResolver(cat Catalog, crossref CrossRefSource, logger *logrus.Logger) *Resolver {
	return &Resolver{
		catalog:    cat,
		crossref:   crossref,
		workByISBN: catalog.NewMemoryCache(0, 0),
		canonical:  catalog.NewMemoryCache(0, 0),
		logger:     logger,
	}
}

// WorkKeyByIdentifier resolves an ISBN-like identifier to the catalog's
// stable work key, memoized per identifier. Returns "" on any failure.
func (r *Resolver) WorkKeyByIdentifier(ctx context.Context, identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ""
	}

	if cached, ok := r.workByISBN.Get(identifier); ok {
		if key, ok := cached.(string); ok {
			return key
		}
	}

	key := ""
	if edition := r.catalog.ByISBN(ctx, identifier); edition != nil {
		key = edition.WorkKey()
	}

	// Unresolved identifiers are memoized too so repeat misses stay cheap.
	r.workByISBN.Set(identifier, key)
	return key
}

// WorkKeyByTitleAuthor searches the catalog with the combined title+author
// text and scans for a document matching both author and title. When no
// strict match exists it falls back to the first result carrying a work
// key, trading precision for recall.
func (r *Resolver) WorkKeyByTitleAuthor(ctx context.Context, title, authors string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}

	query := title
	primary := textnorm.PrimaryAuthor(authors)
	if primary != "" {
		query += " " + primary
	}

	docs := r.catalog.Search(ctx, query, titleAuthorSearchLimit)
	if len(docs) == 0 {
		return ""
	}

	wantAuthor := textnorm.Normalize(primary)
	wantTokenKey := textnorm.TitleTokenKey(title)

	fallback := ""
	for _, doc := range docs {
		if doc.WorkKey == "" {
			continue
		}
		if fallback == "" {
			fallback = doc.WorkKey
		}

		if wantAuthor != "" && !docHasAuthor(&doc, wantAuthor) {
			continue
		}
		if textnorm.TitleTokenKey(doc.Title) == wantTokenKey || TitleNearDuplicate(doc.Title, title) {
			return doc.WorkKey
		}
	}

	return fallback
}

// CanonicalKey derives the strongest available same-work tag, in order:
// cross-reference ID resolved via the work record, cross-reference ID
// resolved from title+author, the catalog work key, and finally the
// normalized author|title fallback.
func (r *Resolver) CanonicalKey(ctx context.Context, workKey, title, authors string) string {
	cacheKey := workKey
	if cacheKey == "" {
		cacheKey = fallbackKey(title, authors)
	}
	if cached, ok := r.canonical.Get(cacheKey); ok {
		if key, ok := cached.(string); ok && key != "" {
			return key
		}
	}

	key := r.resolveCanonical(ctx, workKey, title, authors)
	r.canonical.Set(cacheKey, key)
	return key
}

func (r *Resolver) resolveCanonical(ctx context.Context, workKey, title, authors string) string {
	if workKey != "" {
		if work := r.catalog.Work(ctx, workKey); work != nil {
			if id := work.ExternalCanonicalID(); id != "" {
				return "wd:" + id
			}
			// The work record's own title disambiguates better than the
			// edition title we were handed (often a translated variant).
			if r.crossref != nil && work.Title != "" {
				if id := r.crossref.ResolveByTitleAuthor(ctx, work.Title, authors); id != "" {
					return "wd:" + id
				}
			}
		}
	}

	if r.crossref != nil && title != "" {
		if id := r.crossref.ResolveByTitleAuthor(ctx, title, authors); id != "" {
			return "wd:" + id
		}
	}

	if workKey != "" {
		return "ol:" + strings.TrimPrefix(workKey, "/works/")
	}

	return fallbackKey(title, authors)
}

// CandidateKeys returns every plausible preference key for a work, from
// strongest to weakest. Preference signals recorded at different times may
// carry different key strengths, so matching is set-intersection based.
func CandidateKeys(canonicalKey, workKey, title, authors, identifier string) []string {
	keys := make([]string, 0, 4)
	if canonicalKey != "" {
		keys = append(keys, canonicalKey)
	}
	if workKey != "" {
		if olKey := "ol:" + strings.TrimPrefix(workKey, "/works/"); olKey != canonicalKey {
			keys = append(keys, olKey)
		}
	}
	if naKey := fallbackKey(title, authors); naKey != "" && naKey != canonicalKey {
		keys = append(keys, naKey)
	}
	if identifier != "" {
		keys = append(keys, "isbn:"+strings.TrimSpace(identifier))
	}
	return keys
}

func fallbackKey(title, authors string) string {
	tokenKey := textnorm.TitleTokenKey(title)
	if tokenKey == "" {
		return ""
	}
	return "na:" + textnorm.PrimaryAuthorKey(authors) + "|" + tokenKey
}

// TitleNearDuplicate reports whether two titles name the same work modulo
// subtitles, punctuation, and minor variants: token-key equality, token-key
// containment, or token-set overlap of at least 0.7 against the larger set.
func TitleNearDuplicate(a, b string) bool {
	keyA := textnorm.TitleTokenKey(a)
	keyB := textnorm.TitleTokenKey(b)
	if keyA == "" || keyB == "" {
		return false
	}
	if keyA == keyB {
		return true
	}

	tokensA := strings.Fields(keyA)
	tokensB := strings.Fields(keyB)
	setA := make(map[string]struct{}, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = struct{}{}
	}
	overlap := 0
	for _, tok := range tokensB {
		if _, ok := setA[tok]; ok {
			overlap++
		}
	}

	// One title fully contained in the other covers the subtitle case
	// ("Dune" vs "Dune: Deluxe Edition"). Matching whole tokens, not raw
	// substrings, keeps "dune" from matching inside "dunes".
	shorter := len(setA)
	if len(tokensB) < shorter {
		shorter = len(tokensB)
	}
	if shorter > 0 && overlap == shorter {
		return true
	}

	max := len(setA)
	if len(tokensB) > max {
		max = len(tokensB)
	}
	if max == 0 {
		return false
	}
	return float64(overlap)/float64(max) >= nearDuplicateOverlap
}

func docHasAuthor(doc *catalog.Document, wantAuthor string) bool {
	for _, author := range doc.Authors {
		normalized := textnorm.Normalize(author)
		if normalized == wantAuthor || strings.Contains(normalized, wantAuthor) || strings.Contains(wantAuthor, normalized) {
			return true
		}
	}
	return false
}
