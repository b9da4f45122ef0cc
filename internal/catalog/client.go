// Package catalog talks to the external bibliographic catalog. All lookups
// degrade to nil/empty on transport errors, timeouts, or non-success
// statuses; nothing in this package propagates a network failure upward.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound marks a definitive catalog miss; retrying cannot help.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrRateLimited marks a 429 from the catalog.
	ErrRateLimited = errors.New("catalog: rate limited")

	// errTransient wraps transport failures and 5xx statuses, the only
	// classes besides 429 worth retrying.
	errTransient = errors.New("catalog: transient failure")
)

const (
	defaultBaseURL       = "https://openlibrary.org"
	defaultTimeout       = 12 * time.Second
	defaultSearchTTL     = 10 * time.Minute
	defaultSearchEntries = 120
	defaultRPS           = 3.0
	defaultBurst         = 6

	maxAttempts    = 3
	retryBaseDelay = 250 * time.Millisecond

	// Concurrency limits per logical fan-out phase. The catalog is a
	// shared rate-limited resource; unbounded fan-out risks throttling.
	SearchConcurrency = 4
	LookupConcurrency = 8
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	SearchCacheTTL time.Duration
	SearchCacheMax int
	RequestsPerSec float64
	Burst          int
	UserAgent      string
}

type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *logrus.Logger

	searchCache  Cache
	editionCache Cache
	workCache    Cache

	cacheHits atomic.Uint64

	requestsTotal *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	hitsTotal     *prometheus.CounterVec
}

// New creates a rate-limited catalog client. Caches may be nil, in which
// case in-memory defaults are used (bounded TTL cache for searches,
// unbounded memo caches for point lookups).
func New(opts Options, searchCache, editionCache, workCache Cache, logger *logrus.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.SearchCacheTTL == 0 {
		opts.SearchCacheTTL = defaultSearchTTL
	}
	if opts.SearchCacheMax == 0 {
		opts.SearchCacheMax = defaultSearchEntries
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = defaultRPS
	}
	if opts.Burst == 0 {
		opts.Burst = defaultBurst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "quillshelf/1.0"
	}
	if searchCache == nil {
		searchCache = NewMemoryCache(opts.SearchCacheMax, opts.SearchCacheTTL)
	}
	if editionCache == nil {
		editionCache = NewMemoryCache(0, 0)
	}
	if workCache == nil {
		workCache = NewMemoryCache(0, 0)
	}

	c := &Client{
		http:         &http.Client{Timeout: opts.Timeout},
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		userAgent:    opts.UserAgent,
		timeout:      opts.Timeout,
		limiter:      rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		logger:       logger,
		searchCache:  searchCache,
		editionCache: editionCache,
		workCache:    workCache,
	}
	c.registerMetrics()
	return c
}

func (c *Client) registerMetrics() {
	c.requestsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Catalog HTTP requests issued, by operation",
	}, []string{"op"}))
	c.failuresTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_failures_total",
		Help: "Catalog requests that failed or timed out, by operation",
	}, []string{"op"}))
	c.hitsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Catalog lookups served from cache, by operation",
	}, []string{"op"}))
}

// registerCounterVec registers cv, reusing the existing collector when a
// previous client instance already registered it.
func registerCounterVec(cv *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(cv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return cv
}

// CacheHits returns the total number of cache-served lookups since the
// client was created. Callers snapshot it around a request for debug stats.
func (c *Client) CacheHits() uint64 {
	return c.cacheHits.Load()
}

// Search performs a free-text catalog search. Results are cached under the
// fully-qualified query URL. Failures return an empty slice.
func (c *Client) Search(ctx context.Context, query string, limit int) []Document {
	if limit <= 0 {
		limit = 20
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("fields", "title,author_name,isbn,subject,key,first_sentence,language,cover_i")
	searchURL := c.baseURL + "/search.json?" + q.Encode()

	if cached, ok := c.searchCache.Get(searchURL); ok {
		c.cacheHits.Add(1)
		c.hitsTotal.WithLabelValues("search").Inc()
		if docs, ok := cached.([]Document); ok {
			return docs
		}
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "search", searchURL, &resp); err != nil {
		return nil
	}

	c.searchCache.Set(searchURL, resp.Docs)
	return resp.Docs
}

// ByISBN fetches the edition record for one identifier. Returns nil when
// the catalog has no record or the call fails.
func (c *Client) ByISBN(ctx context.Context, isbn string) *Edition {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil
	}

	if cached, ok := c.editionCache.Get(isbn); ok {
		c.cacheHits.Add(1)
		c.hitsTotal.WithLabelValues("edition").Inc()
		if ed, ok := cached.(*Edition); ok {
			return ed
		}
	}

	var edition Edition
	if err := c.getJSON(ctx, "edition", c.baseURL+"/isbn/"+url.PathEscape(isbn)+".json", &edition); err != nil {
		return nil
	}

	c.editionCache.Set(isbn, &edition)
	return &edition
}

// Work fetches a work-level record by its catalog key (with or without the
// "/works/" prefix). Returns nil on failure.
func (c *Client) Work(ctx context.Context, key string) *Work {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if !strings.HasPrefix(key, "/works/") {
		key = "/works/" + key
	}

	if cached, ok := c.workCache.Get(key); ok {
		c.cacheHits.Add(1)
		c.hitsTotal.WithLabelValues("work").Inc()
		if w, ok := cached.(*Work); ok {
			return w
		}
	}

	var work Work
	if err := c.getJSON(ctx, "work", c.baseURL+key+".json", &work); err != nil {
		return nil
	}
	work.Key = key

	c.workCache.Set(key, &work)
	return &work
}

// getJSON issues a GET with up to maxAttempts tries and decodes the body
// into out. Rate limiting (429), 5xx statuses, and transport failures are
// retried with doubling backoff; 404 and malformed bodies are not.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, out interface{}) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			c.logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
			}).Debug("Retrying catalog request")
		}

		err = c.doJSON(ctx, op, rawURL, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errTransient) && !errors.Is(err, ErrRateLimited) {
			return err
		}
	}
	return err
}

// doJSON is one time-boxed attempt.
func (c *Client) doJSON(ctx context.Context, op, rawURL string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.failuresTotal.WithLabelValues(op).Inc()
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.failuresTotal.WithLabelValues(op).Inc()
		c.logger.WithError(err).WithField("url", rawURL).Warn("Failed to build catalog request")
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.requestsTotal.WithLabelValues(op).Inc()

	resp, err := c.http.Do(req)
	if err != nil {
		c.failuresTotal.WithLabelValues(op).Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"op":  op,
			"url": rawURL,
		}).Debug("Catalog request failed")
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		c.failuresTotal.WithLabelValues(op).Inc()
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		c.failuresTotal.WithLabelValues(op).Inc()
		c.logger.WithField("op", op).Debug("Catalog rate limited the request")
		return ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		c.failuresTotal.WithLabelValues(op).Inc()
		c.logger.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
		}).Debug("Catalog returned server error")
		return fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	default:
		c.failuresTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failuresTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("%w: %v", errTransient, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.failuresTotal.WithLabelValues(op).Inc()
		c.logger.WithError(err).WithField("op", op).Debug("Failed to decode catalog response")
		return err
	}

	return nil
}
