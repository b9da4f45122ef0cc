package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(Options{
		BaseURL:        server.URL,
		RequestsPerSec: 1000,
		Burst:          1000,
	}, nil, nil, nil, testLogger())
	return client, server
}

func TestClient_Search(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "wizard school", r.URL.Query().Get("q"))
		w.Write([]byte(`{
			"numFound": 2,
			"docs": [
				{"title": "A Wizard of Earthsea", "author_name": ["Ursula K. Le Guin"],
				 "isbn": ["9780140304770"], "subject": ["fantasy", "magic"],
				 "key": "/works/OL45883W", "language": ["eng"], "cover_i": 123},
				{"title": "The Wizard Heir", "author_name": ["Cinda Williams Chima"],
				 "key": "/works/OL55555W"}
			]
		}`))
	}))

	docs := client.Search(context.Background(), "wizard school", 10)
	require.Len(t, docs, 2)
	assert.Equal(t, "A Wizard of Earthsea", docs[0].Title)
	assert.Equal(t, "/works/OL45883W", docs[0].WorkKey)
	assert.Equal(t, "9780140304770", docs[0].PrimaryISBN())
	assert.Contains(t, docs[0].CoverURL(), "123-M.jpg")

	// Second identical query is served from cache.
	docs = client.Search(context.Background(), "wizard school", 10)
	assert.Len(t, docs, 2)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, uint64(1), client.CacheHits())
}

func TestClient_SearchFailuresReturnEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"docs": not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)
			docs := client.Search(context.Background(), "anything", 5)
			assert.Empty(t, docs)
		})
	}
}

func TestClient_ByISBN(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/isbn/9780140304770.json", r.URL.Path)
		w.Write([]byte(`{
			"works": [{"key": "/works/OL45883W"}],
			"description": {"type": "/type/text", "value": "A boy discovers his gift."},
			"subjects": ["fantasy"]
		}`))
	}))

	edition := client.ByISBN(context.Background(), "9780140304770")
	require.NotNil(t, edition)
	assert.Equal(t, "/works/OL45883W", edition.WorkKey())
	assert.Equal(t, "A boy discovers his gift.", edition.Description.String())

	// Memoized.
	edition = client.ByISBN(context.Background(), "9780140304770")
	require.NotNil(t, edition)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_ByISBNEmptyInput(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty identifier")
	}))
	assert.Nil(t, client.ByISBN(context.Background(), "  "))
}

func TestClient_Work(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/OL45883W.json", r.URL.Path)
		w.Write([]byte(`{
			"title": "A Wizard of Earthsea",
			"description": "Plain string description",
			"subjects": ["fantasy", "coming of age"],
			"identifiers": {"wikidata": "Q1060549"}
		}`))
	}))

	// Bare key gets the /works/ prefix added.
	work := client.Work(context.Background(), "OL45883W")
	require.NotNil(t, work)
	assert.Equal(t, "/works/OL45883W", work.Key)
	assert.Equal(t, "Plain string description", work.Description.String())
	assert.Equal(t, "Q1060549", work.ExternalCanonicalID())
}

func TestClient_WorkNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	assert.Nil(t, client.Work(context.Background(), "/works/OL0W"))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"title": "A Wizard of Earthsea"}`))
	}))

	work := client.Work(context.Background(), "OL45883W")
	require.NotNil(t, work)
	assert.Equal(t, "A Wizard of Earthsea", work.Title)
	assert.Equal(t, int64(2), calls.Load())
}

func TestClient_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.Nil(t, client.ByISBN(context.Background(), "9780000000000"))
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_RetriesRateLimitingToExhaustion(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	assert.Nil(t, client.Work(context.Background(), "/works/OL1W"))
	assert.Equal(t, int64(3), calls.Load())
}
