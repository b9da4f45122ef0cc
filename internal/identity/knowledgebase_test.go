package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKnowledgeBase(t *testing.T, handler http.HandlerFunc) *KnowledgeBase {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewKnowledgeBase(KBOptions{
		BaseURL:        server.URL,
		RequestsPerSec: 1000,
		Burst:          100,
	}, testLogger())
}

func writeHits(t *testing.T, w http.ResponseWriter, hits []entityHit) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(kbSearchResponse{Search: hits}))
}

func TestKnowledgeBaseResolveByTitleAuthor(t *testing.T) {
	kb := newTestKnowledgeBase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wbsearchentities", r.URL.Query().Get("action"))
		assert.Equal(t, "The Name of the Wind", r.URL.Query().Get("search"))

		writeHits(t, w, []entityHit{
			{ID: "Q999", Label: "The Name of the Wind Companion", Description: "reference book"},
			{ID: "Q1000", Label: "The Name of the Wind", Description: "2007 fantasy novel by Patrick Rothfuss"},
		})
	})

	id := kb.ResolveByTitleAuthor(context.Background(), "The Name of the Wind", "Patrick Rothfuss")
	assert.Equal(t, "Q1000", id)
}

func TestKnowledgeBaseRejectsWeakMatches(t *testing.T) {
	kb := newTestKnowledgeBase(t, func(w http.ResponseWriter, r *http.Request) {
		writeHits(t, w, []entityHit{
			{ID: "Q1", Label: "Something Entirely Different", Description: "a painting"},
		})
	})

	assert.Empty(t, kb.ResolveByTitleAuthor(context.Background(), "The Name of the Wind", "Patrick Rothfuss"))
}

func TestKnowledgeBaseCachesResolutions(t *testing.T) {
	var calls int64
	kb := newTestKnowledgeBase(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		writeHits(t, w, []entityHit{
			{ID: "Q42", Label: "Dune", Description: "1965 novel by Frank Herbert"},
		})
	})

	ctx := context.Background()
	assert.Equal(t, "Q42", kb.ResolveByTitleAuthor(ctx, "Dune", "Frank Herbert"))
	first := atomic.LoadInt64(&calls)
	require.Greater(t, first, int64(0))

	assert.Equal(t, "Q42", kb.ResolveByTitleAuthor(ctx, "Dune", "Frank Herbert"))
	assert.Equal(t, first, atomic.LoadInt64(&calls))
}

func TestKnowledgeBaseAbsorbsServerFailures(t *testing.T) {
	kb := newTestKnowledgeBase(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})

	assert.Empty(t, kb.ResolveByTitleAuthor(context.Background(), "Dune", "Frank Herbert"))
	assert.Empty(t, kb.ResolveByTitleAuthor(context.Background(), "", "Frank Herbert"))
}

func TestScoreEntityHit(t *testing.T) {
	tests := []struct {
		name  string
		hit   entityHit
		title string
		want  float64
	}{
		{
			name:  "exact label with author in description",
			hit:   entityHit{Label: "Dune", Description: "1965 novel by Frank Herbert"},
			title: "Dune",
			want:  kbExactScore + kbAuthorBonus,
		},
		{
			name:  "exact label without author",
			hit:   entityHit{Label: "Dune", Description: "a desert planet"},
			title: "Dune",
			want:  kbExactScore,
		},
		{
			name:  "near duplicate label",
			hit:   entityHit{Label: "Dune: Deluxe Edition", Description: "novel by Frank Herbert"},
			title: "Dune",
			want:  kbContainmentScore + kbAuthorBonus,
		},
		{
			name:  "unrelated label",
			hit:   entityHit{Label: "Sand Dunes of Namibia", Description: "novel by Frank Herbert"},
			title: "Dune",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreEntityHit(&tt.hit, tt.title, "Frank Herbert"), 1e-9)
		})
	}
}
