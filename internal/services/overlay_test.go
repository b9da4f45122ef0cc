package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillshelf/quillshelf/pkg/models"
)

func TestPreferenceOverlay_Apply(t *testing.T) {
	overlay := NewPreferenceOverlay(testRecommendConfig())

	signals := &models.PreferenceSignals{
		LikedKeys: map[string]struct{}{
			"wd:Q174596": {},
			"ol:OL52260W": {},
		},
		DislikedKeys: map[string]struct{}{
			"wd:Q4580435": {},
			"isbn:9780000000001": {},
		},
	}

	t.Run("nil signals are a no-op", func(t *testing.T) {
		boost, reason, dropped := overlay.Apply([]string{"wd:Q174596"}, nil)
		assert.Zero(t, boost)
		assert.Nil(t, reason)
		assert.False(t, dropped)
	})

	t.Run("dislike on any key drops the candidate", func(t *testing.T) {
		_, _, dropped := overlay.Apply([]string{"ol:OL999W", "isbn:9780000000001"}, signals)
		assert.True(t, dropped)
	})

	t.Run("dislike wins over like", func(t *testing.T) {
		boost, reason, dropped := overlay.Apply([]string{"wd:Q174596", "wd:Q4580435"}, signals)
		assert.True(t, dropped)
		assert.Zero(t, boost)
		assert.Nil(t, reason)
	})

	t.Run("like on any key boosts with a reason", func(t *testing.T) {
		boost, reason, dropped := overlay.Apply([]string{"na:nobody|nothing", "ol:OL52260W"}, signals)
		assert.False(t, dropped)
		assert.InDelta(t, 8.0, boost, 1e-9)
		require.NotNil(t, reason)
		assert.Equal(t, "preference", reason.Label)
	})

	t.Run("no key match leaves the candidate untouched", func(t *testing.T) {
		boost, reason, dropped := overlay.Apply([]string{"ol:OL1W"}, signals)
		assert.Zero(t, boost)
		assert.Nil(t, reason)
		assert.False(t, dropped)
	})
}
