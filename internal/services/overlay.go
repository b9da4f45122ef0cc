package services

import (
	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/pkg/models"
)

// PreferenceOverlay applies prior explicit like/dislike signals to a
// candidate. Keys recorded at save-time and resolved at recommend-time may
// differ in strength, so matching is set-intersection over every plausible
// key rather than a single-key comparison.
type PreferenceOverlay struct {
	cfg *config.RecommendConfig
}

func NewPreferenceOverlay(cfg *config.RecommendConfig) *PreferenceOverlay {
	return &PreferenceOverlay{cfg: cfg}
}

// Apply tests the candidate's key set against the stored signals. A
// dislike match drops the candidate outright. A like match returns a score
// boost and a reason to prepend.
func (o *PreferenceOverlay) Apply(keys []string, signals *models.PreferenceSignals) (boost float64, reason *models.Reason, dropped bool) {
	if signals == nil {
		return 0, nil, false
	}

	if models.AnyKey(signals.DislikedKeys, keys) {
		return 0, nil, true
	}

	if models.AnyKey(signals.LikedKeys, keys) {
		return o.cfg.LikeBoost, &models.Reason{
			Label:  "preference",
			Detail: "Matches a book you told us you liked",
		}, false
	}

	return 0, nil, false
}
