package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Auth           *AuthHandler
	Library        *LibraryHandler
	Recommendation *RecommendationHandler
	Preference     *PreferenceHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Auth:           NewAuthHandler(services.Auth, logger),
		Library:        NewLibraryHandler(services.Library, services.MessageBus, logger),
		Recommendation: NewRecommendationHandler(services.Recommender, services.Library, logger),
		Preference:     NewPreferenceHandler(services.Preferences, logger),
	}
}
