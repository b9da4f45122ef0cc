package services

import (
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/catalog"
	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/internal/database"
	"github.com/quillshelf/quillshelf/internal/identity"
	"github.com/quillshelf/quillshelf/internal/messaging"
)

type Services struct {
	Auth        *AuthService
	Health      *HealthService
	RateLimit   *RateLimitService
	MessageBus  *messaging.MessageBus
	Library     *LibraryService
	Preferences *PreferenceService
	Recommender *RecommendationOrchestrator
	Catalog     *catalog.Client
	Resolver    *identity.Resolver
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	authService := NewAuthService(cfg, logger, db.Redis.Hot)
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis.Hot)

	// Event streaming is optional: without brokers the API still serves,
	// it just stops feeding downstream analytics.
	var messageBus *messaging.MessageBus
	if len(cfg.Kafka.Brokers) > 0 {
		bus, err := messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
		messageBus = bus
	} else {
		logger.Warn("No Kafka brokers configured, event publishing disabled")
	}

	catalogClient := catalog.New(catalog.Options{
		BaseURL:        cfg.Catalog.BaseURL,
		UserAgent:      cfg.Catalog.UserAgent,
		Timeout:        cfg.Catalog.Timeout,
		RequestsPerSec: cfg.Catalog.RequestsPerSec,
		Burst:          cfg.Catalog.Burst,
		SearchCacheTTL: cfg.Catalog.SearchCacheTTL,
		SearchCacheMax: cfg.Catalog.SearchCacheMax,
	},
		catalog.NewMemoryCache(cfg.Catalog.SearchCacheMax, cfg.Catalog.SearchCacheTTL),
		catalog.NewMemoryCache(0, 0),
		catalog.NewMemoryCache(0, 0),
		logger,
	)

	// The cross-reference source is a capability, not a dependency: when
	// disabled, canonical keys fall back to work-key and text keys.
	var crossref identity.CrossRefSource
	if cfg.Catalog.CrossRef.Enabled {
		crossref = identity.NewKnowledgeBase(identity.KBOptions{
			BaseURL:        cfg.Catalog.CrossRef.BaseURL,
			Timeout:        cfg.Catalog.CrossRef.Timeout,
			RequestsPerSec: cfg.Catalog.CrossRef.RequestsPerSec,
			Burst:          cfg.Catalog.CrossRef.Burst,
		}, logger)
	}
	resolver := identity.NewResolver(catalogClient, crossref, logger)

	libraryService := NewLibraryService(db.PG, logger)
	preferenceService := NewPreferenceService(db.Redis.Warm, resolver, messageBusOrNil(messageBus), logger)

	profileBuilder := NewProfileBuilder(&cfg.Recommend)
	scorer := NewCandidateScorer(&cfg.Recommend)
	overlay := NewPreferenceOverlay(&cfg.Recommend)
	dedupEngine := NewDedupEngine(resolver, overlay, &cfg.Recommend, logger)

	recommender := NewRecommendationOrchestrator(
		catalogClient, resolver, profileBuilder, scorer, dedupEngine,
		preferenceService, &cfg.Recommend, logger,
	)

	return &Services{
		Auth:        authService,
		Health:      healthService,
		RateLimit:   rateLimitService,
		MessageBus:  messageBus,
		Library:     libraryService,
		Preferences: preferenceService,
		Recommender: recommender,
		Catalog:     catalogClient,
		Resolver:    resolver,
	}, nil
}

// messageBusOrNil keeps a typed-nil *MessageBus from sneaking into the
// eventPublisher interface as a non-nil value.
func messageBusOrNil(bus *messaging.MessageBus) eventPublisher {
	if bus == nil {
		return nil
	}
	return bus
}
