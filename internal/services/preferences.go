package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/internal/identity"
	"github.com/quillshelf/quillshelf/internal/messaging"
	"github.com/quillshelf/quillshelf/pkg/models"
)

const preferenceOpTimeout = 5 * time.Second

// eventPublisher is the messaging surface the preference service needs.
type eventPublisher interface {
	PublishPreferenceEvent(event messaging.PreferenceEvent) error
}

// PreferenceService stores explicit like/dislike signals in Redis and
// streams each action to Kafka. Signals are keyed by the strongest
// canonical key resolvable at record time; every plausible weaker key is
// stored alongside so later recommend-time matching survives resolution
// improving over time.
type PreferenceService struct {
	redisClient *redis.Client
	resolver    workResolver
	bus         eventPublisher // may be nil
	logger      *logrus.Logger
}

func NewPreferenceService(redisClient *redis.Client, resolver workResolver, bus eventPublisher, logger *logrus.Logger) *PreferenceService {
	return &PreferenceService{
		redisClient: redisClient,
		resolver:    resolver,
		bus:         bus,
		logger:      logger,
	}
}

func likedSetKey(userID uuid.UUID) string    { return fmt.Sprintf("prefs:%s:liked", userID) }
func dislikedSetKey(userID uuid.UUID) string { return fmt.Sprintf("prefs:%s:disliked", userID) }

// Record stores one like/dislike action. The signal lands in the matching
// Redis set under every plausible key and is removed from the opposite set
// so flipping an opinion never leaves both signals active.
func (s *PreferenceService) Record(ctx context.Context, userID uuid.UUID, req *models.PreferenceRequest) (*models.PreferenceSignal, error) {
	workKey := req.WorkKey
	if workKey == "" && req.Identifier != "" {
		workKey = s.resolver.WorkKeyByIdentifier(ctx, req.Identifier)
	}
	if workKey == "" {
		workKey = s.resolver.WorkKeyByTitleAuthor(ctx, req.Title, req.Authors)
	}
	canonical := s.resolver.CanonicalKey(ctx, workKey, req.Title, req.Authors)

	keys := identity.CandidateKeys(canonical, workKey, req.Title, req.Authors, req.Identifier)
	if len(keys) == 0 {
		return nil, fmt.Errorf("could not derive any preference key")
	}

	targetSet := likedSetKey(userID)
	oppositeSet := dislikedSetKey(userID)
	if req.Action == models.PreferenceDislike {
		targetSet, oppositeSet = oppositeSet, targetSet
	}

	members := make([]interface{}, len(keys))
	for i, key := range keys {
		members[i] = key
	}

	opCtx, cancel := context.WithTimeout(ctx, preferenceOpTimeout)
	defer cancel()

	pipe := s.redisClient.Pipeline()
	pipe.SAdd(opCtx, targetSet, members...)
	pipe.SRem(opCtx, oppositeSet, members...)
	if _, err := pipe.Exec(opCtx); err != nil {
		return nil, fmt.Errorf("failed to store preference signal: %w", err)
	}

	signal := &models.PreferenceSignal{
		UserID:     userID,
		Key:        keys[0],
		Action:     req.Action,
		Title:      req.Title,
		Authors:    req.Authors,
		Identifier: req.Identifier,
		RecordedAt: time.Now().UTC(),
	}

	if s.bus != nil {
		event := messaging.PreferenceEvent{
			UserID:     userID,
			Action:     string(req.Action),
			Key:        signal.Key,
			Title:      req.Title,
			Authors:    req.Authors,
			Identifier: req.Identifier,
		}
		if err := s.bus.PublishPreferenceEvent(event); err != nil {
			// The signal is already stored; analytics can miss an event.
			s.logger.WithError(err).WithField("user_id", userID).Warn("Preference event not published")
		}
	}

	return signal, nil
}

// LoadSignals fetches both key sets for a user. Any Redis failure degrades
// to empty signals so the recommendation pipeline keeps working.
func (s *PreferenceService) LoadSignals(ctx context.Context, userID uuid.UUID) *models.PreferenceSignals {
	signals := &models.PreferenceSignals{
		LikedKeys:    make(map[string]struct{}),
		DislikedKeys: make(map[string]struct{}),
	}

	opCtx, cancel := context.WithTimeout(ctx, preferenceOpTimeout)
	defer cancel()

	liked, err := s.redisClient.SMembers(opCtx, likedSetKey(userID)).Result()
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load liked signals")
	}
	for _, key := range liked {
		signals.LikedKeys[key] = struct{}{}
	}

	disliked, err := s.redisClient.SMembers(opCtx, dislikedSetKey(userID)).Result()
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load disliked signals")
	}
	for _, key := range disliked {
		signals.DislikedKeys[key] = struct{}{}
	}

	return signals
}
