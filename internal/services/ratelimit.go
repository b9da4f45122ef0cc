package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/quillshelf/quillshelf/internal/config"
	"github.com/quillshelf/quillshelf/pkg/models"
)

// RateLimitService enforces per-user request budgets with a Redis sliding
// window. When Redis is unreachable it degrades to per-process token
// buckets so abusive clients are still throttled during an outage.
type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		fallback:    make(map[string]*rate.Limiter),
	}
}

func (s *RateLimitService) CheckLimit(userID, userTier string) (*models.RateLimitInfo, error) {
	limit := s.getLimitForTier(userTier)
	window := s.config.Auth.RateLimit.Window

	key := fmt.Sprintf("rate_limit:user:%s", userID)

	now := time.Now()
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()

	// Drop entries that aged out of the window, count what remains,
	// then record this request.
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"user_tier": userTier,
		}).Warn("Rate limit store unavailable, using local token bucket")
		return s.localLimit(userID, limit, window, now), nil
	}

	currentCount := int(countCmd.Val())
	remaining := limit - currentCount
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

func (s *RateLimitService) IsAllowed(userID, userTier string) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(userID, userTier)
	if err != nil {
		return false, nil, err
	}

	allowed := info.Remaining > 0
	return allowed, info, nil
}

// localLimit consumes from a per-user token bucket sized to the tier's
// window budget. Buckets are per process, so a multi-replica deployment
// admits up to replicas×limit during an outage; that still beats
// admitting everything.
func (s *RateLimitService) localLimit(userID string, limit int, window time.Duration, now time.Time) *models.RateLimitInfo {
	s.mu.Lock()
	limiter, ok := s.fallback[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
		s.fallback[userID] = limiter
	}
	s.mu.Unlock()

	info := &models.RateLimitInfo{
		Limit:     limit,
		ResetTime: now.Add(window).Unix(),
	}

	if !limiter.Allow() {
		return info
	}

	remaining := int(limiter.Tokens()) + 1
	if remaining > limit {
		remaining = limit
	}
	info.Remaining = remaining
	return info
}

func (s *RateLimitService) getLimitForTier(userTier string) int {
	switch userTier {
	case "premium":
		return s.config.Auth.RateLimit.Premium
	default:
		return s.config.Auth.RateLimit.Default
	}
}
