package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

const photoStatsScope = "photo-stats"

type cacheStore interface {
	Load(ctx context.Context, key string, dest interface{}) error
	Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Generation(ctx context.Context, scope string) (int64, error)
	Advance(ctx context.Context, scope string) (int64, error)
}

// CacheService memoizes photo statistics panels. Cache failures are logged and treated as misses so the
// statistics endpoints keep answering from Postgres when Redis is down.
type CacheService struct {
	store   cacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

func NewCacheService(store cacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// LookupPhotoPanel returns the cached panel for the window, if any, and the key a freshly computed panel
// belongs under. The key pins the generation seen here, so a panel computed while reports change is
// stored under an already orphaned key and never served.
func (s *CacheService) LookupPhotoPanel(ctx context.Context, from, to time.Time, clientID, employeeID string) (*models.PhotoStatsPanel, string) {
	if !s.Enabled() {
		return nil, ""
	}
	gen, err := s.store.Generation(ctx, photoStatsScope)
	if err != nil {
		s.logger.Warn("photo stats cache unavailable", zap.Error(err))
		return nil, ""
	}
	key := fmt.Sprintf("%s:%d:%s:%s:%s:%s", photoStatsScope, gen, from.Format("20060102"), to.Format("20060102"), clientID, employeeID)

	start := time.Now()
	var panel models.PhotoStatsPanel
	err = s.store.Load(ctx, key, &panel)
	switch {
	case err == nil:
		s.metrics.ObserveCache(CacheHit, time.Since(start))
	case errors.Is(err, appErrors.ErrCacheMiss):
		s.metrics.ObserveCache(CacheMiss, time.Since(start))
		return nil, key
	default:
		s.metrics.ObserveCache(CacheError, time.Since(start))
		s.logger.Warn("photo stats cache read failed", zap.String("key", key), zap.Error(err))
		return nil, key
	}
	return &panel, key
}

func (s *CacheService) StorePhotoPanel(ctx context.Context, key string, panel *models.PhotoStatsPanel) {
	if !s.Enabled() || key == "" {
		return
	}
	start := time.Now()
	err := s.store.Store(ctx, key, panel, s.ttl)
	if err != nil {
		s.metrics.ObserveCache(CacheError, time.Since(start))
		s.logger.Warn("photo stats cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.ObserveCache(CacheWrite, time.Since(start))
}

// InvalidatePhotoStats retires every cached photo statistics panel at once.
func (s *CacheService) InvalidatePhotoStats(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if _, err := s.store.Advance(ctx, photoStatsScope); err != nil {
		s.logger.Warn("photo stats cache invalidation failed", zap.Error(err))
	}
}
