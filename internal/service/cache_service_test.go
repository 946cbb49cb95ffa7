package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type memoryCacheStore struct {
	items       map[string][]byte
	generations map[string]int64
	down        bool
}

func (m *memoryCacheStore) Load(ctx context.Context, key string, dest interface{}) error {
	if m.down {
		return errors.New("connection refused")
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheStore) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.items == nil {
		m.items = map[string][]byte{}
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheStore) Generation(ctx context.Context, scope string) (int64, error) {
	if m.down {
		return 0, errors.New("connection refused")
	}
	return m.generations[scope], nil
}

func (m *memoryCacheStore) Advance(ctx context.Context, scope string) (int64, error) {
	if m.generations == nil {
		m.generations = map[string]int64{}
	}
	m.generations[scope]++
	return m.generations[scope], nil
}

func TestCacheServicePhotoPanelRoundTrip(t *testing.T) {
	store := &memoryCacheStore{}
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	ctx := context.Background()
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	panel, key := cache.LookupPhotoPanel(ctx, from, to, "c1", "")
	assert.Nil(t, panel)
	assert.Equal(t, "photo-stats:0:20260501:20260502:c1:", key)

	cache.StorePhotoPanel(ctx, key, &models.PhotoStatsPanel{From: from, To: to, Totals: models.ClientPhotoStats{Reports: 4}})
	panel, _ = cache.LookupPhotoPanel(ctx, from, to, "c1", "")
	require.NotNil(t, panel)
	assert.Equal(t, 4, panel.Totals.Reports)
}

func TestCacheServiceInvalidationOrphansInFlightPanels(t *testing.T) {
	store := &memoryCacheStore{}
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, staleKey := cache.LookupPhotoPanel(ctx, day, day.AddDate(0, 0, 1), "", "")
	cache.InvalidatePhotoStats(ctx)
	cache.StorePhotoPanel(ctx, staleKey, &models.PhotoStatsPanel{Totals: models.ClientPhotoStats{Reports: 1}})

	panel, key := cache.LookupPhotoPanel(ctx, day, day.AddDate(0, 0, 1), "", "")
	assert.Nil(t, panel)
	assert.NotEqual(t, staleKey, key)
}

func TestCacheServiceDegradesToMiss(t *testing.T) {
	cache := NewCacheService(&memoryCacheStore{down: true}, nil, 0, zap.NewNop(), true)
	panel, key := cache.LookupPhotoPanel(context.Background(), time.Now(), time.Now(), "", "")
	assert.Nil(t, panel)
	assert.Empty(t, key)

	var disabled *CacheService
	assert.False(t, disabled.Enabled())
	disabled.InvalidatePhotoStats(context.Background())
	disabled.StorePhotoPanel(context.Background(), "k", &models.PhotoStatsPanel{})
}
