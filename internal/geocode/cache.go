package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/resqlink/internal/service"
	"github.com/sirupsen/logrus"
)

// CachedGeocoder запоминает найденные адреса в Redis.
// Ошибки Redis не мешают геокодированию, они только пишутся в лог.
type CachedGeocoder struct {
	next        service.Geocoder
	redisClient *redis.Client
	ttl         time.Duration
	logger      *logrus.Logger
}

func NewCachedGeocoder(next service.Geocoder, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedGeocoder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedGeocoder{
		next:        next,
		redisClient: client,
		ttl:         ttl,
		logger:      logger,
	}
}

var _ service.Geocoder = (*CachedGeocoder)(nil)

// cacheKey округляет координаты до пяти знаков, это около метра
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", lat, lng)
}

func (g *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)
	log := g.logger.WithFields(logrus.Fields{"component": "geocoder_cache", "key": key})

	address, err := g.redisClient.Get(ctx, key).Result()
	switch {
	case err == nil:
		log.Debug("Address found in cache")
		return address, nil
	case errors.Is(err, redis.Nil):
	default:
		log.WithError(err).Warn("Failed to read geocoder cache")
	}

	address, err = g.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if err := g.redisClient.Set(ctx, key, address, g.ttl).Err(); err != nil {
		log.WithError(err).Warn("Failed to write geocoder cache")
	}
	return address, nil
}
