package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/resqlink/internal/models"
	"github.com/shenikar/resqlink/internal/service"
)

const incidentCacheKeyPrefix = "incident:"

// tombstoneVersion больше любой версии записи, надгробие блокирует кеширование до истечения TTL.
// 2^53-1 точно представимо в числах Lua.
const tombstoneVersion int64 = 1<<53 - 1

// Запись кеша - hash с полями v (версия, UpdatedAt в микросекундах) и data (JSON).
// Надгробие содержит только v.
var setIfNewerScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var tombstoneScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	redis.call('DEL', key)
	redis.call('HSET', key, 'v', ARGV[1])
	redis.call('PEXPIRE', key, ARGV[2])
end
return #KEYS
`)

// RedisIncidentCache хранит карточки инцидентов в Redis.
// Set не перезаписывает более новую версию, поэтому чтение, начатое до изменения,
// не вернет в кеш устаревшую карточку.
type RedisIncidentCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisIncidentCache(client *redis.Client, ttl time.Duration) service.IncidentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisIncidentCache{
		redisClient: client,
		ttl:         ttl,
	}
}

func incidentCacheKey(id uuid.UUID) string {
	return incidentCacheKeyPrefix + id.String()
}

func incidentVersion(incident *models.Incident) int64 {
	return incident.UpdatedAt.UnixMicro()
}

// Get пытается получить инцидент из Redis, при промахе и на надгробии возвращает nil, nil
func (c *RedisIncidentCache) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	val, err := c.redisClient.HGet(ctx, incidentCacheKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// Set сохраняет инцидент, если в кеше нет версии новее или такой же
func (c *RedisIncidentCache) Set(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	err = setIfNewerScript.Run(ctx, c.redisClient,
		[]string{incidentCacheKey(incident.ID)},
		incidentVersion(incident), val, c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// Invalidate заменяет записи надгробиями на время TTL
func (c *RedisIncidentCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = incidentCacheKey(id)
	}
	if err := tombstoneScript.Run(ctx, c.redisClient, keys, tombstoneVersion, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
