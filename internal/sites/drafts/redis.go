package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/auth"
	"github.com/primebarber/site-backend/internal/logging"
	"github.com/primebarber/site-backend/internal/sites/domain"
)

const keyPrefix = "drafts:" // drafts:{device}:site:{id} and drafts:{device}:ids

// RedisStore keeps drafts without TTL. The index is a sorted set scored by
// lastSaved so All can return newest first.
type RedisStore struct {
	client *redis.Client
	device string
}

// NewRedisStore returns a provider; call ForDevice to get a scoped store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, device: auth.DefaultDeviceID}
}

func (r *RedisStore) ForDevice(deviceID string) Store {
	if deviceID == "" {
		deviceID = auth.DefaultDeviceID
	}
	return &RedisStore{client: r.client, device: deviceID}
}

func (r *RedisStore) Put(ctx context.Context, site domain.SiteInstance) error {
	if site.ID == "" {
		return domain.ErrInvalidSiteID
	}

	body, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.siteKey(site.ID), body, 0)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(site.LastSaved), Member: site.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.SiteInstance, error) {
	data, err := r.client.Get(ctx, r.siteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	var site domain.SiteInstance
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &site, nil
}

func (r *RedisStore) All(ctx context.Context) ([]domain.SiteInstance, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.siteKey(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load drafts: %w", err)
	}

	out := make([]domain.SiteInstance, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry without a body; skip it
			continue
		}
		var site domain.SiteInstance
		if err := json.Unmarshal([]byte(s), &site); err != nil {
			// Get still reports the broken entry
			logging.From(ctx).Warnw("skipping unreadable draft", "site_id", ids[i], "device", r.device, zap.Error(err))
			continue
		}
		out = append(out, site)
	}
	return out, nil
}

func (r *RedisStore) siteKey(id string) string {
	return fmt.Sprintf("%s%s:site:%s", keyPrefix, r.device, id)
}

func (r *RedisStore) indexKey() string {
	return fmt.Sprintf("%s%s:ids", keyPrefix, r.device)
}
