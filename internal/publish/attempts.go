package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix     = "publish:attempt:" // publish:attempt:{attempt_id}
	attemptChannelPrefix = "publish:events:"  // publish:events:{attempt_id}
	attemptTTL           = 24 * time.Hour
)

var ErrAttemptNotFound = errors.New("publish attempt not found")

type Phase string

const (
	PhasePublishing Phase = "publishing"
	PhaseCountdown  Phase = "countdown"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

func (p Phase) Terminal() bool { return p == PhaseSuccess || p == PhaseError }

// Attempt is the observable state of one publish run.
type Attempt struct {
	ID        string            `json:"id"`
	Flow      Flow              `json:"flow"`
	SiteID    string            `json:"siteId"`
	UserID    string            `json:"userId,omitempty"`
	Phase     Phase             `json:"phase"`
	Remaining int               `json:"remaining"`
	URL       string            `json:"url,omitempty"`
	ImageURLs map[string]string `json:"imageUrls,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// AttemptStore persists attempt snapshots and fans them out to watchers.
type AttemptStore interface {
	Save(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	Watch(ctx context.Context, id string) (<-chan Attempt, func(), error)
}

type RedisAttempts struct {
	client *redis.Client
}

func NewRedisAttempts(client *redis.Client) *RedisAttempts {
	return &RedisAttempts{client: client}
}

// Save overwrites the snapshot and publishes it on the attempt's channel.
func (r *RedisAttempts) Save(ctx context.Context, a Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, attemptKey(a.ID), data, attemptTTL)
	pipe.Publish(ctx, attemptChannel(a.ID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (r *RedisAttempts) Get(ctx context.Context, id string) (Attempt, error) {
	data, err := r.client.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return Attempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return a, nil
}

// Watch subscribes to snapshots published after the call. The returned func
// closes the subscription; the channel is closed when it ends.
func (r *RedisAttempts) Watch(ctx context.Context, id string) (<-chan Attempt, func(), error) {
	sub := r.client.Subscribe(ctx, attemptChannel(id))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe attempt: %w", err)
	}

	out := make(chan Attempt, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var a Attempt
			if err := json.Unmarshal([]byte(msg.Payload), &a); err != nil {
				continue
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}

func attemptKey(id string) string     { return attemptKeyPrefix + id }
func attemptChannel(id string) string { return attemptChannelPrefix + id }
