package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/config"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

var errStaleVersion = errors.New("subject changed since read")

// RedisCache keeps the per-subject availability projection.
type RedisCache struct {
	client    *redis.Client
	statusTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, statusTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		statusTTL: statusTTL,
	}
}

// GetStatus returns the cached projection, nil on a miss, together with the
// subject version it must be filled at.
func (c *RedisCache) GetStatus(ctx context.Context, subjectID string) ([]domain.SlotStatus, int64, error) {
	var statusCmd, versionCmd *redis.StringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		statusCmd = pipe.Get(ctx, statusKey(subjectID))
		versionCmd = pipe.Get(ctx, versionKey(subjectID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	version, err := versionCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}
	data, err := statusCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, nil
	}
	if err != nil {
		return nil, 0, err
	}

	statuses := make([]domain.SlotStatus, 0)
	if err := json.Unmarshal(data, &statuses); err != nil {
		return nil, 0, err
	}
	return statuses, version, nil
}

// SetStatus stores statuses only while the subject is still at version.
// It reports false when a write got there first.
func (c *RedisCache) SetStatus(ctx context.Context, subjectID string, version int64, statuses []domain.SlotStatus) (bool, error) {
	if statuses == nil {
		statuses = []domain.SlotStatus{}
	}
	payload, err := json.Marshal(statuses)
	if err != nil {
		return false, err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(subjectID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statusKey(subjectID), payload, c.statusTTL)
			return nil
		})
		return err
	}, versionKey(subjectID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleVersion), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

// InvalidateSubject bumps the subject version and drops the projection.
func (c *RedisCache) InvalidateSubject(ctx context.Context, subjectID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(subjectID))
		pipe.Del(ctx, statusKey(subjectID))
		return nil
	})
	return err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func statusKey(subjectID string) string {
	return fmt.Sprintf("cache:inventory:status:%s", subjectID)
}

func versionKey(subjectID string) string {
	return fmt.Sprintf("cache:inventory:version:%s", subjectID)
}
