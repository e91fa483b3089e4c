package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Domenick1991/tourledger/config"
	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:inventory:status:tour-1", statusKey("tour-1"))
	assert.Equal(t, "cache:inventory:version:tour-1", versionKey("tour-1"))
}

func TestRedisCache_Unreachable(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "127.0.0.1:1"}, time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := c.GetStatus(ctx, "tour-1")
	assert.Error(t, err)
	assert.Error(t, c.Ping(ctx))
}

// TEST_REDIS_ADDR points at a scratch redis, e.g. localhost:6379.
func TestRedisCache_FillIsRejectedAfterInvalidate(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	c := NewRedisCache(config.RedisConfig{Addr: addr}, time.Minute)
	defer c.Close()
	ctx := context.Background()

	subject := "tour-" + time.Now().Format("150405.000000000")
	stale := []domain.SlotStatus{{SubjectID: subject, Date: daterange.MustParse("2025-07-01"), SlotsLeft: 10}}

	cached, version, err := c.GetStatus(ctx, subject)
	require.NoError(t, err)
	assert.Nil(t, cached)

	require.NoError(t, c.InvalidateSubject(ctx, subject))
	stored, err := c.SetStatus(ctx, subject, version, stale)
	require.NoError(t, err)
	assert.False(t, stored)

	cached, version, err = c.GetStatus(ctx, subject)
	require.NoError(t, err)
	assert.Nil(t, cached)

	fresh := []domain.SlotStatus{{SubjectID: subject, Date: daterange.MustParse("2025-07-01"), SlotsLeft: 6}}
	stored, err = c.SetStatus(ctx, subject, version, fresh)
	require.NoError(t, err)
	assert.True(t, stored)

	cached, _, err = c.GetStatus(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, fresh, cached)
	require.NoError(t, c.InvalidateSubject(ctx, subject))
}
