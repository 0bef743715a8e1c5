package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/visit-service/internal/config"
	"github.com/spec-kit/visit-service/internal/domain"
)

func TestRedisWithoutAddress(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	defer r.Close()

	assert.False(t, r.Reachable())
	assert.EqualError(t, r.Ping(context.Background()), "redis client not configured")
}

func TestNilHandlesReportUnconfigured(t *testing.T) {
	var pg *Postgres
	var r *Redis

	assert.Error(t, pg.Ping(context.Background()))
	assert.Nil(t, pg.PoolHandle())
	assert.False(t, r.Reachable())
	assert.Error(t, NewTxRunner(nil).WithinTx(context.Background(), domain.Session{ActorID: "a", Role: domain.RoleAdmin}, func(context.Context) error { return nil }))
}
