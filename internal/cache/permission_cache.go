package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/logger"
	"authcore/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	globalGenKey = "authz:gen"
	rolePrefix   = "authz:gen:"
)

// PermissionCache keeps permission decisions in Redis, one hash per role.
//
// Invalidation never deletes: it bumps a generation counter (per role, or
// global) that is part of the hash key. A reader that looked up decisions
// under an old generation writes them back under that old key, where nobody
// reads them again; the hash then expires on its TTL.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewPermissionCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{client: client, ttl: ttl, log: logger.OrStandard(log)}
}

// Get returns the cached decision for (roleID, path). On a miss it still
// returns the current version so the caller can Put the fresh decision.
// Redis errors are treated as a miss without a version.
func (c *PermissionCache) Get(ctx context.Context, roleID uuid.UUID, path string) (model.Decision, string, bool) {
	vals, err := c.client.MGet(ctx, globalGenKey, rolePrefix+roleID.String()).Result()
	if err != nil {
		c.log.WithError(err).Warn("permission cache unavailable")
		return "", "", false
	}
	version := hashKey(genValue(vals[0]), roleID, genValue(vals[1]))

	raw, err := c.client.HGet(ctx, version, path).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("permission cache read failed")
			return "", "", false
		}
		return "", version, false
	}

	d := model.Decision(raw)
	if !d.Valid() {
		return "", version, false
	}
	return d, version, true
}

func (c *PermissionCache) Put(ctx context.Context, version string, roleID uuid.UUID, path string, d model.Decision) {
	if version == "" {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, version, path, string(d))
		pipe.Expire(ctx, version, c.ttl)
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("role_id", roleID.String()).Warn("permission cache write failed")
	}
}

func (c *PermissionCache) InvalidateRole(ctx context.Context, roleID uuid.UUID) error {
	return c.client.Incr(ctx, rolePrefix+roleID.String()).Err()
}

func (c *PermissionCache) InvalidateAll(ctx context.Context) error {
	return c.client.Incr(ctx, globalGenKey).Err()
}

func hashKey(global string, roleID uuid.UUID, roleGen string) string {
	return fmt.Sprintf("authz:%s:%s:%s", global, roleID, roleGen)
}

func genValue(v interface{}) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "0"
}
