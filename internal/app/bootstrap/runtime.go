// Package bootstrap wires optional infrastructure from configuration.
// Builders return nil when a dependency is not configured so callers
// can degrade gracefully instead of failing startup.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/brightsmile/dental-scheduling/internal/audit"
	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/internal/practice"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildPracticeStore returns the practice settings store when Redis is
// available. Without Redis the handlers fall back to defaults.
func BuildPracticeStore(redisClient *redis.Client) *practice.Store {
	if redisClient == nil {
		return nil
	}
	return practice.NewStore(redisClient)
}

// BuildAuditService wires the audit trail when a database is available.
func BuildAuditService(sqlDB *sql.DB, logger *logging.Logger) *audit.Service {
	if sqlDB == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return audit.NewService(sqlDB, logger)
}
