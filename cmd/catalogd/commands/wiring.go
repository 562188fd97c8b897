package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/cache"
	"github.com/tbourn/go-catalog-backend/internal/config"
	"github.com/tbourn/go-catalog-backend/internal/events"
	"github.com/tbourn/go-catalog-backend/internal/repo"
	"github.com/tbourn/go-catalog-backend/internal/services"
)

// openDB connects to the configured store.
func (a *app) openDB() (*gorm.DB, error) {
	dsn := a.cfg.DB.Path
	if a.cfg.DB.Driver == "postgres" {
		dsn = a.cfg.DB.URL
	}
	db, err := repo.Open(a.cfg.DB.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", a.cfg.DB.Driver, err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) authService(db *gorm.DB) *services.AuthService {
	return services.NewAuthService(db, []byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.TokenTTL, a.cfg.Auth.Issuer)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openCache builds the configured product cache. The returned closer is
// never nil. An unreachable Redis degrades to Nop, so every lookup misses and
// reads go to the database.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, io.Closer) {
	switch cfg.Backend {
	case "redis":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r, err := cache.DialRedis(dialCtx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis cache unavailable, serving without cache")
			return cache.Nop{}, nopCloser{}
		}
		return r, r
	case "none":
		return cache.Nop{}, nopCloser{}
	default:
		return cache.NewMemory(), nopCloser{}
	}
}

// openEvents connects the invalidation fan-out. With no AMQP URL the
// publisher is a no-op and the client is nil.
func openEvents(cfg config.AMQPConfig) (events.Publisher, *events.Client, error) {
	if cfg.URL == "" {
		return events.NopPublisher{}, nil, nil
	}
	client, err := events.NewClient(events.Config{URL: cfg.URL, Exchange: cfg.Exchange})
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// purgeLoop drops expired idempotency records and revocations every interval
// until ctx is done.
func purgeLoop(ctx context.Context, db *gorm.DB, auth *services.AuthService, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			purgeOnce(ctx, db, auth, now)
		}
	}
}

func purgeOnce(ctx context.Context, db *gorm.DB, auth *services.AuthService, now time.Time) {
	if n, err := repo.PurgeIdempotency(ctx, db, now); err != nil {
		log.Warn().Err(err).Msg("purge idempotency keys failed")
	} else if n > 0 {
		log.Debug().Int64("rows", n).Msg("purged idempotency keys")
	}
	if n, err := auth.PurgeRevoked(ctx); err != nil {
		log.Warn().Err(err).Msg("purge revoked tokens failed")
	} else if n > 0 {
		log.Debug().Int64("rows", n).Msg("purged revoked tokens")
	}
}
