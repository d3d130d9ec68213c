// Package bootstrap connects the external stores a process needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hearth/internal/cache"
	"hearth/internal/config"
	"hearth/internal/database"
	"hearth/internal/events"
	"hearth/internal/featureflags"
	"hearth/internal/middleware"
	"hearth/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Runtime holds the connections shared by the server and the tools.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Mongo and MongoDB are nil unless CHAT_STORE=mongo.
	Mongo     *mongo.Client
	MongoDB   *mongo.Database
	Publisher events.Publisher
}

// Options control runtime initialization behavior.
type Options struct {
	// SkipPublisher leaves the runtime with a noop publisher.
	SkipPublisher bool
}

// InitRuntime connects to the database, Redis, MongoDB (when chats are
// stored there) and the event broker.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{DB: db}

	// Redis is optional; without it caching and rate limiting degrade.
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("continuing without redis", slog.String("error", err.Error()))
	}
	rt.Redis = rdb

	if cfg.ChatStore == config.ChatStoreMongo {
		client, mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Mongo, rt.MongoDB = client, mdb
		if err := repository.EnsureMongoIndexes(ctx, mdb); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("create mongo indexes: %w", err)
		}
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	switch {
	case opts.SkipPublisher:
		rt.Publisher = events.NewNoop("skipped")
	case !flags.EnabledOr(featureflags.FlagEventPublishing, 0, true):
		rt.Publisher = events.NewNoop("disabled by feature flag")
	default:
		rt.Publisher = events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	}

	middleware.Logger.Info("runtime initialized",
		slog.String("chat_store", cfg.ChatStore),
		slog.String("active_chat_store", cfg.ActiveChatStore),
		slog.String("events", events.Mode(rt.Publisher)),
		slog.Bool("redis", rt.Redis != nil),
	)
	return rt, nil
}

// Close releases every connection the runtime opened.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Publisher != nil {
		errs = append(errs, rt.Publisher.Close())
	}
	errs = append(errs, database.DisconnectMongo(rt.Mongo))
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
