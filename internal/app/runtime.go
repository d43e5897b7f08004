// Package app opens the workspace and wires the engine to its storage and
// notification backends.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/db"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/migrate"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/notify"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

// Runtime is an opened workspace. Close releases everything Open acquired.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Settings  *config.Settings
	Engine    engine.Engine
	Logger    *slog.Logger
	// Minio is set when a bucket endpoint is configured.
	Minio *storage.MinioStore
	// Redis is set when the notification queue is enabled.
	Redis *redis.Client

	closers []func() error
}

// Open migrates the workspace database and loads hub.yml, falling back to
// the built-in defaults when the file does not exist.
func Open(ctx context.Context, workspace string, s *config.Settings, logger *slog.Logger) (*Runtime, error) {
	if s == nil {
		s = &config.Settings{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Workspace: workspace, DB: conn, Settings: s, Logger: logger}
	rt.closers = append(rt.closers, conn.Close)
	if _, err := migrate.Apply(ctx, conn); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("config: %w", err)
	}
	rt.Config = cfg

	eng := engine.New(conn, cfg)
	eng.Logger = logger
	if s.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  s.MinioEndpoint,
			AccessKey: s.MinioAccessKey,
			SecretKey: s.MinioSecretKey,
			Bucket:    s.MinioBucket,
			UseSSL:    s.MinioUseSSL,
			PublicURL: s.MinioPublicURL,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Minio = store
		eng.Store = store
	}
	if s.QueueEnabled() {
		rt.Redis = redis.NewClient(&redis.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
		rt.closers = append(rt.closers, rt.Redis.Close)
		q := notify.NewQueue(RedisOpt(s))
		rt.closers = append(rt.closers, q.Close)
		eng.Notifier = q
	} else {
		eng.Notifier = notify.Direct{Mailer: notify.LogMailer{Logger: logger}, From: s.MailFrom}
	}
	rt.Engine = eng
	return rt, nil
}

// RedisOpt is the asynq connection for the notification queue.
func RedisOpt(s *config.Settings) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB}
}

// Ready reports whether the database and, when configured, Redis answer.
func (rt *Runtime) Ready(ctx context.Context) error {
	if err := rt.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
