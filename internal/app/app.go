// Package app wires the stores, engines and the importer shared by the
// actionables binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hive-corporation/actionables/internal/adapter/exporter"
	"github.com/hive-corporation/actionables/internal/adapter/factgraph"
	"github.com/hive-corporation/actionables/internal/adapter/lock"
	"github.com/hive-corporation/actionables/internal/adapter/repository"
	"github.com/hive-corporation/actionables/internal/config"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/importer"
	"github.com/hive-corporation/actionables/internal/core/outdating"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/registry"
	"github.com/hive-corporation/actionables/internal/core/status"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"github.com/hive-corporation/actionables/internal/metrics"
	"github.com/hive-corporation/actionables/internal/platform/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoadConfig reads the optional .env file and the YAML config, validates
// it and builds the logger. An empty path uses the defaults.
func LoadConfig(path string) (*config.Config, *zap.Logger, error) {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(exporter.Builtins().Names()); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// App holds the wired components.
type App struct {
	Config *config.Config
	Log    *zap.Logger

	DB    *pgxpool.Pool
	Store *repository.PostgresStore
	// Tx is Store guarded by the registries; every write goes through it.
	Tx    ports.Store
	Facts *factgraph.Client
	Redis *redis.Client
	Lock  ports.JobLock

	Registries *registry.Registries
	Status     *status.Engine
	Tags       *tagging.Engine
	Sweeper    *outdating.Sweeper
	Importer   *importer.Importer
}

// Open connects to PostgreSQL, neo4j and, when enabled, redis, then builds
// the engines on top of them.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.Metrics.Enabled {
		metrics.InitMetrics()
	}

	a := &App{Config: cfg, Log: log}
	if err := a.openStores(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	patterns, err := cfg.Import.CompileContextPatterns()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	exporters, err := exporter.Builtins().Select(cfg.Import.Exporters)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	matcher := tagging.NewContextMatcher(patterns...)
	a.Registries = registry.NewRegistries(matcher.TypeOf, log)
	a.Tx = a.Registries.Guard(a.Store)
	a.Status = status.NewEngine(nil, log)
	a.Tags = tagging.NewEngine(a.Facts, a.Registries, a.Status, matcher, log)
	a.Sweeper = outdating.NewSweeper(a.Facts, a.Facts, a.Tags, cfg.Import.OutdatedTag, log)
	a.Importer = importer.New(a.Tx, a.Facts, a.Registries, a.Status, a.Tags, a.Sweeper, importer.Options{
		ReportTypes:        cfg.Import.ReportTypes,
		Exporters:          exporters,
		SystemUser:         cfg.Import.SystemUser,
		DefaultOrigin:      domain.ParseOrigin(cfg.Import.DefaultOrigin),
		DefaultProcessing:  domain.ParseProcessing(cfg.Import.DefaultProcessing),
		OutdateAfterImport: cfg.Import.OutdateAfterImport,
	}, log)
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	dsn := config.Secret(a.Config.Database.DSNEnv)
	if dsn == "" {
		return fmt.Errorf("database: %s is not set", a.Config.Database.DSNEnv)
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("database: parse dsn: %w", err)
	}
	if a.Config.Database.MaxConns > 0 {
		pc.MaxConns = a.Config.Database.MaxConns
	}
	a.DB, err = pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return fmt.Errorf("database: connect: %w", err)
	}
	a.Store = repository.NewPostgresStore(a.DB)
	if a.Config.Database.Migrate {
		if err := a.Store.Migrate(ctx); err != nil {
			return err
		}
	}
	a.Log.Info("database connected", zap.Int32("max_conns", pc.MaxConns))

	a.Facts, err = factgraph.Open(ctx, a.Config.Neo4j, a.Log)
	if err != nil {
		return err
	}
	a.Facts.EnsureSchema(ctx)
	a.Log.Info("fact graph connected", zap.String("uri", a.Config.Neo4j.URI))

	if !a.Config.Redis.Enabled {
		a.Log.Warn("redis disabled, job lock is process local")
		a.Lock = lock.NewLocalLock()
		return nil
	}
	a.Redis = redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: config.Secret(a.Config.Redis.PasswordEnv),
		DB:       a.Config.Redis.DB,
	})
	rl := lock.NewRedisLock(a.Redis, a.Log)
	if err := rl.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.Lock = rl
	a.Log.Info("redis connected", zap.String("addr", a.Config.Redis.Addr))
	return nil
}

// Ready checks every backing store.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	if err := a.Store.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := a.Facts.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fact graph: %w", err))
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every connection that was opened.
func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("close redis", zap.Error(err))
		}
	}
	if a.Facts != nil {
		if err := a.Facts.Close(ctx); err != nil {
			a.Log.Warn("close fact graph", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Log.Sync()
}
