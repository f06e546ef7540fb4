package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/transformer-puzzle/pkg/api"
	"github.com/rmax-ai/transformer-puzzle/pkg/archive"
	"github.com/rmax-ai/transformer-puzzle/pkg/blob"
	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
	redisstore "github.com/rmax-ai/transformer-puzzle/pkg/store/redis"
	"github.com/rmax-ai/transformer-puzzle/pkg/webhook"
)

func main() {
	args := os.Args[1:]
	cfg, err := LoadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "tpuzzle-d: %v\n", err)
		os.Exit(2)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("system_started", "component", "tpuzzle-d", "config", cfg.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, args, level, logger)
	if err != nil {
		logger.Error("daemon_init_failed", "error", err)
		os.Exit(1)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	if err := d.run(ctx, hup); err != nil {
		logger.Error("daemon_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

// daemon owns everything tpuzzle-d starts, so it can be torn down in order.
type daemon struct {
	cfg    Config
	args   []string
	level  *slog.LevelVar
	logger *slog.Logger

	journal *store.Store
	events  api.EventStore
	redis   *goredis.Client
	manager *game.Manager
	api     *api.Server

	closeOnce sync.Once
}

func newDaemon(ctx context.Context, cfg Config, args []string, level *slog.LevelVar, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, args: args, level: level, logger: logger}

	var opts []game.Option
	opts = append(opts, game.WithLogger(logger))
	var events api.EventStore
	if cfg.DBPath != "" {
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to init journal: %w", err)
		}
		d.journal = st
		events = st
		opts = append(opts, game.WithJournal(st))
		logger.Info("store_initialized", "path", cfg.DBPath)

		if cfg.ArchiveDir != "" {
			events = archivingJournal{
				Store:    st,
				archiver: archive.New(st, blob.NewLocalStore(cfg.ArchiveDir), archive.WithLogger(logger)),
			}
			logger.Info("archive_enabled", "dir", cfg.ArchiveDir)
		}
	}
	d.events = events

	var sessions game.SessionStore
	if cfg.RedisAddr != "" {
		d.redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			d.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		sessions = redisstore.NewRedisSessionStore(d.redis)
		opts = append(opts, game.WithLocker(redisstore.NewRedisLocker(d.redis, cfg.LockTTL).WithLogger(logger)))
		logger.Info("redis_connected", "addr", cfg.RedisAddr)
	}

	d.manager = game.NewManager(sessions, opts...)
	if err := d.manager.Sync(ctx); err != nil {
		d.close()
		return nil, err
	}

	d.api = api.NewServer(d.manager, events, logger, cfg.Addr)
	d.api.SetAdminToken(cfg.AdminToken)
	if cfg.TLSCertFile != "" {
		d.api.SetTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return d, nil
}

// run serves until ctx is done or the server fails. A value on hup reloads
// the config.
func (d *daemon) run(ctx context.Context, hup <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.api.Start() }()

	if d.journal != nil && d.cfg.Retention > 0 {
		go d.pruneLoop(ctx)
	}
	if d.journal != nil && len(d.cfg.Webhooks) > 0 {
		dispatcher := webhook.NewDispatcher(d.journal, d.cfg.Webhooks, webhook.WithLogger(d.logger))
		go dispatcher.Run(ctx, webhook.PollInterval)
		d.logger.Info("webhooks_enabled", "count", len(d.cfg.Webhooks))
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutdown_initiated")
			break loop
		case <-hup:
			d.reload()
		case err := <-errCh:
			runErr = err
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.api.Stop(shutdownCtx); err != nil {
		d.logger.Error("server_stop_failed", "error", err)
	}
	d.close()
	return runErr
}

// reload re-reads the config and applies what can change while serving:
// the log level and the admin token.
func (d *daemon) reload() {
	cfg, err := LoadConfig(d.args)
	if err != nil {
		d.logger.Error("config_reload_failed", "error", err)
		return
	}
	d.level.Set(cfg.LogLevel)
	d.api.SetAdminToken(cfg.AdminToken)
	d.cfg.LogLevel = cfg.LogLevel
	d.cfg.AdminToken = cfg.AdminToken
	d.logger.Info("config_reloaded", "log_level", cfg.LogLevel.String())
}

func (d *daemon) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune(ctx)
		}
	}
}

func (d *daemon) prune(ctx context.Context) {
	n, err := d.events.PruneEvents(ctx, d.cfg.Retention)
	if err != nil {
		d.logger.Error("prune_failed", "error", err)
		return
	}
	d.logger.Info("events_pruned", "count", n, "retention", d.cfg.Retention.String())
}

// archivingJournal archives expired events to the blob store instead of
// dropping them, for both the prune loop and the admin endpoint.
type archivingJournal struct {
	*store.Store
	archiver *archive.Archiver
}

func (j archivingJournal) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	return j.archiver.Archive(ctx, retention)
}

func (d *daemon) close() {
	d.closeOnce.Do(d.closeResources)
}

func (d *daemon) closeResources() {
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Error("failed_to_close_store", "error", err)
		} else {
			d.logger.Info("store_closed")
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Error("failed_to_close_redis", "error", err)
		}
	}
}
