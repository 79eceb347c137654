package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	empire "github.com/thelittleladyinc/empire-system"
	"github.com/thelittleladyinc/empire-system/api"
	"github.com/thelittleladyinc/empire-system/engine"
	"github.com/thelittleladyinc/empire-system/node"
	"github.com/thelittleladyinc/empire-system/observability"
	"github.com/thelittleladyinc/empire-system/plan"
	"github.com/thelittleladyinc/empire-system/queue"
	memqueue "github.com/thelittleladyinc/empire-system/queue/memory"
	redisqueue "github.com/thelittleladyinc/empire-system/queue/redis"
	"github.com/thelittleladyinc/empire-system/store"
	bunstore "github.com/thelittleladyinc/empire-system/store/bun"
	"github.com/thelittleladyinc/empire-system/store/memory"
	"github.com/thelittleladyinc/empire-system/store/postgres"
	"github.com/thelittleladyinc/empire-system/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration engine and admin API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfgPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "path to the config file")
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	q, err := buildQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	defer func() {
		if closeErr := q.Close(); closeErr != nil {
			logger.Error("queue close error", slog.String("error", closeErr.Error()))
		}
	}()

	broker := stream.NewBroker(logger)
	metrics := observability.NewMetricsHook()

	engineCfg := empire.DefaultConfig()
	engineCfg.QueueName = cfg.Queue.Name
	if cfg.Engine.NodeTimeout > 0 {
		engineCfg.NodeTimeout = cfg.Engine.NodeTimeout
	}
	if cfg.Engine.ShutdownTimeout > 0 {
		engineCfg.ShutdownTimeout = cfg.Engine.ShutdownTimeout
	}
	if cfg.Engine.HealthInterval > 0 {
		engineCfg.HealthInterval = cfg.Engine.HealthInterval
	}
	if cfg.Engine.MemoryThreshold > 0 {
		engineCfg.MemoryThreshold = cfg.Engine.MemoryThreshold
	}

	plans := plan.NewResolver()
	for _, p := range cfg.Plans {
		if p.Label == "" || len(p.Steps) == 0 {
			return fmt.Errorf("plan %q needs a label and at least one step", p.Label)
		}
		plans.Register(p.Label, p.Steps)
		logger.Info("plan registered", slog.String("label", p.Label), slog.Int("steps", len(p.Steps)))
	}
	nodes := node.NewRegistry()
	registerNodes(nodes, plans, logger)

	o, err := empire.New(
		empire.WithConfig(engineCfg),
		empire.WithLogger(logger),
		empire.WithStore(st),
		empire.WithQueue(q),
		empire.WithHooks(broker, metrics),
		empire.WithNodeRegistry(nodes),
		empire.WithPlanResolver(plans),
	)
	if err != nil {
		return err
	}
	eng, err := engine.Build(o)
	if err != nil {
		return err
	}

	for _, entry := range cfg.Schedule {
		if err := eng.Scheduler().Register(entry); err != nil {
			return fmt.Errorf("schedule entry %q: %w", entry.Name, err)
		}
		logger.Info("schedule entry registered",
			slog.String("name", entry.Name),
			slog.String("spec", entry.Spec),
			slog.String("workflow_type", entry.WorkflowType),
		)
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	a := api.New(eng, api.WithBroker(broker), api.WithLogger(logger))
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: a.Handler(),
		// No global read/write timeouts: /v1/stream holds hijacked
		// connections open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", slog.String("addr", cfg.Listen))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		stopEngine(eng, logger)
		return fmt.Errorf("admin API: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), engineCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin API shutdown error", slog.String("error", err.Error()))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("admin API close error", slog.String("error", closeErr.Error()))
		}
	}

	stopEngine(eng, logger)
	logger.Info("empired stopped")
	return nil
}

func stopEngine(eng *engine.Engine, logger *slog.Logger) {
	if err := eng.Stop(context.Background()); err != nil && !errors.Is(err, empire.ErrEngineStopped) {
		logger.Error("engine stop error", slog.String("error", err.Error()))
	}
}

// buildStore constructs the configured persistence backend. The second
// return closes resources the store does not own itself.
func buildStore(ctx context.Context, cfg *Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory", "":
		return memory.New(), func() {}, nil

	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, errors.New("store.dsn is required for the postgres driver")
		}
		st, err := postgres.New(ctx, cfg.Store.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case "bun":
		if cfg.Store.DSN == "" {
			return nil, nil, errors.New("store.dsn is required for the bun driver")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Store.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		st := bunstore.New(db, bunstore.WithLogger(logger))
		return st, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildQueue constructs the configured dispatch transport.
func buildQueue(cfg *Config, logger *slog.Logger) (queue.Queue, error) {
	qcfg := queue.DefaultConfig()
	qcfg.Name = cfg.Queue.Name
	if cfg.Queue.Concurrency > 0 {
		qcfg.Concurrency = cfg.Queue.Concurrency
	}
	qcfg.RateLimit = cfg.Queue.RateLimit

	switch cfg.Queue.Driver {
	case "memory", "":
		return memqueue.New(memqueue.WithConfig(qcfg), memqueue.WithLogger(logger)), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		return redisqueue.New(client,
			redisqueue.WithConfig(qcfg),
			redisqueue.WithLogger(logger),
			redisqueue.WithCodec(queue.GetCodec(cfg.Queue.Codec)),
		), nil

	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
