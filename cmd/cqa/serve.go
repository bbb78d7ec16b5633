package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bigredeye/cqa/internal/config"
	"github.com/bigredeye/cqa/internal/database"
	"github.com/bigredeye/cqa/internal/docker"
	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/executors"
	"github.com/bigredeye/cqa/internal/gateway"
	"github.com/bigredeye/cqa/internal/hostname"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/metrics"
	"github.com/bigredeye/cqa/internal/notify"
	"github.com/bigredeye/cqa/internal/pipeline"
	"github.com/bigredeye/cqa/internal/platform"
	"github.com/bigredeye/cqa/internal/teardown"
	"github.com/bigredeye/cqa/internal/tgbot"
	"github.com/bigredeye/cqa/internal/web"
	zlog "github.com/bigredeye/cqa/pkg/log"
)

func makeServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the preview gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.ParseConfig(configPath)
			if err != nil {
				return err
			}
			logger := zlog.Init(zlog.Options{Development: conf.Log.Development, File: conf.Log.File})
			defer zlog.Sync()

			return serve(cmd.Context(), conf, logger)
		},
	}
}

func pingDocker(ctx context.Context, driver *docker.Driver, timeout time.Duration, logger *zap.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout

	return backoff.RetryNotify(
		func() error { return driver.Ping(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, delay time.Duration) {
			logger.Warn("Docker is not reachable yet", zap.Error(err), lf.Delay(delay))
		},
	)
}

func openStore(conf *config.Config, logger *zap.Logger) (database.Store, error) {
	dsn := conf.DSN()
	if dsn == "" {
		logger.Info("Keeping builds in memory")
		return database.NewMemory(), nil
	}
	db, err := database.OpenDataBase(logger, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func serve(ctx context.Context, conf *config.Config, logger *zap.Logger) error {
	cli, err := docker.NewClient(conf.Docker.Host)
	if err != nil {
		return err
	}
	defer cli.Close()

	driver := docker.NewDriver(cli, conf.Docker.GatewayContainer, logger)
	if err := pingDocker(ctx, driver, conf.Docker.PingTimeout, logger); err != nil {
		return errors.Wrap(err, "Failed to connect to docker")
	}

	if conf.Cleanup.AtStartup != "" {
		scope, err := docker.ParseScope(conf.Cleanup.AtStartup)
		if err != nil {
			return err
		}
		if err := cleanup(ctx, driver, scope, conf.Builds.SourceDir, logger); err != nil {
			logger.Warn("Startup cleanup was incomplete", zap.Error(err))
		}
	}

	store, err := openStore(conf, logger)
	if err != nil {
		return errors.Wrap(err, "Failed to open build store")
	}

	projects, err := platform.NewProjectsFetcher(conf, logger)
	if err != nil {
		return err
	}

	codec := hostname.NewCodec(conf.Domain.Base, conf.Builds.HostnameCacheSize)
	defer codec.Stop()

	m := metrics.New()
	bus := events.NewBus()

	// The store goes first: everyone else may read back what an event carried.
	database.Persist(bus, store, logger)

	registry := executors.NewDefaultRegistry(executors.NewGitCloneExecutor(conf.Builds.SourceDir, logger), driver)
	pipeline.NewExecutor(registry, bus, m, logger).Limit(conf.Builds.MaxConcurrent).Subscribe(ctx)

	scheduler := teardown.NewScheduler(teardown.Options{
		Window:  conf.Builds.IdleWindow,
		Store:   store,
		Driver:  driver,
		Bus:     bus,
		Metrics: m,
		Logger:  logger,
	})
	scheduler.Subscribe(ctx)
	if err := scheduler.Resume(ctx, store); err != nil {
		return err
	}

	hub := notify.NewHub(logger)
	hub.Attach(bus)
	m.ObserveWatchers(
		func() float64 { return float64(hub.Stats().Active) },
		func() float64 { return float64(hub.Stats().Dropped) },
	)

	router := gateway.NewRouter(gateway.Options{
		Codec:    codec,
		Projects: projects,
		Store:    store,
		Driver:   driver,
		Bus:      bus,
		Metrics:  m,
		Logger:   logger,
	})

	server, err := web.NewServer(conf, logger, router, hub)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if conf.Server.MetricsAddress != "" {
		g.Go(func() error {
			return web.RunMetrics(gctx, conf.Server.MetricsAddress, m, logger)
		})
	}

	if runner, ok := projects.(platform.Runner); ok {
		g.Go(func() error {
			runner.Run(gctx)
			return nil
		})
	}

	if conf.Telegram.BotToken != "" {
		bot, err := tgbot.NewBot(conf.Telegram.BotToken, conf.Telegram.ChatID, codec, store, logger)
		if err != nil {
			return errors.Wrap(err, "Failed to create telegram bot")
		}
		bot.Attach(bus)
		g.Go(func() error {
			bot.Run(gctx)
			return nil
		})
	}

	logger.Info("Gateway is ready",
		zap.String("base_domain", conf.Domain.Base),
		zap.String("platform", conf.Platform.Mode),
		zap.Duration("idle_window", conf.Builds.IdleWindow),
		zap.Strings("executors", registry.Names()),
	)
	return g.Wait()
}
