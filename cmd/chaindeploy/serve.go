package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ChainDeploy/internal/api"
	"ChainDeploy/internal/auth"
	"ChainDeploy/internal/config"
	"ChainDeploy/internal/deploy"
	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/observability/metrics"
	"ChainDeploy/internal/web3/provider"
	"ChainDeploy/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deployment processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				rt.cfg.Server.Address = addr
			}
			return serve(cmd.Context(), rt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	log := logger.Named("serve")

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		_ = store.Close()
		return err
	}

	authService, err := auth.NewService(cfg.Server.Auth)
	if err != nil {
		_ = queue.Close()
		_ = store.Close()
		return err
	}

	networkCfg := rt.resolver.Configuration()
	service := deploy.NewService(store, queue, networkCfg, cfg.Deploy.MaxRetries)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn("failed to close deployment service", slog.Any("error", err))
		}
	}()

	registry, err := provider.NewRegistry(rt.resolver)
	if err != nil {
		return err
	}
	defer registry.Close()

	executor := deploy.NewChainExecutor(registry,
		deploy.WithWait(cfg.Deploy.WaitForReceipt),
		deploy.WithWaitTimeout(cfg.Deploy.WaitTimeout),
		deploy.WithStrictNetworkCheck(cfg.Deploy.StrictNetworkCheck),
	)
	processor := deploy.NewProcessor(executor, store, queue, queue, deploy.WithWorkerCount(cfg.Deploy.Workers))
	server := api.NewServer(cfg.Server.Address, networkCfg, service,
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		api.WithAuth(authService),
		api.WithLogger(logger.Named("api").With(slog.String("auth_mode", string(cfg.Server.Auth.Mode)))))

	log.Info("starting chaindeploy",
		slog.String("addr", cfg.Server.Address),
		slog.String("store", cfg.Store.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("auth", string(authService.Mode())),
		slog.Int("workers", cfg.Deploy.Workers),
		slog.Any("networks", networkCfg.Names()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return processor.Start(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if cfg.Metrics.Address != "" {
		g.Go(func() error { return metrics.StartServer(gctx, cfg.Metrics.Address) })
	}

	if err := g.Wait(); err != nil && !stdErrors.Is(err, context.Canceled) {
		return err
	}
	log.Info("chaindeploy stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (deploy.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return deploy.NewMemoryStore(), nil
	case "mysql":
		store, err := deploy.NewMySQLStore(ctx, deploy.MySQLConfig{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unknown store driver %q", cfg.Driver))
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (deploy.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return deploy.NewMemoryQueue(cfg.Size), nil
	case "redis":
		queue, err := deploy.NewRedisQueue(ctx, deploy.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: cfg.Redis.BlockWait,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case "rabbitmq":
		queue, err := deploy.NewRabbitMQQueue(deploy.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unknown queue driver %q", cfg.Driver))
	}
}
