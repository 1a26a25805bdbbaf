package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/coursecheckout/gateway"
	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/config"
	"github.com/example/coursecheckout/pkg/discovery"
	"github.com/example/coursecheckout/pkg/grpc"
	"github.com/example/coursecheckout/pkg/logging"
	"github.com/example/coursecheckout/pkg/notify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func configPath() string {
	if p := os.Getenv("CHECKOUT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.New(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting API Gateway",
		zap.Int("port", cfg.Gateway.Port),
		zap.String("host", cfg.Gateway.Host))

	var (
		store   checkout.Store
		files   gateway.ProofFiles
		cleanup []func(ctx context.Context) error
	)

	if cfg.Gateway.CheckoutService != "" || cfg.Gateway.CheckoutAddr != "" {
		var sd *discovery.ServiceDiscovery
		if len(cfg.Etcd.Endpoints) > 0 {
			sd, err = discovery.NewServiceDiscovery(&cfg.Etcd)
			if err != nil {
				logger.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
				sd = nil
			} else {
				defer sd.Close()
			}
		}

		target := grpc.ResolveTarget(sd, cfg.Gateway.CheckoutService, cfg.Gateway.CheckoutAddr, logger)
		client, err := grpc.NewClient(target)
		if err != nil {
			logger.Fatal("Failed to create checkout client", zap.Error(err))
		}
		store = client
		files = client
		cleanup = append(cleanup, func(context.Context) error { return client.Close() })
	} else {
		provider := checkout.NewProvider(cfg, logger)
		notifier, err := notify.NewNotifier(logger)
		if err != nil {
			logger.Fatal("Failed to start notifier", zap.Error(err))
		}
		store = notify.NewStore(provider, notifier)
		files = provider
		cleanup = append(cleanup,
			func(context.Context) error { return notifier.Close() },
			provider.Close)
	}

	gw := gateway.NewGateway(cfg, logger, store, files)
	gw.SetupRoutes()

	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-gwErr:
		logger.Error("Gateway error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Shutdown(ctx); err != nil {
		logger.Error("Gateway shutdown failed", zap.Error(err))
	}
	for _, fn := range cleanup {
		if err := fn(ctx); err != nil {
			logger.Warn("Cleanup failed", zap.Error(err))
		}
	}

	logger.Info("Gateway stopped")
}
