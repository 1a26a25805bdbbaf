package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	logger.Info("Starting checkout service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := checkout.NewProvider(cfg, logger)
	logger.Info("Checkout backend selected", zap.String("mode", string(provider.Mode(ctx))))

	notifier, err := notify.NewNotifier(logger)
	if err != nil {
		logger.Fatal("Failed to start notifier", zap.Error(err))
	}

	server := grpc.NewCheckoutServer(cfg, notify.NewStore(provider, notifier), provider, logger)

	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.RegistrationHost(),
		Port: cfg.Server.Port,
	}
	var sd *discovery.ServiceDiscovery
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer sd.Close()

		if err := sd.Register(ctx, instance); err != nil {
			logger.Fatal("Failed to register service", zap.Error(err))
		}
		logger.Info("Service registered in etcd",
			zap.String("name", cfg.Server.Name),
			zap.String("address", fmt.Sprintf("%s:%d", instance.Host, instance.Port)))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
	}
	server.Stop()
	if err := notifier.Close(); err != nil {
		logger.Warn("Notifier did not stop cleanly", zap.Error(err))
	}
	if err := provider.Close(shutdownCtx); err != nil {
		logger.Warn("Failed to close checkout backend", zap.Error(err))
	}

	logger.Info("Service stopped")
}
