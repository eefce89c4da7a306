package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"agrismart-monitor/common/logger"
	"agrismart-monitor/internal/config"
	"agrismart-monitor/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor, err := service.NewMonitorService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create monitor service", zap.Error(err))
	}
	defer monitor.Stop()

	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- monitor.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-serviceErrChan; err != nil {
			log.Error("Shutdown error", zap.Error(err))
		}
	case err := <-serviceErrChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
	}

	log.Info("Monitor service stopped")
}
