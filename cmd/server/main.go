package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pressindex/internal/api"
	"pressindex/internal/app/bootstrap"
	"pressindex/internal/platform/config"
	applog "pressindex/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "pressindex",
	})
	defer applog.Sync()

	components, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build components: %v", err)
	}
	defer components.Close()

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.EventTimeout = time.Duration(cfg.Sync.EventTimeoutSeconds) * time.Second
	serverConfig.WebhookSecret = cfg.Server.WebhookSecret
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	serverConfig.ImportWorkers = cfg.Sync.ImportWorkers

	server := api.NewServer(serverConfig, components.Engine, components.Orchestrator)
	server.SetIndexPinger(components.Search)
	if components.Ledger != nil {
		server.SetAdmin(components.Importer, components.Ledger)
	} else {
		server.SetAdmin(components.Importer, nil)
	}

	// Shutdown 开始后 ListenAndServe 立即返回，需等待 Stop 完成再退出
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		// 进行中的 webhook 事件最长需要 EventTimeout
		timeout := max(time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second, serverConfig.EventTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Fatalf("❌ Server error: %v", err)
	}
	<-stopped

	applog.Info("👋 Server stopped")
}
