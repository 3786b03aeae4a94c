package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-posture/internal/config"
	httpapi "wisefido-posture/internal/http"
	"wisefido-posture/internal/logger"
	"wisefido-posture/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-posture")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. 创建依赖与会话
	deps, err := service.BuildDeps(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to build posture dependencies", zap.Error(err))
	}

	postureService, err := service.NewPostureService(cfg, log, deps)
	if err != nil {
		deps.Close()
		log.Fatal("Failed to create posture service", zap.Error(err))
	}
	defer postureService.Stop()

	// 5. 启动会话（在 goroutine 中）
	serviceErrChan := make(chan error, 2)
	go func() {
		if err := postureService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 6. 启动 HTTP 服务
	srv := httpapi.NewServer(cfg.Posture.HTTPAddr, httpapi.NewRouter(postureService, log), log)
	go func() {
		if err := srv.Start(); err != nil {
			serviceErrChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serviceErrChan:
		log.Error("Service error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server", zap.Error(err))
	}

	log.Info("Posture service stopped")
}
