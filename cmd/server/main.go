package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/api"
	"github.com/jengzang/landuse-tree/internal/config"
	"github.com/jengzang/landuse-tree/internal/database"
	"github.com/jengzang/landuse-tree/internal/handler"
	"github.com/jengzang/landuse-tree/internal/logger"
	"github.com/jengzang/landuse-tree/internal/repository"
	"github.com/jengzang/landuse-tree/internal/service"
)

func main() {
	// 加载配置
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer zlog.Sync()

	if err := cfg.Tree.Validate(); err != nil {
		zlog.Fatal("Invalid configuration", zap.Error(err))
	}

	// 初始化数据库
	db, err := database.Open(database.Config{Path: cfg.DBPath}, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, zlog); err != nil {
		zlog.Fatal("Failed to run migrations", zap.Error(err))
	}

	svc, err := service.NewTreeService(repository.NewTreeRepository(db), cfg.Tree, zlog)
	if err != nil {
		zlog.Fatal("Failed to create tree service", zap.Error(err))
	}

	// 初始化路由
	router, stopRouter := api.SetupRouter(cfg, handler.NewTreeHandler(svc), zlog)
	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error("Server shutdown failed", zap.Error(err))
		}
		stopRouter()
	}()

	// 启动服务器
	zlog.Info("Server starting", zap.String("addr", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal("Failed to start server", zap.Error(err))
	}
	<-shutdownDone
	zlog.Info("Server stopped")
}
