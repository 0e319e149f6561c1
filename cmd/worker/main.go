package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"guard-watch/backend/config"
	"guard-watch/backend/internal/repository"
	"guard-watch/backend/internal/worker"
	"guard-watch/backend/pkg/database"
	applogger "guard-watch/backend/pkg/logger"
	"guard-watch/backend/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("worker 启动中...", zap.String("log_level", cfg.Log.Level))

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis。worker 的互斥锁与事件广播都依赖 Redis，连不上直接退出，
	// 由进程管理器重启重试，绝不在无锁状态下评估
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Redis 连接失败，worker 无法在无锁状态下运行", zap.Error(err))
	}

	repo := repository.NewRepository(db)

	scheduler := worker.NewScheduler(cfg, repo, rdb, rdb, logger)
	maintenance := worker.NewMaintenance(cfg, repo, rdb, rdb, logger)

	// 5. 启动两个 worker 循环，SIGTERM/SIGINT 后协作式退出（跑完当前 tick）
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		maintenance.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，等待当前 tick 完成...", zap.String("signal", sig.String()))
	cancel()
	wg.Wait()

	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}
	rdb.Close()

	logger.Info("worker 已退出")
}
