package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ollamaweb/internal/api"
	"ollamaweb/internal/auth"
	"ollamaweb/internal/config"
	"ollamaweb/internal/redis"
	"ollamaweb/internal/service/store"
	"ollamaweb/internal/storage"
)

const (
	defaultAdminUser     = "admin"
	defaultAdminPassword = "admin123"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfgPath := os.Getenv("OLLAMAWEB_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	dbType := os.Getenv("OLLAMAWEB_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	// Redis only caches auth tokens; the service runs fine without it.
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, token cache disabled", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	storeService := store.NewService(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storeService.EnsureDefaultUser(ctx, defaultAdminUser, defaultAdminPassword); err != nil {
		cancel()
		logger.Fatal("seed default user", zap.Error(err))
	}
	cancel()

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	authService := auth.NewService(db, rdb, tokenTTL)
	handlers := api.NewHandler(storeService, authService, cfg.BasicConfig, logger)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	logger.Info("listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
