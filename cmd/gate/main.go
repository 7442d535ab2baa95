// Command gate runs the ticket validation HTTP service: the decision
// pipeline behind /validate plus its background reconciler. Wiring is
// manual here (the teacher uses google/wire + codegen for its server
// binary, which this module cannot run without invoking the Go
// toolchain; see DESIGN.md).
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/haahuss/Ticketing-Security-Gate/internal/config"
	"github.com/haahuss/Ticketing-Security-Gate/internal/handler"
	"github.com/haahuss/Ticketing-Security-Gate/internal/migrate"
	"github.com/haahuss/Ticketing-Security-Gate/internal/pkg/logger"
	"github.com/haahuss/Ticketing-Security-Gate/internal/repository"
	"github.com/haahuss/Ticketing-Security-Gate/internal/server"
	"github.com/haahuss/Ticketing-Security-Gate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("startup: load config", "error", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log)
	log := logger.L()
	log.Info("starting ticketing-security-gate", "addr", cfg.Server.Addr)

	if err := migrate.Up(cfg.Database.DSNURL()); err != nil {
		log.Error("startup: apply migrations", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("startup: open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	redemptions := repository.NewRedemptionRepository(db)
	audit := repository.NewAuditRepository(db)

	offlineQueue := service.NewOfflineQueue(rdb, cfg.OfflineQueue)
	pipeline := &service.Pipeline{
		RateLimiter:   service.NewRateLimiter(rdb, cfg.RateLimit),
		Idempotency:   service.NewIdempotency(rdb, cfg.Idempotency),
		ReplayGuard:   service.NewReplayGuard(rdb, cfg.Replay),
		OfflineQueue:  offlineQueue,
		Redemptions:   redemptions,
		Audit:         audit,
		SigningSecret: []byte(cfg.Signing.Secret),
	}

	reconciler := service.NewReconciler(rdb, offlineQueue, redemptions, audit, cfg.OfflineQueue, log)
	reconciler.Start(context.Background())
	defer reconciler.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	server.SetupRouter(
		engine,
		handler.NewValidateHandler(pipeline),
		handler.NewHealthHandler(db, rdb),
		cfg.CORS,
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
