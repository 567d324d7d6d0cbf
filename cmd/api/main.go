package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trunkctl/internal/auth"
	"trunkctl/internal/callservice"
	"trunkctl/internal/config"
	"trunkctl/internal/esl"
	"trunkctl/internal/events"
	"trunkctl/internal/gateway"
	"trunkctl/internal/httpapi"
	"trunkctl/internal/trunks"
	"trunkctl/pkg/logger"
	"trunkctl/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provisioner := &gateway.Provisioner{
		Dir:     cfg.Switch.GatewayDir,
		Profile: cfg.Switch.SIPProfile,
		Switch:  &esl.Client{Addr: cfg.ESLAddr(), Password: cfg.Switch.ESLPassword},
		Log:     log,
	}
	subscribers := &callservice.Client{
		BaseURL:  cfg.CallService.URL,
		Username: cfg.CallService.Username,
		Password: cfg.CallService.Password,
	}
	handlers := &httpapi.Handlers{
		Trunks: &trunks.PostgresRepo{DB: db},
		Lifecycle: &trunks.Orchestrator{
			Gateways:    provisioner,
			Subscribers: subscribers,
			Log:         log,
		},
		Gateways: provisioner,
		Events:   &events.Bus{RDB: rdb},
		Log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Let queued switch commands (rescan, killgw) land before exiting.
	provisioner.Flush()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
