package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/autosync_backend/autosync"
	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/middlewares"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	syncCfg, err := config.LoadAutoSyncConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err.Error())
	}

	// Cloud Run sends SIGTERM on revision shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The port opens before the database is ready; until the app router is
	// swapped in every route but /healthz answers 503.
	var app atomic.Pointer[gin.Engine]
	boot := gin.New()
	boot.Use(middlewares.ReadinessGate(func() bool { return false }))
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if h := app.Load(); h != nil {
				h.ServeHTTP(w, req)
				return
			}
			boot.ServeHTTP(w, req)
		}),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectRedisWithRetry(sigCtx)
	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; large deployments run it as a separate job.
	if !config.EnvBool("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	gateway := store.NewGormGateway(db)
	engine := autosync.NewEngine(gateway, logger, syncCfg)
	var opts []autosync.MonitorOption
	if lockClient := config.GetRedisLock(); lockClient != nil {
		opts = append(opts,
			autosync.WithLocker(autosync.NewRedisTenantLocker(lockClient)),
			autosync.WithStatusPublisher(autosync.NewRedisStatusPublisher(syncCfg.Interval())),
		)
	}
	monitor := autosync.NewMonitor(engine, opts...)
	app.Store(newRouter(logger, monitor, engine, gateway))

	if syncCfg.Enabled {
		go monitor.Start(sigCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "autosync"}).Warn("AUTOSYNC_ENABLED=false; monitor not started")
	}

	logger.WithFields(logrus.Fields{
		"field":     "server",
		"port":      port,
		"worker_id": monitor.WorkerId(),
	}).Info("auto-sync service ready")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the monitor first so no tenant pass starts while draining.
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	config.CloseRedis()
}

func newRouter(logger *logrus.Logger, monitor *autosync.Monitor, engine *autosync.Engine, idem store.IdempotencyStore) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.ReadinessGate(func() bool { return config.GetDB() != nil }))
	if cfg, ok := corsConfig(); ok {
		r.Use(cors.New(cfg))
	}

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if config.EnvBool("RATE_LIMIT_ENABLED", false) {
		limit := int64Env("RATE_LIMIT_MAX_REQUESTS", 600)
		window := time.Duration(int64Env("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(middlewares.NewRateLimiter(config.GetRedisDB(), limit, window).Middleware)
	}
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	autosync.RegisterRoutes(r, monitor, os.Getenv("AUTOSYNC_OPS_TOKEN"))
	r.POST("/pubsub/autosync", autosync.PubSubPushHandler(engine, idem))
	r.NoRoute(middlewares.NotFoundHandler)
	return r
}

// corsConfig requires an explicit allowlist (CORS_ALLOWED_ORIGINS) in production and allows all
// otherwise. Production without an allowlist gets no CORS headers at all.
func corsConfig() (cors.Config, bool) {
	c := cors.DefaultConfig()
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		c.AllowOrigins = splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
		if len(c.AllowOrigins) == 0 {
			return c, false
		}
	} else {
		c.AllowAllOrigins = true
	}
	c.AddAllowMethods("GET", "POST", "OPTIONS")
	c.AddAllowHeaders("Origin", "Content-Type", "x-ops-token", middlewares.CorrelationHeader)
	c.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	return c, true
}

func int64Env(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
