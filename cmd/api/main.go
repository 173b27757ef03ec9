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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartattendance/internal/attendance"
	"smartattendance/internal/audit"
	"smartattendance/internal/auth"
	"smartattendance/internal/config"
	"smartattendance/internal/handler"
	"smartattendance/internal/httpmiddleware"
	"smartattendance/internal/metrics"
	"smartattendance/internal/queue"
	"smartattendance/internal/requests"
	"smartattendance/internal/store"
	"smartattendance/internal/timetable"
	"smartattendance/internal/users"
)

func main() {
	cfg := config.Load()
	log := cfg.Logger(os.Stdout)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.App, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	userRepo := users.NewRepository(db.Client)
	if err := users.EnsureAdmin(ctx, userRepo, cfg.AdminEmail, cfg.AdminPassword, log); err != nil {
		return err
	}
	periods := timetable.NewRepository(db.Client)
	permissions := requests.NewPermissions(db.Client)
	complaints := requests.NewComplaints(db.Client)
	auditRepo := audit.NewRepository(db.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// No worker can reach an in-process queue, so drain it here.
		mem := queue.NewInMemory(256)
		q = mem
		go func() {
			if err := audit.NewConsumer(mem, auditRepo, log, m).Run(ctx); err != nil {
				log.Error("audit consumer failed", "err", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log)
	}

	var ledgerStore attendance.Store = attendance.NewRepository(db.Client)
	if cfg.LedgerBackend == "memory" {
		log.Warn("using in-memory ledger; records are lost on restart")
		ledgerStore = attendance.NewMemoryStore()
	}

	svc := attendance.NewService(attendance.Deps{
		Store:       ledgerStore,
		Directory:   userRepo,
		Timetable:   periods,
		Notifier:    audit.NewPublisher(q),
		Users:       userRepo,
		Permissions: permissions,
		Complaints:  complaints,
		Location:    cfg.Location,
		Logger:      log,
		Metrics:     m,
	})

	h := handler.New(handler.Config{
		Service:      svc,
		Issuer:       auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Users:        userRepo,
		Timetable:    periods,
		Permissions:  permissions,
		Complaints:   complaints,
		Audit:        auditRepo,
		Signup: handler.SignupCodes{
			FacultyActivation: cfg.FacultyActivationCode,
			AdminInvite:       cfg.AdminInviteCode,
		},
		PollInterval: cfg.LivePollInterval,
		Logger:       log,
	})

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisLimiter(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(m.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || (!redisHealthy && cfg.QueueBackend != "memory") {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("", httpmiddleware.GinMiddleware(limiter, log))
	h.Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", "err", err)
	}
	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Poll-Interval"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
