package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartattendance/internal/audit"
	"smartattendance/internal/config"
	"smartattendance/internal/metrics"
	"smartattendance/internal/queue"
	"smartattendance/internal/store"
)

// Worker drains attendance.upserted messages from Redis into the audit log.
func main() {
	cfg := config.Load()
	log := cfg.Logger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Error("worker needs QUEUE_BACKEND=redis; the api drains in-memory queues itself")
		os.Exit(1)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		log.Error("redis config invalid", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics listener stopped", "err", err)
		}
	}()

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, log)
	consumer := audit.NewConsumer(q, audit.NewRepository(db.Client), log, m)
	if err := consumer.Run(ctx); err != nil {
		log.Error("queue consume init failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}

