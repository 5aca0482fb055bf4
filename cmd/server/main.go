package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/searchforge/fusion_proxy/internal/api"
	"github.com/searchforge/fusion_proxy/internal/config"
	"github.com/searchforge/fusion_proxy/internal/controller"
	"github.com/searchforge/fusion_proxy/obs"
	"github.com/searchforge/fusion_proxy/policy"
	"github.com/searchforge/fusion_proxy/sources"
)

func main() {
	// a missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FUSION_PROXY_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdown, err := obs.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Warn("tracer init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	qdrant, err := sources.NewQdrantSource(cfg.Qdrant.URL, newHTTPClient(cfg.Qdrant.Timeout), cfg.Qdrant.RetryMax, logger)
	if err != nil {
		logger.Fatal("qdrant source", zap.Error(err))
	}

	ctrl, err := controller.New(qdrant, controller.Config{
		DefaultTopK:     cfg.Search.DefaultTopK,
		TopNMax:         cfg.Search.TopNMax,
		BudgetMS:        cfg.Search.BudgetMS,
		Fusion:          cfg.Fusion,
		Policy:          cfg.Policy,
		Metrics:         policy.NewMetrics(),
		Logger:          logger,
		CacheTTL:        cfg.Search.CacheTTL,
		PolicyVersion:   cfg.Search.PolicyVersion,
		LangfuseHost:    cfg.Langfuse.Host,
		LangfuseProject: cfg.Langfuse.Project,
		FallbackOnError: cfg.Search.FallbackOnError,
	})
	if err != nil {
		logger.Fatal("controller", zap.Error(err))
	}

	router, err := api.NewRouter(ctrl, logger)
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("fusion proxy listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("qdrant", cfg.Qdrant.URL),
			zap.String("strategy", cfg.Fusion.Strategy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     128,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 128,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
