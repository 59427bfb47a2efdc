// cmd/voice-gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"enms-voice/internal/analytics"
	"enms-voice/internal/clarify"
	"enms-voice/internal/common/cache"
	"enms-voice/internal/common/config"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/common/observability"
	"enms-voice/internal/conversation"
	"enms-voice/internal/gateway"
	"enms-voice/internal/intent"
	"enms-voice/internal/pipeline"
	"enms-voice/internal/response"
	"enms-voice/internal/vocabulary"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("info", "console")
		bootstrap.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting voice gateway...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Redis cache (optional) ---
	var redisCache *cache.Cache
	if cfg.Redis.Enabled {
		redisCache = cache.New(cache.Options{
			Address:  cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			zapLog.Warn("Redis unreachable, continuing without cache", zap.Error(err))
			redisCache = nil
		}
	}

	analyticsClient := analytics.NewClient(cfg.Analytics, redisCache, log)

	// --- Vocabulary ---
	store, err := vocabulary.NewFromFile(cfg.Vocabulary.StaticPath, log)
	if err != nil {
		zapLog.Fatal("vocabulary load failed", zap.Error(err))
	}

	err = retryWithBackoff(func() error {
		names, err := analyticsClient.FetchMachineNames(ctx)
		if err != nil {
			return err
		}
		return store.RefreshMachines(names)
	}, 5, 2*time.Second, zapLog, "Initial machine whitelist fetch")
	if err != nil {
		zapLog.Fatal("machine whitelist unavailable at startup", zap.Error(err))
	}

	// --- Pipeline ---
	sessions := conversation.NewManager(
		config.GetDuration(cfg.Conversation.IdleTimeout),
		cfg.Conversation.HistoryLimit,
		log,
	)
	sessions.StartJanitor(ctx, config.GetDuration(cfg.Conversation.SweepEvery))

	routers := []pipeline.Router{
		intent.NewHeuristicRouter(store, log),
		intent.NewVocabParser(store, cfg.Pipeline.MinKeywordScore, cfg.Pipeline.FuzzyThreshold, log),
	}
	orch := pipeline.New(
		sessions,
		routers,
		intent.NewValidator(store, cfg.Pipeline.DefaultRankLimit, log),
		clarify.NewEngine(log),
		store,
		pipeline.Options{
			MinTier2Confidence: cfg.Pipeline.MinTier2Confidence,
			FuzzyThreshold:     cfg.Pipeline.FuzzyThreshold,
		},
		obs,
		log,
	)

	formatter := response.NewFormatter(
		cfg.Response.RegistryPath,
		config.GetDuration(cfg.Response.CacheTTL),
		log,
	)

	// --- Periodic whitelist refresh ---
	if cfg.Vocabulary.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(config.GetDuration(cfg.Vocabulary.RefreshInterval))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					analyticsClient.InvalidateMachineCache(ctx)
					names, err := analyticsClient.FetchMachineNames(ctx)
					if err != nil {
						zapLog.Warn("machine whitelist refresh failed", zap.Error(err))
						continue
					}
					if err := store.RefreshMachines(names); err != nil {
						zapLog.Warn("machine whitelist refresh rejected", zap.Error(err))
					}
				}
			}
		}()
	}

	// --- HTTP server ---
	mux := http.NewServeMux()
	gateway.NewHandler(orch, analyticsClient, analyticsClient, formatter, store, log).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Voice gateway stopped")
}
