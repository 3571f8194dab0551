package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/hawkeye-api/internal/chain"
	"github.com/benvon/hawkeye-api/internal/config"
	"github.com/benvon/hawkeye-api/internal/handlers"
	"github.com/benvon/hawkeye-api/internal/logger"
	"github.com/benvon/hawkeye-api/internal/memory"
	"github.com/benvon/hawkeye-api/internal/payment"
	"github.com/benvon/hawkeye-api/internal/ratelimit"
	"github.com/benvon/hawkeye-api/internal/scanner"
	"github.com/benvon/hawkeye-api/internal/server"
	"github.com/benvon/hawkeye-api/internal/telemetry"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging and detailed error responses")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *debugFlag {
		cfg.ServerDebugMode = true
	}

	zapLogger, err := logger.NewProductionLogger(cfg.ServerDebugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", cfg.ServerDebugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("payment_enabled", cfg.PaymentEnabled),
		zap.String("rate_limit_store", cfg.RateLimitStore),
		zap.Bool("trust_proxy", cfg.TrustProxy),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracing := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, telemetry.Options{
			ServiceName:    logger.ServiceName,
			ServiceVersion: handlers.ServiceVersion,
			Environment:    cfg.AppEnv,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	limiter, err := newLimiter(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rate_limiter", zap.Error(err))
		}
	}()

	verifier, err := chain.Dial(ctx, cfg.ChainRPCURL, common.HexToAddress(cfg.RegistryAddress), cfg.ChainNetwork,
		chain.WithTimeout(cfg.ChainTimeout))
	if err != nil {
		zapLogger.Fatal("failed_to_dial_chain_rpc", zap.Error(err))
	}
	defer verifier.Close()
	zapLogger.Info("chain_verifier_ready",
		zap.String("registry", verifier.Registry().Hex()),
		zap.String("network", verifier.Network()),
	)

	store := memory.NewStore(cfg.MemoryFile)
	zapLogger.Info("memory_store_ready", zap.String("path", store.Path()))

	routes := payment.DefaultRoutes()
	var gate *payment.Gate
	if cfg.PaymentEnabled {
		gate, err = payment.NewGate(payment.GateConfig{
			PayTo:       cfg.PayTo,
			Network:     cfg.PaymentNetwork,
			Asset:       cfg.PaymentAsset,
			BaseURL:     cfg.BaseURL,
			Routes:      routes,
			Facilitator: payment.NewClient(cfg.FacilitatorURL, nil),
			Logger:      zapLogger,
		})
		if err != nil {
			zapLogger.Fatal("failed_to_create_payment_gate", zap.Error(err))
		}
		zapLogger.Info("payment_gate_enabled",
			zap.String("pay_to", cfg.PayTo),
			zap.String("network", cfg.PaymentNetwork),
			zap.String("facilitator", cfg.FacilitatorURL),
		)
	} else {
		zapLogger.Warn("payment_gate_disabled")
	}

	router, err := server.NewRouter(server.Deps{
		Config:   cfg,
		Logger:   zapLogger,
		Limiter:  limiter,
		Gate:     gate,
		Memory:   store,
		Verifier: verifier,
		Scanner:  scanner.Default(),
		Routes:   routes,
		Tracing:  tracing,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	srv := server.NewHTTPServer(cfg.ServerPort, router)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// newLimiter builds the configured rate limit backend. The memory limiter's
// sweeper runs until ctx is cancelled. Redis is retried with backoff so the
// service tolerates starting before its cache.
func newLimiter(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (ratelimit.Limiter, error) {
	if cfg.RateLimitStore != config.RateLimitStoreRedis {
		m, err := ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, cfg.RateLimitMaxClients,
			ratelimit.WithSweepInterval(cfg.RateLimitSweepInterval),
			ratelimit.WithLogger(zapLogger),
		)
		if err != nil {
			return nil, err
		}
		go m.Start(ctx)
		zapLogger.Info("rate_limiter_ready",
			zap.String("store", config.RateLimitStoreMemory),
			zap.Int("max", cfg.RateLimitMax),
			zap.Duration("window", cfg.RateLimitWindow),
			zap.Int("max_clients", cfg.RateLimitMaxClients),
		)
		return m, nil
	}

	const maxRetries = 5
	const initialDelay = time.Second
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		l, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitMax, cfg.RateLimitWindow)
		if err == nil {
			zapLogger.Info("rate_limiter_ready",
				zap.String("store", config.RateLimitStoreRedis),
				zap.Int("max", cfg.RateLimitMax),
				zap.Duration("window", cfg.RateLimitWindow),
			)
			return l, nil
		}
		lastErr = err

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_redis_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
