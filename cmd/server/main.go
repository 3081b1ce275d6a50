package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vrcneta/topic-gateway/internal/api"
	"github.com/vrcneta/topic-gateway/internal/config"
	"github.com/vrcneta/topic-gateway/internal/gateway"
	"github.com/vrcneta/topic-gateway/internal/grpchealth"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/origin"
	"github.com/vrcneta/topic-gateway/internal/resilience"
	"github.com/vrcneta/topic-gateway/internal/session"
	"github.com/vrcneta/topic-gateway/internal/storage"
	"github.com/vrcneta/topic-gateway/internal/stt"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "probe the running server's gRPC health service and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthcheck {
		os.Exit(probe(cfg))
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("gemini_model", cfg.GeminiModel).
		Str("database", cfg.DatabasePath).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Topic Gateway starting")

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	settings := storage.NewSettings(store, cfg.GeminiAPIKey, cfg.FillerRemoval)

	geminiBreaker := resilience.NewCircuitBreaker(
		"gemini",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	geminiBreaker.OnStateChange(func(name string, state resilience.CircuitState, success bool) {
		observability.UpdateCircuitBreakerState(name, int(state))
		if !success {
			observability.IncrementCircuitBreakerFailures(name)
		}
	})

	generator := suggestion.NewClient(suggestion.ClientConfig{
		BaseURL:     cfg.GeminiBaseURL,
		Model:       cfg.GeminiModel,
		Temperature: cfg.SuggestionTemperature,
		MaxTokens:   cfg.SuggestionMaxTokens,
		Timeout:     time.Duration(cfg.SuggestionTimeout) * time.Second,
	}, geminiBreaker)

	transcription := stt.NewProvider(cfg, logger)

	// Readiness checks are plain functions to avoid import cycles
	readiness := observability.NewReadiness()
	readiness.Register("storage", func(ctx context.Context) (bool, error) {
		if err := store.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
	readiness.Register("gemini", func(ctx context.Context) (bool, error) {
		key, err := settings.APIKey(ctx)
		if err != nil {
			return false, err
		}
		if key == "" {
			return false, errors.New("API key is not configured")
		}
		if state, requests, failures, _ := geminiBreaker.GetStats(); state == resilience.StateOpen {
			return false, fmt.Errorf("%w: %d of %d requests failed", resilience.ErrCircuitOpen, failures, requests)
		}
		return true, nil
	})
	readiness.Register("transcription", func(ctx context.Context) (bool, error) {
		if !transcription.Supported() {
			return false, fmt.Errorf("%s provider: transcription unsupported", transcription.Name())
		}
		return true, nil
	})

	origins := origin.NewPolicy(cfg.AllowedOrigins)

	streamHandler := gateway.NewStreamHandler(session.OptionsFromConfig(cfg), session.Dependencies{
		Transcription: transcription,
		Generator:     generator,
		Settings:      settings,
		Store:         store,
	}, origins, logger)

	apiHandler := api.NewHandler(store, settings, logger)
	// A new key deserves a fresh attempt at the endpoint
	apiHandler.OnAPIKeyChange(geminiBreaker.Reset)

	router := api.NewRouter(api.RouterConfig{
		API:            apiHandler,
		Stream:         streamHandler,
		Readiness:      readiness,
		Origins:        origins,
		MetricsEnabled: cfg.MetricsEnabled,
		Logger:         logger,
	})

	// No WriteTimeout: the session WebSocket is long-lived
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthServer := grpchealth.NewServer(readiness, logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("grpc_port", cfg.GRPCPort).Msg("Failed to listen for gRPC health")
	}
	go healthServer.Watch(ctx, 10*time.Second)
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s%s", cfg.Port, api.StreamPath)).
			Str("transcription", transcription.Name()).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	cancel()
	healthServer.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Hijacked WebSocket connections are not covered by server.Shutdown;
	// live sessions must finish writing before the store closes
	if err := streamHandler.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Extension sessions did not finish before shutdown deadline")
	}

	logger.Info().Msg("Server exited gracefully")
}

// probe checks the gRPC health service of a running instance. It is meant
// for container health checks.
func probe(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	addr := net.JoinHostPort("127.0.0.1", cfg.GRPCPort)
	if err := grpchealth.ProbeUntilServing(ctx, addr, "", resilience.DefaultRetryConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "health probe failed: %v\n", err)
		return 1
	}
	return 0
}
