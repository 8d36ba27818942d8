package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/xaenox/relaybot/internal/bot"
	"github.com/xaenox/relaybot/internal/classifier"
	"github.com/xaenox/relaybot/internal/dedup"
	"github.com/xaenox/relaybot/internal/eventlog"
	"github.com/xaenox/relaybot/internal/llm"
	"github.com/xaenox/relaybot/internal/metrics"
	"github.com/xaenox/relaybot/internal/prompts"
	"github.com/xaenox/relaybot/internal/server"
	"github.com/xaenox/relaybot/internal/session"
	"github.com/xaenox/relaybot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		logger.Fatal("Failed to load prompts", zap.Error(err), zap.String("path", cfg.PromptsPath))
	}

	model, err := newModel(ctx, cfg.Model, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model", zap.Error(err), zap.String("provider", cfg.Model.Provider))
	}
	defer model.Close()

	store, err := newHistoryStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}
	defer store.Close()

	guard, closeGuard, err := newGuard(ctx, cfg.Dedup, logger)
	if err != nil {
		logger.Fatal("Failed to initialize duplicate guard", zap.Error(err))
	}
	defer closeGuard()

	sink, err := newSink(ctx, cfg.EventLog, logger)
	if err != nil {
		logger.Fatal("Failed to initialize event log", zap.Error(err), zap.String("sink", cfg.EventLog.Sink))
	}
	defer sink.Close()
	recorder := eventlog.NewRecorder(sink)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	relayMetrics := metrics.NewRelayMetrics(registry)

	mode := bot.Mode(cfg.Bot.Mode)
	extractor := classifier.NewKeywordExtractor(model, bundle, keywordParams(mode, cfg.Model), logger)

	messenger, err := bot.NewSlackMessenger(ctx, cfg.Slack.BotToken)
	if err != nil {
		logger.Fatal("Failed to connect to Slack", zap.Error(err))
	}

	opts := bot.Options{
		Mode:           mode,
		Messenger:      messenger,
		Guard:          guard,
		Model:          model,
		Extractor:      extractor,
		Recorder:       recorder,
		TextParams:     cfg.Model.TextParams,
		PolicyNotice:   bundle.PolicyNotice,
		ProcessingText: cfg.Slack.ProcessingText,
		Metrics:        relayMetrics,
		Logger:         logger,
	}
	if opts.Mode == bot.ModeThreaded {
		opts.Sessions = session.NewManager(store, model, extractor, recorder,
			sessionConfig(bundle, cfg.Model), relayMetrics, logger)
	}
	relay, err := bot.New(opts)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	srv, err := server.New(server.Config{
		SigningSecret: cfg.Slack.SigningSecret,
		Handler:       relay,
		Gatherer:      registry,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Relay listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("mode", cfg.Bot.Mode),
			zap.String("provider", cfg.Model.Provider),
			zap.String("location", cfg.Model.Location),
			zap.String("storage", cfg.Storage.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func sessionConfig(bundle *prompts.Bundle, cfg config.ModelConfig) session.Config {
	return session.Config{
		Preamble:      bundle.Preamble,
		Examples:      bundle.Examples,
		MetadataLabel: cfg.MetadataLabel,
		PolicyNotice:  bundle.PolicyNotice,
		Params:        cfg.ChatParams,
	}
}

// keywordParams returns the parameters of the mode's primary generation so
// keyword calls match the exchange they describe.
func keywordParams(mode bot.Mode, cfg config.ModelConfig) llm.GenerationParams {
	if mode == bot.ModeSingle {
		return cfg.TextParams
	}
	return cfg.ChatParams
}

func newModel(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (llm.Model, error) {
	if cfg.Provider == "openai" {
		return llm.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TextModel, cfg.ChatModel, logger)
	}
	return llm.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.TextModel, cfg.ChatModel, logger)
}

func newGuard(ctx context.Context, cfg config.DedupConfig, logger *zap.Logger) (dedup.Guard, func(), error) {
	if !cfg.Enabled {
		logger.Info("Duplicate event guard disabled")
		return nil, func() {}, nil
	}
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.Info("Using Redis duplicate guard", zap.String("addr", cfg.RedisAddr))
		return dedup.NewRedisGuard(client, cfg.TTL), func() { client.Close() }, nil
	}
	guard, err := dedup.NewMemoryGuard(cfg.MaxEntries, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using in-memory duplicate guard", zap.Int("max_entries", cfg.MaxEntries))
	return guard, func() {}, nil
}

func newSink(ctx context.Context, cfg config.EventLogConfig, logger *zap.Logger) (eventlog.Sink, error) {
	if cfg.Sink == "cloudlogging" {
		return eventlog.NewCloudSink(ctx, cfg.ProjectID, cfg.LoggerName)
	}
	return eventlog.NewZapSink(logger, cfg.LoggerName), nil
}
