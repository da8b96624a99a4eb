// Package app wires configuration, storage and the pipeline collaborators
// shared by the server and the CLI.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"voice-trading-assistant-go/internal/alpaca"
	"voice-trading-assistant-go/internal/cache"
	"voice-trading-assistant-go/internal/config"
	"voice-trading-assistant-go/internal/database"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/leverage"
	"voice-trading-assistant-go/internal/llm"
	"voice-trading-assistant-go/internal/logger"
	"voice-trading-assistant-go/internal/metrics"
	"voice-trading-assistant-go/internal/speech"
	"voice-trading-assistant-go/internal/trader"
	"voice-trading-assistant-go/internal/validation"
)

// Bootstrap loads .env (when present) and the configuration, then builds the logger.
func Bootstrap(configPath string) (config.Config, *zap.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// App holds the constructed collaborators.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	DB         *gorm.DB
	Cache      cache.Cache
	Gateway    *alpaca.RestClient
	ElevenLabs *speech.ElevenLabs
	Engine     *trader.Engine
	Metrics    *metrics.Metrics
	registry   *prometheus.Registry
}

// New connects storage and builds the trading engine.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database connection successful and schema migrated.")

	c, err := cache.New(cfg.Cache)
	if err != nil {
		log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		c = cache.NewMemory()
	}

	llmClient := llm.NewClient(cfg.DeepSeek, log)
	gateway := alpaca.NewRestClient(cfg.Alpaca, log)
	elevenLabs := speech.NewElevenLabs(cfg.Speech)
	transcriber := speech.NewTranscriber(log, m, speech.DefaultBackends(cfg.Speech, elevenLabs)...)
	ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute

	engine := trader.NewEngine(log, cfg.Trading, trader.Components{
		Transcriber: transcriber,
		Parser:      intent.NewDefaultParser(llmClient, log, m),
		Validator:   validation.NewValidator(gateway, cfg.Trading.CriticalActionThreshold, log, m),
		Gateway:     gateway,
		Leverage:    leverage.NewClassifier(llmClient, c, ttl, log),
		DB:          db,
		Metrics:     m,
	})

	return &App{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Cache:      c,
		Gateway:    gateway,
		ElevenLabs: elevenLabs,
		Engine:     engine,
		Metrics:    m,
		registry:   reg,
	}, nil
}

// MetricsHandler serves the prometheus registry of the app.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Close releases the cache and database connections.
func (a *App) Close() error {
	var errs []error
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
