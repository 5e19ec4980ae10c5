package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/api"
	"trade-signal-engine/internal/cache"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/consensus"
	"trade-signal-engine/internal/database"
	"trade-signal-engine/internal/email"
	"trade-signal-engine/internal/events"
	"trade-signal-engine/internal/gate"
	"trade-signal-engine/internal/judge"
	"trade-signal-engine/internal/logging"
	"trade-signal-engine/internal/market"
	"trade-signal-engine/internal/notification"
	"trade-signal-engine/internal/pipeline"
	"trade-signal-engine/internal/scheduler"
	"trade-signal-engine/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logger.Info().Msg("Trade signal engine starting")

	ctx := context.Background()

	// Resolve judge API keys from Vault; any key already set in config wins
	judgeConfigs := cfg.JudgesConfig.Judges
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Vault")
		}
		judgeConfigs, err = vaultClient.ResolveJudgeKeys(ctx, judgeConfigs)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to resolve judge API keys from Vault")
		}
		logger.Info().Msg("Judge API keys resolved from Vault")
	}

	pool, err := judge.NewPoolFromConfig(
		buildJudgeConfigs(judgeConfigs),
		time.Duration(cfg.JudgesConfig.TimeoutSecs)*time.Second,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build judge pool")
	}
	logger.Info().Int("judges", pool.Size()).Msg("Judge pool ready")

	preTradeGate, err := gate.New(cfg.GateConfig, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build pre-trade gate")
	}

	store := calibrate.NewStore(calibrate.Thresholds{
		MinConfidence:           cfg.ThresholdsConfig.MinConfidence,
		ConsensusRequired:       cfg.ThresholdsConfig.ConsensusRequired,
		ConsensusAgreementBonus: cfg.ThresholdsConfig.ConsensusAgreementBonus,
	})

	// Persistence and cache are optional; the pipeline runs without either
	var repo *database.Repository
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		repo = database.NewRepository(db)
		logger.Info().Msg("Signal persistence enabled")
	}

	var cacheService *cache.Service
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize cache")
		}
		defer cacheService.Close()
	}

	// Avoid handing the pipeline typed-nil interfaces
	var signalStore pipeline.SignalStore
	if repo != nil {
		signalStore = repo
	}
	var locker pipeline.Locker
	if cacheService != nil {
		locker = cacheService
	}

	provider := market.NewHTTPProvider(
		cfg.MarketDataConfig.BaseURL,
		time.Duration(cfg.MarketDataConfig.TimeoutSecs)*time.Second,
	)

	signalPipeline, err := pipeline.New(
		cfg.PipelineConfig,
		provider,
		pool,
		consensus.NewResolver(logger),
		preTradeGate,
		store,
		signalStore,
		locker,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build signal pipeline")
	}

	var calibrator *calibrate.Calibrator
	if cfg.CalibratorConfig.Enabled {
		if repo == nil {
			logger.Fatal().Msg("Calibrator requires the database: enable it or disable the calibrator")
		}
		calibrator, err = calibrate.NewCalibrator(cfg.CalibratorConfig, store, repo, repo, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build calibrator")
		}
		logger.Info().Str("cron_spec", cfg.CalibratorConfig.CronSpec).Msg("Calibrator enabled")
	}

	bus := events.NewBus()

	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager(logger)
		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			}))
			logger.Info().Msg("Telegram notifications enabled")
		}
		if cfg.NotificationConfig.Email.Enabled {
			notifyManager.AddNotifier(email.NewNotifier(cfg.NotificationConfig.Email))
			logger.Info().Msg("Email notifications enabled")
		}

		bus.Subscribe(events.EventSignalGenerated, func(event events.Event) {
			signal, ok := events.SignalFromEvent(event)
			if !ok {
				return
			}
			if err := notifyManager.NotifySignal(signal); err != nil {
				logger.Warn().Err(err).Str("instrument", signal.Instrument).Msg("Failed to send signal notification")
			}
		})
	}
	bus.SubscribeAll(func(event events.Event) {
		logger.Debug().Str("event", string(event.Type)).Interface("data", event.Data).Msg("Event published")
	})

	var calibrationRunner scheduler.CalibrationRunner
	if calibrator != nil {
		calibrationRunner = calibrator
	}
	sched, err := scheduler.New(
		cfg.PipelineConfig,
		cfg.CalibratorConfig,
		signalPipeline,
		calibrationRunner,
		bus,
		cacheService,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build scheduler")
	}
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	bus.Publish(events.Event{
		Type: events.EventEngineStarted,
		Data: map[string]interface{}{
			"instruments": cfg.PipelineConfig.Instruments,
			"judges":      pool.Size(),
		},
	})

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var calibrationAPI api.CalibrationAPI
		if calibrator != nil {
			calibrationAPI = calibrator
		}
		server = api.NewServer(cfg.ServerConfig, cfg.AuthConfig, signalPipeline, calibrationAPI, repo, cacheService, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Fatal().Err(err).Msg("API server failed")
			}
		}()
		logger.Info().Str("host", cfg.ServerConfig.Host).Int("port", cfg.ServerConfig.Port).Msg("API server started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down")
	bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{}})

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(max(cfg.ServerConfig.ShutdownTimeout, 1))*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down API server")
		}
	}
	sched.Stop()

	logger.Info().Msg("Shutdown complete")
}

// buildJudgeConfigs maps configuration entries onto judge client configs.
// The config names providers by vendor; the client names them by API shape.
func buildJudgeConfigs(configs []config.JudgeConfig) []judge.Config {
	out := make([]judge.Config, 0, len(configs))
	for _, c := range configs {
		provider := judge.Provider(c.Provider)
		if c.Provider == "anthropic" {
			provider = judge.ProviderClaude
		}
		out = append(out, judge.Config{
			ID:          c.ID,
			Provider:    provider,
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
	}
	return out
}
