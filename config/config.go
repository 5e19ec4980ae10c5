package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	PipelineConfig     PipelineConfig     `json:"pipeline"`
	MarketDataConfig   MarketDataConfig   `json:"market_data"`
	JudgesConfig       JudgesConfig       `json:"judges"`
	ThresholdsConfig   ThresholdsConfig   `json:"thresholds"`
	CalibratorConfig   CalibratorConfig   `json:"calibrator"`
	GateConfig         GateConfig         `json:"gate"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	VaultConfig        VaultConfig        `json:"vault"`
	NotificationConfig NotificationConfig `json:"notification"`
}

// PipelineConfig holds the live signal generation configuration
type PipelineConfig struct {
	Instruments      []string           `json:"instruments"`       // e.g. ["BTCUSDT", "EURUSD"]
	Timeframes       []string           `json:"timeframes"`        // e.g. ["5m", "15m", "30m", "1h", "4h", "1d"]
	TimeframeWeights map[string]float64 `json:"timeframe_weights"` // Must sum to 1.0 across Timeframes
	HigherTimeframes []string           `json:"higher_timeframes"` // Longest 1-2 durations, e.g. ["4h", "1d"]
	MinTimeframes    int                `json:"min_timeframes"`    // Minimum analyzable timeframes to proceed
	AnalysisWindow   int                `json:"analysis_window"`   // Candles per timeframe snapshot
	IntervalSecs     int                `json:"interval_secs"`     // Seconds between live invocations
	InstrumentClass  map[string]string  `json:"instrument_class"`  // instrument -> "crypto", "forex", "stock"
	SignalHorizon    string             `json:"signal_horizon"`    // Outcome evaluation horizon, e.g. "1h"
}

// MarketDataConfig binds the external indicator/microstructure collaborator
type MarketDataConfig struct {
	BaseURL     string `json:"base_url"` // e.g. "http://localhost:8090"
	TimeoutSecs int    `json:"timeout_secs"`
}

// JudgeConfig holds one AI judge's binding configuration
type JudgeConfig struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"` // "anthropic", "openai", "deepseek"
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// JudgesConfig holds the judge pool configuration
type JudgesConfig struct {
	Judges      []JudgeConfig `json:"judges"`
	TimeoutSecs int           `json:"timeout_secs"` // Per-judge timeout
}

// ThresholdsConfig holds the initial adaptive threshold values.
// These are only the startup defaults; the calibrator owns them afterwards.
type ThresholdsConfig struct {
	MinConfidence           float64 `json:"min_confidence"`            // 0-100 scale
	ConsensusRequired       bool    `json:"consensus_required"`        // Disagreement blocks trading
	ConsensusAgreementBonus float64 `json:"consensus_agreement_bonus"` // Added to mean confidence on full agreement
}

// CalibratorConfig holds the nightly calibration configuration
type CalibratorConfig struct {
	Enabled            bool    `json:"enabled"`
	CronSpec           string  `json:"cron_spec"`            // e.g. "0 2 * * *"
	LookbackDays       int     `json:"lookback_days"`        // History window per cycle
	LowAccuracy        float64 `json:"low_accuracy"`         // Tighten below this (exclusive)
	HighAccuracy       float64 `json:"high_accuracy"`        // Relax above this (exclusive)
	ConfidenceStep     float64 `json:"confidence_step"`      // Per-cycle minConfidence increment
	MinConfidenceFloor float64 `json:"min_confidence_floor"` // Lower bound for minConfidence
	MinConfidenceCeil  float64 `json:"min_confidence_ceil"`  // Upper bound for minConfidence
	MinMovePercent     float64 `json:"min_move_percent"`     // |move| below this counts as flat
	RelaxConsensus     bool    `json:"relax_consensus"`      // Allow dropping consensusRequired when accurate
}

// GateConfig holds the pre-trade validation gate configuration
type GateConfig struct {
	SpreadEnabled    bool    `json:"spread_enabled"`
	MaxSpreadPercent float64 `json:"max_spread_percent"` // High-low proxy ceiling
	MaxSpreadPips    float64 `json:"max_spread_pips"`    // Pip ceiling for quoted pairs

	VolatilityEnabled bool    `json:"volatility_enabled"`
	MinVolatility     float64 `json:"min_volatility"` // Trailing avg abs return floor (%)
	MaxVolatility     float64 `json:"max_volatility"` // Ceiling (%)

	LiquidityEnabled bool    `json:"liquidity_enabled"`
	MinVolumeRatio   float64 `json:"min_volume_ratio"` // Current / trailing average volume

	SessionEnabled   bool     `json:"session_enabled"`
	TradingSessions  []string `json:"trading_sessions"`   // "HH:MM-HH:MM" in UTC
	AvoidNewsWindows []string `json:"avoid_news_windows"` // "HH:MM-HH:MM" in UTC

	PriceActionEnabled bool    `json:"price_action_enabled"`
	MaxGapPercent      float64 `json:"max_gap_percent"` // Gap from previous close
	MinBodyPercent     float64 `json:"min_body_percent"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or console
	Output string `json:"output"` // stdout, stderr, or file path
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`  // Seconds
	WriteTimeout    int    `json:"write_timeout"` // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for caching and cross-process locks
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for judge API keys
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"` // Path prefix for judge credentials
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Email    EmailConfig    `json:"email"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// EmailConfig holds SMTP delivery settings. To may list several
// recipients separated by commas.
type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
	To       string `json:"to"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// No config file is fine; env overrides fill in the rest
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Judge API keys may also come from Vault; env vars here are a fallback.
func applyEnvOverrides(cfg *Config) {
	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", firstNonEmpty(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Format = getEnvOrDefault("LOG_FORMAT", firstNonEmpty(cfg.LoggingConfig.Format, "json"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", firstNonEmpty(cfg.LoggingConfig.Output, "stdout"))

	// Pipeline
	if v := os.Getenv("PIPELINE_INSTRUMENTS"); v != "" {
		cfg.PipelineConfig.Instruments = splitList(v)
	}
	cfg.PipelineConfig.IntervalSecs = getEnvIntOrDefault("PIPELINE_INTERVAL_SECS", cfg.PipelineConfig.IntervalSecs)

	// Market data collaborator
	cfg.MarketDataConfig.BaseURL = getEnvOrDefault("MARKET_DATA_URL", cfg.MarketDataConfig.BaseURL)

	// Judges
	cfg.JudgesConfig.TimeoutSecs = getEnvIntOrDefault("JUDGE_TIMEOUT_SECS", cfg.JudgesConfig.TimeoutSecs)
	for i := range cfg.JudgesConfig.Judges {
		j := &cfg.JudgesConfig.Judges[i]
		envKey := "JUDGE_" + strings.ToUpper(strings.ReplaceAll(j.ID, "-", "_")) + "_API_KEY"
		j.APIKey = getEnvOrDefault(envKey, j.APIKey)
	}

	// Calibrator
	cfg.CalibratorConfig.CronSpec = getEnvOrDefault("CALIBRATOR_CRON", cfg.CalibratorConfig.CronSpec)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", 24*time.Hour)

	// Database
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolString(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", firstNonEmpty(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", firstNonEmpty(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", firstNonEmpty(cfg.VaultConfig.SecretPath, "signal-engine/judges"))

	// Notifications
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
}

// applyDefaults fills in zero values with sane operating defaults
func applyDefaults(cfg *Config) {
	if cfg.MarketDataConfig.BaseURL == "" {
		cfg.MarketDataConfig.BaseURL = "http://localhost:8090"
	}
	if cfg.MarketDataConfig.TimeoutSecs == 0 {
		cfg.MarketDataConfig.TimeoutSecs = 10
	}
	if len(cfg.PipelineConfig.Timeframes) == 0 {
		cfg.PipelineConfig.Timeframes = []string{"5m", "15m", "30m", "1h", "4h", "1d"}
	}
	if len(cfg.PipelineConfig.TimeframeWeights) == 0 {
		cfg.PipelineConfig.TimeframeWeights = map[string]float64{
			"5m": 0.10, "15m": 0.15, "30m": 0.15, "1h": 0.20, "4h": 0.20, "1d": 0.20,
		}
	}
	if len(cfg.PipelineConfig.HigherTimeframes) == 0 {
		cfg.PipelineConfig.HigherTimeframes = []string{"4h", "1d"}
	}
	if cfg.PipelineConfig.MinTimeframes == 0 {
		cfg.PipelineConfig.MinTimeframes = 4
	}
	if cfg.PipelineConfig.AnalysisWindow == 0 {
		cfg.PipelineConfig.AnalysisWindow = 100
	}
	if cfg.PipelineConfig.IntervalSecs == 0 {
		cfg.PipelineConfig.IntervalSecs = 60
	}
	if cfg.PipelineConfig.SignalHorizon == "" {
		cfg.PipelineConfig.SignalHorizon = "1h"
	}
	if cfg.JudgesConfig.TimeoutSecs == 0 {
		cfg.JudgesConfig.TimeoutSecs = 30
	}
	if cfg.ThresholdsConfig.MinConfidence == 0 {
		cfg.ThresholdsConfig.MinConfidence = 70
	}
	if cfg.ThresholdsConfig.ConsensusAgreementBonus == 0 {
		cfg.ThresholdsConfig.ConsensusAgreementBonus = 5
	}
	if cfg.CalibratorConfig.CronSpec == "" {
		cfg.CalibratorConfig.CronSpec = "0 2 * * *"
	}
	if cfg.CalibratorConfig.LookbackDays == 0 {
		cfg.CalibratorConfig.LookbackDays = 7
	}
	if cfg.CalibratorConfig.LowAccuracy == 0 {
		cfg.CalibratorConfig.LowAccuracy = 0.45
	}
	if cfg.CalibratorConfig.HighAccuracy == 0 {
		cfg.CalibratorConfig.HighAccuracy = 0.65
	}
	if cfg.CalibratorConfig.ConfidenceStep == 0 {
		cfg.CalibratorConfig.ConfidenceStep = 2.5
	}
	if cfg.CalibratorConfig.MinConfidenceFloor == 0 {
		cfg.CalibratorConfig.MinConfidenceFloor = 55
	}
	if cfg.CalibratorConfig.MinConfidenceCeil == 0 {
		cfg.CalibratorConfig.MinConfidenceCeil = 90
	}
	if cfg.CalibratorConfig.MinMovePercent == 0 {
		cfg.CalibratorConfig.MinMovePercent = 0.1
	}
	if cfg.GateConfig.MaxSpreadPercent == 0 {
		cfg.GateConfig = defaultGateConfig(cfg.GateConfig)
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
}

func defaultGateConfig(gc GateConfig) GateConfig {
	gc.SpreadEnabled = true
	gc.MaxSpreadPercent = 0.05
	gc.MaxSpreadPips = 3.0
	gc.VolatilityEnabled = true
	gc.MinVolatility = 0.02
	gc.MaxVolatility = 2.0
	gc.LiquidityEnabled = true
	gc.MinVolumeRatio = 0.5
	gc.SessionEnabled = true
	gc.PriceActionEnabled = true
	gc.MaxGapPercent = 1.0
	gc.MinBodyPercent = 0.01
	return gc
}

// Validate rejects configurations the pipeline cannot start with
func (c *Config) Validate() error {
	if len(c.PipelineConfig.Timeframes) < c.PipelineConfig.MinTimeframes {
		return fmt.Errorf("pipeline: %d timeframes configured, minimum is %d",
			len(c.PipelineConfig.Timeframes), c.PipelineConfig.MinTimeframes)
	}

	var sum float64
	for _, tf := range c.PipelineConfig.Timeframes {
		w, ok := c.PipelineConfig.TimeframeWeights[tf]
		if !ok {
			return fmt.Errorf("pipeline: timeframe %s has no configured weight", tf)
		}
		sum += w
	}
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("pipeline: timeframe weights must sum to 1.0, got %.2f", sum)
	}

	for _, htf := range c.PipelineConfig.HigherTimeframes {
		if _, ok := c.PipelineConfig.TimeframeWeights[htf]; !ok {
			return fmt.Errorf("pipeline: higher timeframe %s is not in the analyzed set", htf)
		}
	}

	seen := make(map[string]bool)
	for _, j := range c.JudgesConfig.Judges {
		if j.ID == "" {
			return fmt.Errorf("judges: judge with empty id")
		}
		if seen[j.ID] {
			return fmt.Errorf("judges: duplicate judge id %q", j.ID)
		}
		seen[j.ID] = true
	}

	if c.CalibratorConfig.MinConfidenceFloor >= c.CalibratorConfig.MinConfidenceCeil {
		return fmt.Errorf("calibrator: min_confidence_floor must be below min_confidence_ceil")
	}
	if c.CalibratorConfig.LowAccuracy >= c.CalibratorConfig.HighAccuracy {
		return fmt.Errorf("calibrator: low_accuracy must be below high_accuracy")
	}

	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		PipelineConfig: PipelineConfig{
			Instruments: []string{"BTCUSDT"},
			Timeframes:  []string{"5m", "15m", "30m", "1h", "4h", "1d"},
			TimeframeWeights: map[string]float64{
				"5m": 0.10, "15m": 0.15, "30m": 0.15, "1h": 0.20, "4h": 0.20, "1d": 0.20,
			},
			HigherTimeframes: []string{"4h", "1d"},
			MinTimeframes:    4,
			AnalysisWindow:   100,
			IntervalSecs:     60,
			InstrumentClass:  map[string]string{"BTCUSDT": "crypto"},
			SignalHorizon:    "1h",
		},
		JudgesConfig: JudgesConfig{
			TimeoutSecs: 30,
			Judges: []JudgeConfig{
				{ID: "claude-judge", Provider: "anthropic", Model: "claude-sonnet-4-20250514", MaxTokens: 1024, Temperature: 0.3},
				{ID: "gpt-judge", Provider: "openai", Model: "gpt-4o", MaxTokens: 1024, Temperature: 0.3},
			},
		},
		ThresholdsConfig: ThresholdsConfig{
			MinConfidence:           70,
			ConsensusRequired:       true,
			ConsensusAgreementBonus: 5,
		},
		CalibratorConfig: CalibratorConfig{
			Enabled:            true,
			CronSpec:           "0 2 * * *",
			LookbackDays:       7,
			LowAccuracy:        0.45,
			HighAccuracy:       0.65,
			ConfidenceStep:     2.5,
			MinConfidenceFloor: 55,
			MinConfidenceCeil:  90,
			MinMovePercent:     0.1,
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	config.GateConfig = defaultGateConfig(config.GateConfig)

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
