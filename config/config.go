package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	BybitConfig      BybitConfig      `json:"bybit"`
	TradingConfig    TradingConfig    `json:"trading"`
	StopsConfig      StopsConfig      `json:"stops"`
	IndicatorsConfig IndicatorsConfig `json:"indicators"`
	ScoringConfig    ScoringConfig    `json:"scoring"`
	RegimeConfig     RegimeConfig     `json:"regime"`
	StateConfig      StateConfig      `json:"state"`
	JournalConfig    JournalConfig    `json:"journal"`
	TelegramConfig   TelegramConfig   `json:"telegram"`
	ServerConfig     ServerConfig     `json:"server"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// BybitConfig holds Bybit V5 API connection settings
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	TestNet   bool   `json:"testnet"`
}

// TradingConfig holds the core decision-loop parameters
type TradingConfig struct {
	Symbol          string  `json:"symbol"`
	Interval        string  `json:"interval"`         // kline interval in minutes, e.g. "1", "5"
	CandleLimit     int     `json:"candle_limit"`     // candles fetched per cycle (indicator warm-up)
	RiskPct         float64 `json:"risk_pct"`         // fraction of equity risked per entry
	SignalThreshold float64 `json:"signal_threshold"` // minimum composite score to enter / add
	CooldownSec     int     `json:"cooldown_sec"`     // minimum seconds between entries and between add-ons
	Leverage        int     `json:"leverage"`
	StartEnabled    bool    `json:"start_enabled"`    // trade right after startup; off waits for /on
}

// StopsConfig holds stop-loss / take-profit lifecycle parameters
type StopsConfig struct {
	ATRStopMult      float64 `json:"atr_k_sl"`
	ATRTP1Mult       float64 `json:"atr_k_tp1"`
	ATRTP2Mult       float64 `json:"atr_k_tp2"`
	ATRBreakevenMult float64 `json:"atr_k_be"`
	Trailing         string  `json:"trailing"` // "supertrend" (band-following) or "atr"
	TrailATRMult     float64 `json:"trailing_k_atr"`
	FallbackSLPct    float64 `json:"fallback_sl_pct"` // used when ATR is not warmed up
	FallbackTPPct    float64 `json:"fallback_tp_pct"`
	PartialTP1Pct    float64 `json:"partial_tp1_pct"` // fraction of original size closed at TP1
	PartialTP2Pct    float64 `json:"partial_tp2_pct"`
}

// IndicatorsConfig holds the Supertrend overlay parameters
type IndicatorsConfig struct {
	SupertrendPeriod     int     `json:"supertrend_period"`
	SupertrendMultiplier float64 `json:"supertrend_multiplier"`
}

// ScoringConfig holds the composite-score weights and the per-component
// thresholds. Weights are assumed to sum to 1 for score interpretability
// but this is not enforced.
type ScoringConfig struct {
	Weights    WeightsConfig         `json:"weights"`
	TA         TAScoreConfig         `json:"ta"`
	Exchange   ExchangeScoreConfig   `json:"exchange"`
	Volume     VolumeScoreConfig     `json:"volume"`
	Volatility VolatilityScoreConfig `json:"volatility"`
}

type WeightsConfig struct {
	TA         float64 `json:"ta"`
	Exchange   float64 `json:"exchange"`
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
}

type TAScoreConfig struct {
	EMAStackBonus float64 `json:"ema_stack_bonus"`
	ADXTrend      float64 `json:"adx_trend"`
	ADXScore      float64 `json:"adx_score"`
	RSIHot        float64 `json:"rsi_hot"`
	RSICold       float64 `json:"rsi_cold"`
	RSIScore      float64 `json:"rsi_score"` // penalty applied in either extreme zone
	VWAPAlignment float64 `json:"vwap_alignment"`
}

type ExchangeScoreConfig struct {
	FundingPos float64 `json:"funding_pos"`
	FundingNeg float64 `json:"funding_neg"`
	BasisPos   float64 `json:"basis_pos"`
	BasisNeg   float64 `json:"basis_neg"`
	LSRPos     float64 `json:"lsr_pos"`
	LSRNeg     float64 `json:"lsr_neg"`
}

type VolumeScoreConfig struct {
	SurgeHi float64 `json:"surge_hi"`
	SurgeLo float64 `json:"surge_lo"`
	ScoreHi float64 `json:"score_hi"`
	ScoreLo float64 `json:"score_lo"`
}

type VolatilityScoreConfig struct {
	ATRMAWindow int     `json:"atr_ma_window"`
	HotRatio    float64 `json:"hot_ratio"`
	ColdRatio   float64 `json:"cold_ratio"`
	ScoreHot    float64 `json:"score_hot"`
	ScoreCold   float64 `json:"score_cold"`
	ZMomentumHi float64 `json:"z_momentum_hi"`
	ZMomentumLo float64 `json:"z_momentum_lo"`
	ScoreZHi    float64 `json:"score_z_hi"`
	ScoreZLo    float64 `json:"score_z_lo"`
}

// RegimeConfig holds the regime-classifier thresholds
type RegimeConfig struct {
	ADXTrend     float64 `json:"adx_trend"`     // ADX above this is a trending market
	ADXRange     float64 `json:"adx_range"`     // ADX below this is a ranging market
	BasisEpsilon float64 `json:"basis_epsilon"` // |basis| below this counts as flat
	OIWindow     int     `json:"oi_window"`     // recent open-interest points examined
}

// StateConfig holds the durable per-symbol state file location
type StateConfig struct {
	Path string `json:"path"`
}

// JournalConfig holds trade-journal storage settings
type JournalConfig struct {
	Backend     string `json:"backend"` // "csv" or "postgres"
	CSVPath     string `json:"csv_path"`
	PostgresDSN string `json:"postgres_dsn"`
}

// TelegramConfig holds the operator bot and notification settings
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// ServerConfig holds the local status/control HTTP server settings
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Host    string `json:"host"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// Default returns the configuration with every parameter at its
// reference value. A config file and environment variables override it.
func Default() *Config {
	return &Config{
		BybitConfig: BybitConfig{TestNet: false},
		TradingConfig: TradingConfig{
			Symbol:          "BTCUSDT",
			Interval:        "1",
			CandleLimit:     200,
			RiskPct:         0.01,
			SignalThreshold: 1.8,
			CooldownSec:     30,
			Leverage:        10,
			StartEnabled:    false,
		},
		StopsConfig: StopsConfig{
			ATRStopMult:      1.0,
			ATRTP1Mult:       1.0,
			ATRTP2Mult:       2.0,
			ATRBreakevenMult: 0.5,
			Trailing:         "supertrend",
			TrailATRMult:     1.0,
			FallbackSLPct:    0.008,
			FallbackTPPct:    0.012,
			PartialTP1Pct:    0.30,
			PartialTP2Pct:    0.30,
		},
		IndicatorsConfig: IndicatorsConfig{
			SupertrendPeriod:     10,
			SupertrendMultiplier: 3.0,
		},
		ScoringConfig: ScoringConfig{
			Weights: WeightsConfig{TA: 0.45, Exchange: 0.25, Volume: 0.15, Volatility: 0.15},
			TA: TAScoreConfig{
				EMAStackBonus: 0.4,
				ADXTrend:      25.0,
				ADXScore:      0.2,
				RSIHot:        70.0,
				RSICold:       30.0,
				RSIScore:      -0.1,
				VWAPAlignment: 0.1,
			},
			Exchange: ExchangeScoreConfig{
				FundingPos: 0.05, FundingNeg: -0.05,
				BasisPos: 0.1, BasisNeg: -0.1,
				LSRPos: 0.1, LSRNeg: -0.1,
			},
			Volume: VolumeScoreConfig{
				SurgeHi: 1.5, SurgeLo: 0.7,
				ScoreHi: 0.6, ScoreLo: -0.4,
			},
			Volatility: VolatilityScoreConfig{
				ATRMAWindow: 20,
				HotRatio:    1.2, ColdRatio: 0.8,
				ScoreHot: 0.3, ScoreCold: -0.3,
				ZMomentumHi: 0.6, ZMomentumLo: -0.6,
				ScoreZHi: 0.2, ScoreZLo: -0.2,
			},
		},
		RegimeConfig: RegimeConfig{
			ADXTrend:     25.0,
			ADXRange:     18.0,
			BasisEpsilon: 1e-6,
			OIWindow:     10,
		},
		StateConfig:   StateConfig{Path: "runtime_state.json"},
		JournalConfig: JournalConfig{Backend: "csv", CSVPath: "logs/trades.csv"},
		ServerConfig:  ServerConfig{Enabled: false, Port: 8080, Host: "127.0.0.1"},
		LoggingConfig: LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: false},
	}
}

// Load reads config.json (when present) over the defaults, then applies
// environment variable overrides, which take precedence.
func Load() (*Config, error) {
	return LoadFrom("config.json")
}

// LoadFrom loads configuration from the given file path
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.TradingConfig.Symbol == "" {
		return nil, fmt.Errorf("trading symbol must not be empty")
	}
	if cfg.StopsConfig.Trailing != "supertrend" && cfg.StopsConfig.Trailing != "atr" {
		return nil, fmt.Errorf("stops.trailing must be %q or %q, got %q", "supertrend", "atr", cfg.StopsConfig.Trailing)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Credentials
// are expected to come from the environment rather than the file.
func applyEnvOverrides(cfg *Config) {
	cfg.BybitConfig.APIKey = getEnvOrDefault("BYBIT_API_KEY", cfg.BybitConfig.APIKey)
	cfg.BybitConfig.SecretKey = getEnvOrDefault("BYBIT_API_SECRET", cfg.BybitConfig.SecretKey)
	if v := os.Getenv("BYBIT_TESTNET"); v != "" {
		cfg.BybitConfig.TestNet = v == "true"
	}

	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", cfg.TradingConfig.Symbol)
	cfg.TradingConfig.RiskPct = getEnvFloatOrDefault("TRADING_RISK_PCT", cfg.TradingConfig.RiskPct)
	cfg.TradingConfig.SignalThreshold = getEnvFloatOrDefault("TRADING_SIGNAL_THRESHOLD", cfg.TradingConfig.SignalThreshold)
	cfg.TradingConfig.CooldownSec = getEnvIntOrDefault("TRADING_COOLDOWN_SEC", cfg.TradingConfig.CooldownSec)

	cfg.TelegramConfig.BotToken = getEnvOrDefault("TELEGRAM_TOKEN", cfg.TelegramConfig.BotToken)
	cfg.TelegramConfig.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.TelegramConfig.ChatID)
	if cfg.TelegramConfig.BotToken != "" && os.Getenv("TELEGRAM_TOKEN") != "" {
		cfg.TelegramConfig.Enabled = true
	}

	cfg.JournalConfig.PostgresDSN = getEnvOrDefault("DATABASE_URL", cfg.JournalConfig.PostgresDSN)

	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
