package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/camuig/evo-trader/internal/decision"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/risk"
	"github.com/camuig/evo-trader/internal/strategy"
)

type Config struct {
	Tinkoff  TinkoffConfig   `yaml:"tinkoff"`
	DeepSeek DeepSeekConfig  `yaml:"deepseek"`
	MOEX     MOEXConfig      `yaml:"moex"`
	Trading  TradingConfig   `yaml:"trading"`
	Risk     risk.Profile    `yaml:"risk"`
	Decision decision.Config `yaml:"decision"`
	Strategy strategy.Config `yaml:"strategy"`
	Storage  StorageConfig   `yaml:"storage"`
	Telegram TelegramConfig  `yaml:"telegram"`
	Web      WebConfig       `yaml:"web"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type TinkoffConfig struct {
	Token     string `yaml:"token"`
	Sandbox   bool   `yaml:"sandbox"`
	AccountID string `yaml:"account_id"`
	// SandboxFunding is the RUB balance a new sandbox account is topped up to.
	SandboxFunding float64 `yaml:"sandbox_funding"`
}

type DeepSeekConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MOEXConfig struct {
	BaseURL          string `yaml:"base_url"`
	Board            string `yaml:"board"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	NewsCacheMinutes int    `yaml:"news_cache_minutes"`
}

type TradingConfig struct {
	Interval                string  `yaml:"interval"`
	MaxTradesPerCycle       int     `yaml:"max_trades_per_cycle"`
	DiscoveryLimit          int     `yaml:"discovery_limit"`
	MinDecisionConfidence   float64 `yaml:"min_decision_confidence"`
	MaxCandidateRisk        string  `yaml:"max_candidate_risk"`
	MinCandidateLiquidity   float64 `yaml:"min_candidate_liquidity"`
	MaxSlippagePct          float64 `yaml:"max_slippage_pct"`
	ExecutionTimeoutSeconds int     `yaml:"execution_timeout_seconds"`
	CandleConcurrency       int     `yaml:"candle_concurrency"`
	MarketHoursOnly         bool    `yaml:"market_hours_only"`
	DryRun                  bool    `yaml:"dry_run"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file, applies .env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := newDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env is optional; real environment variables win either way.
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadRisk re-reads only the risk section. Used by the watcher.
func LoadRisk(path string) (risk.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return risk.Profile{}, fmt.Errorf("read config file: %w", err)
	}
	var doc struct {
		Risk risk.Profile `yaml:"risk"`
	}
	doc.Risk = risk.DefaultProfile()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return risk.Profile{}, fmt.Errorf("parse config: %w", err)
	}
	if err := doc.Risk.Validate(); err != nil {
		return risk.Profile{}, fmt.Errorf("validate risk: %w", err)
	}
	return doc.Risk, nil
}

func newDefault() *Config {
	return &Config{
		Risk:     risk.DefaultProfile(),
		Decision: decision.DefaultConfig(),
		Strategy: strategy.DefaultConfig(),
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TINKOFF_TOKEN"); v != "" {
		cfg.Tinkoff.Token = v
	}
	if v := os.Getenv("TINKOFF_ACCOUNT_ID"); v != "" {
		cfg.Tinkoff.AccountID = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		cfg.DeepSeek.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Tinkoff.SandboxFunding == 0 {
		cfg.Tinkoff.SandboxFunding = 1_000_000
	}
	if cfg.DeepSeek.Model == "" {
		cfg.DeepSeek.Model = "deepseek-chat"
	}
	if cfg.DeepSeek.BaseURL == "" {
		cfg.DeepSeek.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.DeepSeek.TimeoutSeconds == 0 {
		cfg.DeepSeek.TimeoutSeconds = 60
	}
	if cfg.MOEX.BaseURL == "" {
		cfg.MOEX.BaseURL = "https://iss.moex.com/iss"
	}
	if cfg.MOEX.Board == "" {
		cfg.MOEX.Board = "TQBR"
	}
	if cfg.MOEX.TimeoutSeconds == 0 {
		cfg.MOEX.TimeoutSeconds = 30
	}
	if cfg.MOEX.NewsCacheMinutes == 0 {
		cfg.MOEX.NewsCacheMinutes = 15
	}
	if cfg.Trading.Interval == "" {
		cfg.Trading.Interval = "5m"
	}
	if cfg.Trading.MaxTradesPerCycle == 0 {
		cfg.Trading.MaxTradesPerCycle = 3
	}
	if cfg.Trading.DiscoveryLimit == 0 {
		cfg.Trading.DiscoveryLimit = 20
	}
	if cfg.Trading.MinDecisionConfidence == 0 {
		cfg.Trading.MinDecisionConfidence = 0.6
	}
	if cfg.Trading.MaxCandidateRisk == "" {
		cfg.Trading.MaxCandidateRisk = string(market.RiskHigh)
	}
	if cfg.Trading.MinCandidateLiquidity == 0 {
		cfg.Trading.MinCandidateLiquidity = 10_000_000
	}
	if cfg.Trading.MaxSlippagePct == 0 {
		cfg.Trading.MaxSlippagePct = 1
	}
	if cfg.Trading.ExecutionTimeoutSeconds == 0 {
		cfg.Trading.ExecutionTimeoutSeconds = 30
	}
	if cfg.Trading.CandleConcurrency == 0 {
		cfg.Trading.CandleConcurrency = 5
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/evo-trader.db"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.Tinkoff.Token == "" {
		return fmt.Errorf("tinkoff.token is required")
	}
	if c.Tinkoff.SandboxFunding < 0 {
		return fmt.Errorf("tinkoff.sandbox_funding must not be negative")
	}
	if _, err := time.ParseDuration(c.Trading.Interval); err != nil {
		return fmt.Errorf("invalid trading.interval %q: %w", c.Trading.Interval, err)
	}
	if c.Trading.MaxTradesPerCycle < 1 {
		return fmt.Errorf("trading.max_trades_per_cycle must be positive")
	}
	if c.Trading.MinDecisionConfidence < 0 || c.Trading.MinDecisionConfidence > 1 {
		return fmt.Errorf("trading.min_decision_confidence must be in [0,1]")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) IsSandbox() bool {
	return c.Tinkoff.Sandbox
}

// UseLLM reports whether the DeepSeek reasoner is configured; otherwise the
// heuristic reasoner is used.
func (c *Config) UseLLM() bool {
	return c.DeepSeek.APIKey != ""
}

func (c *Config) MOEXLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

func (c *Config) TradingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Trading.Interval)
	return d
}

func (c *Config) DeepSeekTimeout() time.Duration {
	return time.Duration(c.DeepSeek.TimeoutSeconds) * time.Second
}

func (c *Config) MOEXTimeout() time.Duration {
	return time.Duration(c.MOEX.TimeoutSeconds) * time.Second
}

func (c *Config) NewsCacheTTL() time.Duration {
	return time.Duration(c.MOEX.NewsCacheMinutes) * time.Minute
}

func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Trading.ExecutionTimeoutSeconds) * time.Second
}

func (c *Config) MaxCandidateRisk() market.RiskLevel {
	return market.ParseRiskLevel(c.Trading.MaxCandidateRisk)
}
